// Package cli implements the fiscore operator command line.  Every command
// talks to a running API server through pkg/client; nothing here touches
// the database directly.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/contabil/fiscore/pkg/client"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// cliContextKey is the context key for CLIContext.
type cliContextKey struct{}

// RootOptions holds global CLI flags.
type RootOptions struct {
	ServerAddr string
	OrgID      string
	UserID     string
	Output     string
	Timeout    time.Duration
}

// CLIContext carries the initialized SDK client through the command tree.
type CLIContext struct {
	Client *client.Client
	Output string
}

// NewRootCommand creates the root cobra command with global flags and all
// subcommands.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "fiscore",
		Short: "fiscore CLI — fiscal obligation tracking for accounting offices",
		Long: `fiscore tracks recurring Brazilian fiscal obligations per client and
competence period: deadline generation, document intake with vision
extraction, and notification delivery.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return persistentPreRun(cmd, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.ServerAddr, "server", defaultServerAddr(), "API server address")
	pf.StringVar(&opts.OrgID, "org", os.Getenv("FISCORE_ORG"), "tenant organization id (or FISCORE_ORG)")
	pf.StringVar(&opts.UserID, "user", os.Getenv("FISCORE_USER"), "acting user id (or FISCORE_USER)")
	pf.StringVarP(&opts.Output, "output", "o", "table", "output format (table, json)")
	pf.DurationVar(&opts.Timeout, "timeout", 30*time.Second, "request timeout")

	cmd.AddCommand(
		newInstancesCmd(),
		newUploadsCmd(),
		newDeliveriesCmd(),
	)

	return cmd
}

func persistentPreRun(cmd *cobra.Command, opts *RootOptions) error {
	if opts.OrgID == "" {
		return fmt.Errorf("an organization id is required: pass --org or set FISCORE_ORG")
	}
	switch opts.Output {
	case "table", "json":
	default:
		return fmt.Errorf("invalid output format %q (expected table or json)", opts.Output)
	}

	sdkOpts := []client.Option{client.WithTimeout(opts.Timeout)}
	if opts.UserID != "" {
		sdkOpts = append(sdkOpts, client.WithUserID(opts.UserID))
	}
	c, err := client.NewClient(opts.ServerAddr, opts.OrgID, sdkOpts...)
	if err != nil {
		return err
	}

	cliCtx := &CLIContext{Client: c, Output: opts.Output}
	cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cliCtx))
	return nil
}

// GetCLIContext extracts the CLIContext installed by the root command.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	cliCtx, ok := cmd.Context().Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, fmt.Errorf("CLI context not initialized")
	}
	return cliCtx, nil
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	cmd := NewRootCommand()
	cmd.SetContext(context.Background())
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func defaultServerAddr() string {
	if addr := os.Getenv("FISCORE_SERVER"); addr != "" {
		return addr
	}
	return "http://localhost:8080"
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// printTable writes rows in aligned columns with a header.
func printTable(w io.Writer, header []string, rows [][]string) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, h := range header {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, h)
	}
	fmt.Fprintln(tw)
	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, cell)
		}
		fmt.Fprintln(tw)
	}
	tw.Flush()
}
