package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/contabil/fiscore/pkg/client"
)

func newInstancesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instances",
		Short: "Manage obligation instances",
		Long: `Manage obligation instances: generate a competence period, list by
status, mark completions, and revert mistakes.`,
	}

	cmd.AddCommand(
		newInstancesListCmd(),
		newInstancesGenerateCmd(),
		newInstancesCompleteCmd(),
		newInstancesUnmarkCmd(),
	)

	return cmd
}

func newInstancesListCmd() *cobra.Command {
	var (
		competence string
		clientID   string
		status     string
		page       int
		pageSize   int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List obligation instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			result, err := cliCtx.Client.Instances().List(cmd.Context(), client.ListInstancesOptions{
				Competence: competence,
				ClientID:   clientID,
				Status:     status,
				Page:       page,
				PageSize:   pageSize,
			})
			if err != nil {
				return err
			}

			if cliCtx.Output == "json" {
				return printJSON(cmd.OutOrStdout(), result)
			}

			rows := make([][]string, 0, len(result.Items))
			for _, inst := range result.Items {
				rows = append(rows, []string{
					inst.ID,
					inst.Competence,
					inst.Status,
					inst.DueAt.Format("2006-01-02"),
					inst.InternalTargetAt.Format("2006-01-02"),
				})
			}
			printTable(cmd.OutOrStdout(),
				[]string{"ID", "COMPETENCE", "STATUS", "DUE", "TARGET"}, rows)
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d instance(s)\n", len(result.Items), result.Total)
			return nil
		},
	}

	cmd.Flags().StringVar(&competence, "competence", "", "filter by competence (MM/YYYY)")
	cmd.Flags().StringVar(&clientID, "client", "", "filter by client id")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending/due_48h/overdue/on_time_done/late_done)")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 50, "page size")

	return cmd
}

func newInstancesGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate [competence]",
		Short: "Generate instances for a competence period",
		Long: `Run the idempotent instance generator for one competence ("MM/YYYY").
Without an argument the current month is generated.  Instances that
already exist are left untouched, so the command is safe to re-run.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			competence := ""
			if len(args) == 1 {
				competence = args[0]
			}
			report, err := cliCtx.Client.Instances().Generate(cmd.Context(), competence)
			if err != nil {
				return err
			}

			if cliCtx.Output == "json" {
				return printJSON(cmd.OutOrStdout(), report)
			}

			fmt.Fprintf(cmd.OutOrStdout(),
				"Generated %s: %d created, %d already existing, %d skipped (%d links visited)\n",
				report.Competence, report.InstancesCreated, report.AlreadyExisting,
				report.Skipped, report.LinksVisited)
			return nil
		},
	}
	return cmd
}

func newInstancesCompleteCmd() *cobra.Command {
	var notes string

	cmd := &cobra.Command{
		Use:   "complete <instance-id>",
		Short: "Mark an instance as done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(notes) == "" {
				return fmt.Errorf("completion notes are required: pass --notes")
			}
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			inst, err := cliCtx.Client.Instances().Complete(cmd.Context(), args[0], notes)
			if err != nil {
				return err
			}

			if cliCtx.Output == "json" {
				return printJSON(cmd.OutOrStdout(), inst)
			}

			completedAt := ""
			if inst.CompletedAt != nil {
				completedAt = inst.CompletedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Instance %s completed as %s at %s\n",
				inst.ID, inst.Status, completedAt)
			return nil
		},
	}

	cmd.Flags().StringVar(&notes, "notes", "", "how the obligation was fulfilled (required)")

	return cmd
}

func newInstancesUnmarkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unmark <instance-id>",
		Short: "Revert a completed instance to its open status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			inst, err := cliCtx.Client.Instances().Unmark(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if cliCtx.Output == "json" {
				return printJSON(cmd.OutOrStdout(), inst)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Instance %s reverted to %s\n", inst.ID, inst.Status)
			return nil
		},
	}
	return cmd
}
