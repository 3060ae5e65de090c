package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/contabil/fiscore/pkg/client"
)

func newUploadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uploads",
		Short: "Manage the document staging area",
	}

	cmd.AddCommand(
		newUploadsListCmd(),
		newUploadsCreateCmd(),
		newUploadsClassifyBatchCmd(),
		newUploadsReprocessCmd(),
	)

	return cmd
}

func newUploadsListCmd() *cobra.Command {
	var (
		state     string
		ocrStatus string
		ready     bool
		page      int
		pageSize  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List staged uploads",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			result, err := cliCtx.Client.Uploads().List(cmd.Context(), client.ListUploadsOptions{
				State:     state,
				OCRStatus: ocrStatus,
				Ready:     ready,
				Page:      page,
				PageSize:  pageSize,
			})
			if err != nil {
				return err
			}

			if cliCtx.Output == "json" {
				return printJSON(cmd.OutOrStdout(), result)
			}

			rows := make([][]string, 0, len(result.Items))
			for _, u := range result.Items {
				competence := ""
				if u.Competence != nil {
					competence = *u.Competence
				}
				rows = append(rows, []string{u.ID, u.FileName, u.State, u.OCRStatus, competence})
			}
			printTable(cmd.OutOrStdout(),
				[]string{"ID", "FILE", "STATE", "OCR", "COMPETENCE"}, rows)
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d upload(s)\n", len(result.Items), result.Total)
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "filter by state (pending/classified/discarded)")
	cmd.Flags().StringVar(&ocrStatus, "ocr-status", "", "filter by OCR status")
	cmd.Flags().BoolVar(&ready, "ready", false, "only uploads ready for batch classification")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 50, "page size")

	return cmd
}

func newUploadsCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <file>",
		Short: "Stage a local file for classification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			upload, err := cliCtx.Client.Uploads().Create(cmd.Context(), filepath.Base(args[0]), f)
			if err != nil {
				return err
			}

			if cliCtx.Output == "json" {
				return printJSON(cmd.OutOrStdout(), upload)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Staged %s as %s (extraction runs in the background)\n",
				upload.FileName, upload.ID)
			return nil
		},
	}
	return cmd
}

func newUploadsClassifyBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify-batch <upload-id>...",
		Short: "Promote resolved uploads into documents",
		Long: `Promote every listed upload into a permanent client document.  Failures
are isolated per item; the summary names the files that could not be
promoted and why.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			summary, err := cliCtx.Client.Uploads().ClassifyBatch(cmd.Context(), args)
			if err != nil {
				return err
			}

			if cliCtx.Output == "json" {
				return printJSON(cmd.OutOrStdout(), summary)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Promoted %d, failed %d\n",
				summary.SuccessCount, summary.ErrorCount)
			for i, name := range summary.FailedFileNames {
				reason := ""
				if i < len(summary.Reasons) {
					reason = summary.Reasons[i]
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s\n", name, reason)
			}
			return nil
		},
	}
	return cmd
}

func newUploadsReprocessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reprocess <upload-id>",
		Short: "Re-run vision extraction over an upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			upload, err := cliCtx.Client.Uploads().Reprocess(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if cliCtx.Output == "json" {
				return printJSON(cmd.OutOrStdout(), upload)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Upload %s reprocessed: ocr_status=%s\n",
				upload.ID, upload.OCRStatus)
			return nil
		},
	}
	return cmd
}
