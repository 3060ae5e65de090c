package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/contabil/fiscore/pkg/client"
)

func newDeliveriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deliveries",
		Short: "Manage the notification delivery queue",
	}

	cmd.AddCommand(
		newDeliveriesListCmd(),
		newDeliveriesCancelCmd(),
		newDeliveriesReprocessCmd(),
	)

	return cmd
}

func newDeliveriesListCmd() *cobra.Command {
	var (
		status   string
		page     int
		pageSize int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List delivery queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			result, err := cliCtx.Client.Deliveries().List(cmd.Context(), client.ListDeliveriesOptions{
				Status:   status,
				Page:     page,
				PageSize: pageSize,
			})
			if err != nil {
				return err
			}

			if cliCtx.Output == "json" {
				return printJSON(cmd.OutOrStdout(), result)
			}

			rows := make([][]string, 0, len(result.Items))
			for _, item := range result.Items {
				nextRetry := "-"
				if item.NextRetryAt != nil {
					nextRetry = item.NextRetryAt.Format("2006-01-02 15:04:05")
				}
				rows = append(rows, []string{
					item.ID,
					item.DocumentID,
					item.Status,
					fmt.Sprintf("%d/%d", item.Attempts, item.MaxAttempts),
					nextRetry,
				})
			}
			printTable(cmd.OutOrStdout(),
				[]string{"ID", "DOCUMENT", "STATUS", "ATTEMPTS", "NEXT RETRY"}, rows)
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d item(s)\n", len(result.Items), result.Total)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending/processing/sent/failed/cancelled)")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 50, "page size")

	return cmd
}

func newDeliveriesCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <item-id>",
		Short: "Cancel a pending delivery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			item, err := cliCtx.Client.Deliveries().Cancel(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if cliCtx.Output == "json" {
				return printJSON(cmd.OutOrStdout(), item)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Delivery %s cancelled\n", item.ID)
			return nil
		},
	}
	return cmd
}

func newDeliveriesReprocessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reprocess <item-id>",
		Short: "Requeue a failed delivery with a fresh attempt budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			item, err := cliCtx.Client.Deliveries().Reprocess(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if cliCtx.Output == "json" {
				return printJSON(cmd.OutOrStdout(), item)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Delivery %s requeued (status=%s)\n",
				item.ID, item.Status)
			return nil
		},
	}
	return cmd
}
