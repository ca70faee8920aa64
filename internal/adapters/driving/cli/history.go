package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent sync cycles",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of cycles to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	svc, err := openServices(ctx, ServiceOptions{})
	if err != nil {
		return err
	}
	defer svc.Close() //nolint:errcheck

	results, err := svc.Scheduler.History(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, styles.Muted.Render("No sync cycles recorded."))
		return nil
	}

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := styles.Success.Render("ok")
		if !r.Success {
			status = styles.Error.Render("failed")
		}
		cursor := "held"
		if r.CursorAdvanced {
			cursor = "advanced"
		}
		rows = append(rows, []string{
			r.StartedAt.Local().Format(time.DateTime),
			r.EndedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
			status,
			fmt.Sprint(r.ItemsProcessed),
			fmt.Sprint(r.ItemsFailed),
			cursor,
			r.Error,
		})
	}
	writeTable(out, []string{"STARTED", "DURATION", "STATUS", "SAVED", "FAILED", "CURSOR", "ERROR"}, rows)
	return nil
}
