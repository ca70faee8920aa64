package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/etasync/internal/core/domain"
	"github.com/custodia-labs/etasync/internal/core/ports/driving"
)

// progressInterval is how often live progress is redrawn.
const progressInterval = 500 * time.Millisecond

var syncDryRun bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle",
	Long: `Runs a single incremental sync cycle: searches documents issued since the
cursor, fetches their details, persists them and advances the cursor.
Exits non-zero if the cycle fails.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Keep results in memory; the database is not touched")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	svc, err := openServices(ctx, ServiceOptions{DryRun: syncDryRun})
	if err != nil {
		return err
	}
	defer svc.Close() //nolint:errcheck

	out := cmd.OutOrStdout()
	if syncDryRun {
		fmt.Fprintln(out, styles.Warning.Render("Dry run: nothing will be written to the database."))
	}

	report, err := syncWithProgress(ctx, out, svc)
	if report != nil {
		writeReport(out, report)
	}
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	return nil
}

// syncWithProgress runs a cycle through the scheduler so it is recorded in
// history, redrawing progress while output is a terminal.
func syncWithProgress(ctx context.Context, out io.Writer, svc *Services) (*domain.SyncReport, error) {
	if !isTerminal(out) {
		return svc.Scheduler.RunNow(ctx)
	}

	type result struct {
		report *domain.SyncReport
		err    error
	}
	done := make(chan result, 1)
	go func() {
		report, err := svc.Scheduler.RunNow(ctx)
		done <- result{report, err}
	}()

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case res := <-done:
			fmt.Fprint(out, "\r\033[K")
			return res.report, res.err
		case <-ticker.C:
			status := svc.Sync.Status()
			if status.Running {
				fmt.Fprintf(out, "\r\033[K%s", progressLine(status))
			}
		}
	}
}

func progressLine(status driving.SyncStatus) string {
	return styles.Muted.Render(fmt.Sprintf("%s page %d: %d documents, %d errors",
		status.Phase, status.Page, status.DocumentsProcessed, status.ErrorCount))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// writeReport prints a summary of a finished cycle.
func writeReport(w io.Writer, r *domain.SyncReport) {
	cursor := styles.Warning.Render("not advanced")
	if r.CursorAdvanced {
		cursor = styles.Success.Render("advanced to " + r.CursorAdvancedTo.Format(time.RFC3339))
	}
	failures := fmt.Sprintf("%d detail, %d persist", r.DetailFailures, r.PersistFailures)
	if r.Failures() > 0 {
		failures = styles.Error.Render(failures)
	}

	writeFields(w, "Sync "+r.RunID, []field{
		{"Window", fmt.Sprintf("%s to %s", r.Window.From.Format(time.RFC3339), r.Window.To.Format(time.RFC3339))},
		{"Pages", fmt.Sprint(r.Pages)},
		{"Documents seen", fmt.Sprint(r.DocumentsSeen)},
		{"Created", fmt.Sprint(r.Created)},
		{"Updated", fmt.Sprint(r.Updated)},
		{"Unchanged", fmt.Sprint(r.Unchanged)},
		{"Failures", failures},
		{"Cursor", cursor},
		{"Duration", r.Duration.Round(time.Millisecond).String()},
	})
}
