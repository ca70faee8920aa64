package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/etasync/internal/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run sync cycles on the configured interval",
	Long: `Runs the scheduler in the foreground. A cycle starts immediately if one is
due, then every sync interval. Cycles never overlap. SIGINT or SIGTERM stops
the worker after the cycle in flight has been recorded.`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := openServices(ctx, ServiceOptions{})
	if err != nil {
		return err
	}

	cmd.Println(styles.Title.Render("etasync worker started") + styles.Muted.Render(" (Ctrl+C to stop)"))

	err = svc.Scheduler.Start(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("shutdown requested")
		err = nil
	}
	return errors.Join(err, svc.Scheduler.Stop(), svc.Close())
}
