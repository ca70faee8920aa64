package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/etasync/internal/core/domain"
)

var cursorCmd = &cobra.Command{
	Use:   "cursor",
	Short: "Inspect or move the sync cursor",
	Long: `The cursor is the instant up to which documents have been synced. The next
cycle searches from the cursor to the time it starts.`,
}

var cursorShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the sync cursor",
	Args:  cobra.NoArgs,
	RunE:  runCursorShow,
}

var cursorSetCmd = &cobra.Command{
	Use:   "set [RFC3339 time]",
	Short: "Move the sync cursor",
	Long: `Sets the cursor unconditionally, for example to re-sync a past period.
This is the only way the cursor can move backwards.`,
	Args: cobra.ExactArgs(1),
	RunE: runCursorSet,
}

func init() {
	cursorCmd.AddCommand(cursorShowCmd)
	cursorCmd.AddCommand(cursorSetCmd)
	rootCmd.AddCommand(cursorCmd)
}

func runCursorShow(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	svc, err := openServices(ctx, ServiceOptions{})
	if err != nil {
		return err
	}
	defer svc.Close() //nolint:errcheck

	ts, err := svc.Sync.Cursor(ctx)
	if err != nil {
		return fmt.Errorf("read cursor: %w", err)
	}
	cmd.Println(ts.UTC().Format(time.RFC3339Nano))
	return nil
}

func runCursorSet(cmd *cobra.Command, args []string) error {
	ts, err := time.Parse(time.RFC3339, args[0])
	if err != nil {
		return fmt.Errorf("%w: cursor must be an RFC3339 time: %v", domain.ErrInvalidInput, err)
	}

	ctx := context.Background()
	svc, err := openServices(ctx, ServiceOptions{})
	if err != nil {
		return err
	}
	defer svc.Close() //nolint:errcheck

	if err := svc.Sync.ResetCursor(ctx, ts); err != nil {
		return err
	}
	cmd.Printf("Cursor set to %s\n", ts.UTC().Format(time.RFC3339))
	return nil
}
