package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mailmirror/internal/sync"
)

var syncLimit int

var syncCmd = &cobra.Command{
	Use:   "sync <source>",
	Short: "Synchronize a source with its remote mailbox",
	Long: `Synchronize the local replica of a source with its remote mailbox.

The first sync for a source downloads the full mailbox (newest first) and
records a change cursor. Subsequent syncs replay only the changes since that
cursor. If the remote no longer retains the cursor, a full sync runs
automatically.

Use --limit to cap how many messages the initial full sync downloads; the
remainder can be fetched later with 'sync-more'.

Examples:
  mailmirror sync you@example.com
  mailmirror sync you@example.com --limit 1000`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSyncCommand(cmd.Context(), args[0], func(ctx context.Context, e *sync.Engine, source string) (*sync.Result, error) {
			return e.Sync(ctx, source, syncLimit, &CLIProgress{})
		})
	},
}

var syncMoreLimit int

var syncMoreCmd = &cobra.Command{
	Use:   "sync-more <source>",
	Short: "Continue a source's historical backfill",
	Long: `Continue downloading older messages left behind by a limited full sync.

Backfill resumes from where the previous run stopped and does not disturb the
change cursor, so incremental syncs keep working throughout. A source with no
remaining backfill is a no-op.

Examples:
  mailmirror sync-more you@example.com
  mailmirror sync-more you@example.com --limit 500`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSyncCommand(cmd.Context(), args[0], func(ctx context.Context, e *sync.Engine, source string) (*sync.Result, error) {
			return e.SyncMore(ctx, source, syncMoreLimit, &CLIProgress{})
		})
	},
}

func init() {
	syncCmd.Flags().IntVar(&syncLimit, "limit", 0, "max messages to download on a full sync (0 = all)")
	syncMoreCmd.Flags().IntVar(&syncMoreLimit, "limit", 0, "max messages to download (0 = all remaining)")
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(syncMoreCmd)
}

// runSyncCommand opens the store, builds an engine for the source, and runs
// the given operation with interrupt-aware error reporting.
func runSyncCommand(ctx context.Context, source string, run func(context.Context, *sync.Engine, string) (*sync.Result, error)) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	engine, err := newEngine(ctx, s, source)
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := run(ctx, engine, source)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			fmt.Println("\nInterrupted. Progress so far is kept; run again to continue.")
			return err
		}
		if errors.Is(err, sync.ErrSyncInProgress) {
			return fmt.Errorf("a sync for %s is already running", source)
		}
		return fmt.Errorf("sync %s: %w", source, err)
	}

	fmt.Println()
	fmt.Println("Sync complete!")
	fmt.Printf("  Duration: %s\n", time.Since(start).Round(time.Second))
	fmt.Printf("  Added:    %d\n", res.Added)
	if res.Deleted > 0 {
		fmt.Printf("  Deleted:  %d\n", res.Deleted)
	}
	if res.Errors > 0 {
		fmt.Printf("  Errors:   %d (failed fetches, will retry next run)\n", res.Errors)
	}
	return nil
}
