package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mailmirror/internal/api"
	"mailmirror/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run mailmirror as a daemon with scheduled sync",
	Long: `Run mailmirror as a long-running daemon that syncs sources on schedule.

The daemon runs in the foreground and provides:
  - HTTP API server on the configured port (default: 8080)
  - Scheduled incremental syncs based on account config

Configure schedules in config.toml:
  [[accounts]]
  source = "you@example.com"
  schedule = "0 2 * * *"   # 2am daily (cron format)
  enabled = true

Cron format: minute hour day-of-month month day-of-week
  Examples:
    0 2 * * *     = 2:00 AM daily
    */15 * * * *  = Every 15 minutes
    0 0 * * 0     = Midnight on Sundays

Use Ctrl+C to stop the daemon gracefully.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	engines := newEngineSet(s)

	syncFunc := func(ctx context.Context, source string) error {
		res, err := engines.Sync(ctx, source, 0, nil)
		if err != nil {
			return err
		}
		logger.Info("scheduled sync finished",
			"source", source,
			"added", res.Added,
			"deleted", res.Deleted,
			"errors", res.Errors)
		return nil
	}

	sched := scheduler.New(syncFunc).WithLogger(logger)
	count, errs := sched.AddSourcesFromConfig(cfg)
	for _, err := range errs {
		logger.Error("failed to schedule source", "error", err)
	}
	if count == 0 && len(cfg.ScheduledAccounts()) > 0 {
		return fmt.Errorf("no sources could be scheduled")
	}
	sched.Start()

	apiServer := api.NewServer(cfg, engines, s, logger)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- apiServer.Start()
	}()

	logger.Info("daemon running",
		"port", cfg.Server.APIPort,
		"scheduled_sources", count)

	ctx := cmd.Context()
	select {
	case err := <-serverErr:
		<-sched.Stop().Done()
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api server shutdown", "error", err)
	}

	select {
	case <-sched.Stop().Done():
	case <-time.After(30 * time.Second):
		logger.Warn("scheduler did not stop in time")
	}

	return ctx.Err()
}
