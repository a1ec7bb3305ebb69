package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkaninda/testguard/internal/janitor"
)

var (
	janitorConfigPath string
	janitorOnce       bool
)

var janitorCmd = &cobra.Command{
	Use:   "janitor",
	Short: "Sweep orphaned sandboxes out of the temp root",
	Long: `Remove sandbox directories left behind by runs that died without
cleanup. Only marker-prefixed directories inside the managed temp root
are ever touched, and only once they are older than the configured
maximum age. Runs on a cron schedule, or once with --once.`,
	RunE: runJanitor,
}

func init() {
	janitorCmd.Flags().StringVar(&janitorConfigPath, "config", "", "path to config file")
	janitorCmd.Flags().BoolVar(&janitorOnce, "once", false, "sweep once and exit")
}

func runJanitor(_ *cobra.Command, _ []string) error {
	logger := newLogger()

	cfg, err := loadConfig(janitorConfigPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	_, m := initMetrics(cfg)

	j, err := janitor.New(
		cfg.TempRoot,
		cfg.Rules().SuiteMarker,
		cfg.Janitor.CronSchedule(),
		cfg.Janitor.MaxAge(),
		logger,
		m,
	)
	if err != nil {
		return err
	}

	if janitorOnce {
		removed, err := j.Sweep(time.Now())
		if err != nil {
			return err
		}
		logger.Info("sweep finished", slog.Int("removed", removed))
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cancel := j.Start(ctx)
	defer cancel()

	<-ctx.Done()
	return nil
}
