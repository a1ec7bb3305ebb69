package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jkaninda/testguard/internal/mockdata"
)

var (
	resetConfigPath string
	resetComponents []string
	resetAll        bool
	resetSkipSafety bool

	lockConfigPath string
	lockComponents []string
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset dynamic mock data inside the container",
	Long: `Delete the dynamic mock data of the named components so the next suite
starts from a clean state. Static mock data checked into the repository
is never touched. The reset asserts the container environment lock
first and refuses outside a containerized run.`,
	RunE: runReset,
}

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Acquire the container environment lock for mock components",
	Long: `Write a fresh lock token under the dynamic root of each named
component. Run once during container provisioning, after the dynamic
roots exist; the lock authorizes all subsequent dynamic resets for the
container's lifetime.`,
	RunE: runLock,
}

func init() {
	resetCmd.Flags().StringVar(&resetConfigPath, "config", "", "path to config file")
	resetCmd.Flags().StringSliceVar(&resetComponents, "component", nil, "component to reset (repeatable)")
	resetCmd.Flags().BoolVar(&resetAll, "all", false, "reset every component under the static base")
	resetCmd.Flags().BoolVar(&resetSkipSafety, "skip-safety", false, "bypass the environment lock assertion (harness self-tests only)")

	lockCmd.Flags().StringVar(&lockConfigPath, "config", "", "path to config file")
	lockCmd.Flags().StringSliceVar(&lockComponents, "component", nil, "component to lock (repeatable, required)")
	_ = lockCmd.MarkFlagRequired("component")
}

func runReset(_ *cobra.Command, _ []string) error {
	logger := newLogger()

	cfg, err := loadConfig(resetConfigPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	_, m := initMetrics(cfg)

	names := resetComponents
	if resetAll {
		names = []string{mockdata.AllComponents}
	}
	if len(names) == 0 {
		return fmt.Errorf("nothing to reset: pass --component or --all")
	}

	p := mockdata.New(cfg.MockStaticRoot, logger, m)
	return p.Reset(names, mockdata.ResetOptions{SkipSafety: resetSkipSafety})
}

func runLock(_ *cobra.Command, _ []string) error {
	logger := newLogger()

	cfg, err := loadConfig(lockConfigPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	p := mockdata.New(cfg.MockStaticRoot, logger, nil)
	for _, name := range lockComponents {
		comp, err := p.Get(name)
		if err != nil {
			return err
		}
		if !comp.HasDynamic() {
			return fmt.Errorf("component %s: no dynamic root defined; the lock only exists inside a containerized run", name)
		}
		lock, err := mockdata.Acquire(comp.DynamicRoot)
		if err != nil {
			return fmt.Errorf("acquiring lock for %s: %w", name, err)
		}
		logger.Info("environment lock acquired",
			slog.String("component", name),
			slog.String("token", lock.Token),
			slog.String("dir", lock.Dir),
		)
	}
	return nil
}
