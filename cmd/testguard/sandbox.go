package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jkaninda/testguard/internal/envdetect"
	"github.com/jkaninda/testguard/internal/gate"
	"github.com/jkaninda/testguard/internal/pathguard"
	"github.com/jkaninda/testguard/internal/provision"
	"github.com/jkaninda/testguard/internal/sandbox"
)

var (
	sandboxConfigPath  string
	sandboxSuite       string
	sandboxForce       bool
	sandboxSkipCleanup bool
)

var sandboxCmd = &cobra.Command{
	Use:   "sandbox --suite NAME [-- command args...]",
	Short: "Provision an isolated sandbox and optionally run a suite inside it",
	Long: `Provision an isolated per-suite sandbox under the managed temp root,
publish the destructive-permission decision, and run the given suite
command with the sandbox exported through environment variables. The
sandbox is torn down when the command finishes.

Without a command, the sandbox is provisioned, its handle printed as
JSON, and the directory left in place for an out-of-process suite; the
janitor removes it once it ages out.`,
	RunE: runSandbox,
}

func init() {
	sandboxCmd.Flags().StringVar(&sandboxConfigPath, "config", "", "path to config file")
	sandboxCmd.Flags().StringVar(&sandboxSuite, "suite", "", "suite name (required)")
	sandboxCmd.Flags().BoolVar(&sandboxForce, "force-destructive", false, "opt in to destructive test cases on an interactive machine")
	sandboxCmd.Flags().BoolVar(&sandboxSkipCleanup, "skip-cleanup", false, "leave the sandbox in place after the command finishes")
	_ = sandboxCmd.MarkFlagRequired("suite")
}

func runSandbox(_ *cobra.Command, args []string) error {
	logger := newLogger()

	cfg, err := loadConfig(sandboxConfigPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	_, m := initMetrics(cfg)

	cls := envdetect.Classify()
	logger.Info("environment classified",
		slog.String("kind", cls.Kind.String()),
		slog.Bool("target_platform", cls.TargetPlatform),
	)

	// Readiness waits for container dependencies, before any sandbox work.
	if p := cfg.Provision; p != nil {
		waiter := provision.NewWaiter(logger)
		policy := provision.Policy{Interval: p.Interval(), MaxAttempts: p.Attempts()}
		for _, addr := range p.Services {
			if err := waiter.ForService(addr, policy); err != nil {
				return err
			}
		}
		for _, path := range p.Files {
			if err := waiter.ForFile(path, policy); err != nil {
				return err
			}
		}
	}

	validator := pathguard.New(cfg.Rules(), logger)
	mgr := sandbox.NewManager(cfg.TempRoot, validator, logger, m)

	h, err := mgr.Initialize(sandboxSuite, cls)
	if err != nil {
		return err
	}

	allowed := gate.Evaluate(cls, cls.AuthorizedOverride || sandboxForce)
	if err := gate.Publish(allowed); err != nil {
		return err
	}
	logger.Info("destructive permission published", slog.Bool("allowed", allowed))

	if len(args) == 0 {
		out, err := json.MarshalIndent(h, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding sandbox handle: %w", err)
		}
		fmt.Println(string(out))
		logger.Info("sandbox left in place for out-of-process suite",
			slog.String("root", h.Root),
		)
		return nil
	}

	runErr := runSuiteCommand(args, h, allowed)

	if !sandboxSkipCleanup {
		if err := mgr.Remove(h); err != nil {
			var cf *sandbox.CleanupFailure
			if errors.As(err, &cf) {
				// Non-fatal: surface it, let the run finish.
				logger.Error("cleanup failure", slog.String("error", cf.Error()))
			} else {
				return err
			}
		}
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		os.Exit(exitErr.ExitCode())
	}
	return runErr
}

// runSuiteCommand executes the suite with the sandbox exported through
// TESTGUARD_SANDBOX_* variables.
func runSuiteCommand(args []string, h *sandbox.Handle, destructiveAllowed bool) error {
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	env := append(os.Environ(), "TESTGUARD_SANDBOX_ROOT="+h.Root)
	for name, path := range h.Subpaths {
		env = append(env, "TESTGUARD_SANDBOX_"+sandboxEnvName(name)+"="+path)
	}
	value := "0"
	if destructiveAllowed {
		value = "1"
	}
	env = append(env, gate.EnvDestructiveAllowed+"="+value)
	cmd.Env = env

	return cmd.Run()
}

func sandboxEnvName(dir string) string {
	return strings.ReplaceAll(strings.ToUpper(dir), "-", "_")
}
