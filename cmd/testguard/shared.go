package main

import (
	"fmt"
	"log/slog"
	"os"

	goutils "github.com/jkaninda/go-utils"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jkaninda/testguard/internal/config"
	"github.com/jkaninda/testguard/internal/metrics"
	"github.com/jkaninda/testguard/internal/report"
)

// newLogger creates the JSON logger used by every command. Logs go to
// stderr so that stdout stays machine-readable for the JSON artifacts
// the commands print.
func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// loadConfig resolves the config: explicit --config flag, then the
// TESTGUARD_CONFIG env var, then built-in defaults.
func loadConfig(flagPath string) (*config.Config, error) {
	path := goutils.Env("TESTGUARD_CONFIG", flagPath)
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// initMetrics creates the harness registry when metrics are enabled.
// Both returns are nil otherwise; every recording path tolerates that.
func initMetrics(cfg *config.Config) (*prometheus.Registry, *metrics.Metrics) {
	if !cfg.MetricsEnabled() {
		return nil, nil
	}
	reg := prometheus.NewRegistry()
	return reg, metrics.New(reg)
}

// openHistory opens the run-history store for the configured backend.
func openHistory(cfg *config.Config, logger *slog.Logger) (*report.Store, error) {
	switch driver := cfg.Storage.StorageDriver(); driver {
	case report.DriverSQLite:
		return report.OpenStore(report.StoreConfig{
			Driver: report.DriverSQLite,
			Path:   cfg.HistoryPath(),
		}, logger)
	case report.DriverPostgres:
		return report.OpenStore(report.StoreConfig{
			Driver: report.DriverPostgres,
			DSN:    cfg.Storage.Postgres.DSN,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
