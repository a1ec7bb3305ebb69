package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jkaninda/testguard/internal/metrics"
	"github.com/jkaninda/testguard/internal/report"
)

var (
	reportConfigPath string
	reportOutPath    string
	reportTrend      bool
	reportNoHistory  bool
)

// historyWindow is how many past runs feed the trend computation.
const historyWindow = 20

var reportCmd = &cobra.Command{
	Use:   "report FILE...",
	Short: "Aggregate suite results into one summary",
	Long: `Fold per-suite result files into a single JSON summary. Input format
is detected per file: .json for structured suite results, .jsonl for
structured log exports, anything else for text summary lines.

The summary is appended to the run history and, with --trend, compared
against the previous run. Reporting failures are warnings: a run is
never failed by its own bookkeeping.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportConfigPath, "config", "", "path to config file")
	reportCmd.Flags().StringVarP(&reportOutPath, "out", "o", "", "write the summary to a file instead of stdout")
	reportCmd.Flags().BoolVar(&reportTrend, "trend", false, "include the trend against the previous run")
	reportCmd.Flags().BoolVar(&reportNoHistory, "no-history", false, "do not touch the run history store")
}

// reportOutput is the JSON artifact printed by the report command.
type reportOutput struct {
	Summary report.Summary `json:"summary"`
	Trend   *report.Trend  `json:"trend,omitempty"`
}

func runReport(_ *cobra.Command, args []string) error {
	logger := newLogger()

	cfg, err := loadConfig(reportConfigPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	reg, m := initMetrics(cfg)

	agg := report.NewAggregator(logger, m)
	for _, path := range args {
		if err := addResultFile(agg, path); err != nil {
			return err
		}
	}

	sum := agg.Summarize()
	if reg != nil {
		snapshot, err := metrics.Snapshot(reg)
		if err != nil {
			logger.Warn("metrics snapshot failed", slog.String("error", err.Error()))
		} else {
			sum.Metrics = snapshot
		}
	}

	out := reportOutput{Summary: sum}

	if !reportNoHistory {
		store, err := openHistory(cfg, logger)
		if err != nil {
			logger.Warn("run history unavailable", slog.String("error", err.Error()))
		} else {
			defer func() { _ = store.Close() }()
			if err := store.Save(sum); err != nil {
				logger.Warn("saving run summary failed", slog.String("error", err.Error()))
			}
			if reportTrend {
				history, err := store.History(historyWindow)
				if err != nil {
					logger.Warn("loading run history failed", slog.String("error", err.Error()))
				} else {
					t := report.ComputeTrend(history)
					out.Trend = &t
				}
			}
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	if reportOutPath != "" {
		if err := os.WriteFile(reportOutPath, append(data, '\n'), 0600); err != nil {
			return fmt.Errorf("writing summary to %s: %w", reportOutPath, err)
		}
		return nil
	}
	fmt.Println(string(data))
	return nil
}

// addResultFile folds one result file into the aggregator, dispatching
// on file extension.
func addResultFile(agg *report.Aggregator, path string) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		if err := agg.AddJSON(data); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	case ".jsonl":
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		defer func() { _ = f.Close() }()
		if err := agg.AddLogExport(f); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	default:
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		defer func() { _ = f.Close() }()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if err := agg.AddText(line); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
	}
	return nil
}
