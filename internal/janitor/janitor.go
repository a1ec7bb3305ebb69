// Package janitor sweeps orphaned sandboxes out of the temp root on a
// cron schedule. A sandbox is orphaned when the run that created it died
// without cleanup; the sweeper only ever touches marker-prefixed
// directories inside the temp root, so a misconfigured root cannot make
// it destructive.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jkaninda/testguard/internal/metrics"
	"github.com/jkaninda/testguard/internal/pathguard"
)

// Janitor removes sandbox directories older than MaxAge from the temp root.
type Janitor struct {
	tempRoot string
	marker   string
	maxAge   time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics

	schedule cron.Schedule

	// remove is injectable for failure-path tests.
	remove func(path string) error
}

// New creates a Janitor. The schedule is a standard five-field cron
// expression.
func New(tempRoot, marker, schedule string, maxAge time.Duration, logger *slog.Logger, m *metrics.Metrics) (*Janitor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if marker == "" {
		marker = pathguard.DefaultSuiteMarker
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid janitor schedule %q: %w", schedule, err)
	}

	return &Janitor{
		tempRoot: tempRoot,
		marker:   marker,
		maxAge:   maxAge,
		logger:   logger,
		metrics:  m,
		schedule: sched,
		remove:   os.RemoveAll,
	}, nil
}

// Start begins the sweep loop. Returns a cancel function.
func (j *Janitor) Start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		j.logger.InfoContext(ctx, "janitor started",
			slog.String("temp_root", j.tempRoot),
			slog.String("max_age", j.maxAge.String()),
		)

		for {
			next := j.schedule.Next(time.Now())
			timer := time.NewTimer(time.Until(next))

			select {
			case <-ctx.Done():
				timer.Stop()
				j.logger.Info("janitor stopped")
				return
			case now := <-timer.C:
				if _, err := j.Sweep(now); err != nil {
					j.logger.ErrorContext(ctx, "sweep failed",
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}()

	return cancel
}

// Sweep removes orphaned sandboxes once and returns how many it deleted.
// Entries without the suite marker prefix, or newer than MaxAge, are
// left alone. Individual removal failures are logged and counted but do
// not abort the sweep.
func (j *Janitor) Sweep(now time.Time) (int, error) {
	entries, err := os.ReadDir(j.tempRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading temp root %s: %w", j.tempRoot, err)
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), j.marker) {
			continue
		}

		path := filepath.Join(j.tempRoot, entry.Name())
		if !pathguard.Contains(j.tempRoot, path) || path == j.tempRoot {
			continue
		}

		fi, err := entry.Info()
		if err != nil {
			continue
		}
		age := now.Sub(fi.ModTime())
		if age < j.maxAge {
			continue
		}

		if err := j.remove(path); err != nil {
			j.logger.Error("failed to remove orphaned sandbox",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			j.metrics.RecordCleanupFailure()
			continue
		}

		j.logger.Info("removed orphaned sandbox",
			slog.String("path", path),
			slog.String("age", age.Truncate(time.Second).String()),
		)
		j.metrics.RecordSandboxRemoved()
		removed++
	}

	return removed, nil
}
