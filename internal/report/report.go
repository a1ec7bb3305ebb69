// Package report merges pass/fail/duration results from multiple suites
// into one summary with trend deltas. It has no safety obligations:
// failures here are warnings, never fatal.
package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/jkaninda/testguard/internal/metrics"
)

// SuiteResult is the normalized counter shape every input collapses to
// before folding into the running summary.
type SuiteResult struct {
	Suite    string        `json:"suite"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// Summary is the JSON test-summary record handed to the external report
// renderer.
type Summary struct {
	TotalPassed  int                `json:"total_passed"`
	TotalFailed  int                `json:"total_failed"`
	TotalSkipped int                `json:"total_skipped"`
	Suites       []SuiteResult      `json:"suites"`
	SuccessRate  float64            `json:"success_rate"`
	Duration     time.Duration      `json:"duration"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
}

// Aggregator folds heterogeneous suite results into one summary.
type Aggregator struct {
	results []SuiteResult
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewAggregator creates an Aggregator.
func NewAggregator(logger *slog.Logger, m *metrics.Metrics) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{logger: logger, metrics: m}
}

// Add folds one normalized result into the summary.
func (a *Aggregator) Add(r SuiteResult) {
	a.results = append(a.results, r)
	a.metrics.RecordSuite(outcome(r))
}

// AddJSON accepts a structured result object:
//
//	{"suite":"x","passed":3,"failed":1,"skipped":0,"duration_ms":1200}
func (a *Aggregator) AddJSON(data []byte) error {
	var raw struct {
		Suite      string `json:"suite"`
		Passed     int    `json:"passed"`
		Failed     int    `json:"failed"`
		Skipped    int    `json:"skipped"`
		DurationMS int64  `json:"duration_ms"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing JSON suite result: %w", err)
	}
	if raw.Suite == "" {
		return fmt.Errorf("JSON suite result has no suite name")
	}
	a.Add(SuiteResult{
		Suite:    raw.Suite,
		Passed:   raw.Passed,
		Failed:   raw.Failed,
		Skipped:  raw.Skipped,
		Duration: time.Duration(raw.DurationMS) * time.Millisecond,
	})
	return nil
}

// textSummaryRe matches the text form emitted by older suite wrappers,
// e.g. "registry-backup: Passed: 12 Failed: 0 Skipped: 3".
var textSummaryRe = regexp.MustCompile(`^\s*([\w.-]+):\s*Passed:\s*(\d+)\s*,?\s*Failed:\s*(\d+)\s*,?\s*Skipped:\s*(\d+)\s*$`)

// AddText accepts a parsed text summary line.
func (a *Aggregator) AddText(line string) error {
	m := textSummaryRe.FindStringSubmatch(line)
	if m == nil {
		return fmt.Errorf("unrecognized text summary: %q", line)
	}
	passed, _ := strconv.Atoi(m[2])
	failed, _ := strconv.Atoi(m[3])
	skipped, _ := strconv.Atoi(m[4])
	a.Add(SuiteResult{Suite: m[1], Passed: passed, Failed: failed, Skipped: skipped})
	return nil
}

// AddLogExport accepts a structured JSONL log export, one event per line:
//
//	{"suite":"x","case":"restores registry","outcome":"pass","duration_ms":40}
//
// Events are folded per suite. Unknown outcomes count as failed — an
// event we cannot interpret must not inflate the pass count.
func (a *Aggregator) AddLogExport(r io.Reader) error {
	type event struct {
		Suite      string `json:"suite"`
		Outcome    string `json:"outcome"`
		DurationMS int64  `json:"duration_ms"`
	}

	perSuite := make(map[string]*SuiteResult)
	var order []string

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var ev event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			return fmt.Errorf("log export line %d: %w", line, err)
		}
		if ev.Suite == "" {
			return fmt.Errorf("log export line %d: no suite name", line)
		}

		sr, ok := perSuite[ev.Suite]
		if !ok {
			sr = &SuiteResult{Suite: ev.Suite}
			perSuite[ev.Suite] = sr
			order = append(order, ev.Suite)
		}
		switch ev.Outcome {
		case "pass":
			sr.Passed++
		case "skip":
			sr.Skipped++
		default:
			sr.Failed++
		}
		sr.Duration += time.Duration(ev.DurationMS) * time.Millisecond
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading log export: %w", err)
	}

	for _, suite := range order {
		a.Add(*perSuite[suite])
	}
	return nil
}

// Summarize folds the collected results into the final summary. Suites
// are reported in a stable order regardless of arrival order.
func (a *Aggregator) Summarize() Summary {
	s := Summary{Suites: make([]SuiteResult, len(a.results))}
	copy(s.Suites, a.results)
	sort.Slice(s.Suites, func(i, j int) bool { return s.Suites[i].Suite < s.Suites[j].Suite })

	for _, r := range s.Suites {
		s.TotalPassed += r.Passed
		s.TotalFailed += r.Failed
		s.TotalSkipped += r.Skipped
		s.Duration += r.Duration
	}
	if executed := s.TotalPassed + s.TotalFailed; executed > 0 {
		s.SuccessRate = float64(s.TotalPassed) / float64(executed)
	}
	return s
}

func outcome(r SuiteResult) string {
	switch {
	case r.Failed == 0:
		return "passed"
	case r.Passed == 0:
		return "failed"
	default:
		return "mixed"
	}
}
