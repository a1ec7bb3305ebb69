// Package mockdata separates the two kinds of fixture data the suite
// uses: static mock data checked into the repository and never mutated by
// automated resets, and dynamic mock data generated fresh on each run
// inside the container. Resets are scoped to dynamic roots only and are
// guarded by the container environment lock.
package mockdata

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jkaninda/testguard/internal/envdetect"
	"github.com/jkaninda/testguard/internal/metrics"
	"github.com/jkaninda/testguard/internal/pathguard"
)

// AllComponents selects every known component for Reset.
const AllComponents = "*"

// Component pairs the static and dynamic fixture roots of one mocked
// subsystem. DynamicRoot is empty outside a containerized run.
type Component struct {
	Name        string `json:"name"`
	StaticRoot  string `json:"static_root"`
	DynamicRoot string `json:"dynamic_root,omitempty"`
}

// HasDynamic reports whether a dynamic root is defined for this run.
func (c Component) HasDynamic() bool { return c.DynamicRoot != "" }

// DynamicRootEnv returns the per-component environment variable that
// supplies the dynamic root, e.g. TESTGUARD_MOCK_REGISTRY_DYNAMIC.
func DynamicRootEnv(component string) string {
	name := strings.ToUpper(component)
	name = strings.ReplaceAll(name, "-", "_")
	return "TESTGUARD_MOCK_" + name + "_DYNAMIC"
}

// ResetOptions controls Reset behavior.
type ResetOptions struct {
	// SkipSafety bypasses the environment lock assertion. Used only by
	// the safety layer's own test suite.
	SkipSafety bool
}

// Partition resolves components and performs dynamic-only resets.
type Partition struct {
	staticBase string
	logger     *slog.Logger
	metrics    *metrics.Metrics

	// classify is re-invoked live on every lock assertion; it is
	// injectable for tests.
	classify func() envdetect.Classification
}

// New creates a Partition with static fixtures under staticBase
// (conventionally <repo>/testdata/mock).
func New(staticBase string, logger *slog.Logger, m *metrics.Metrics) *Partition {
	if logger == nil {
		logger = slog.Default()
	}
	return &Partition{
		staticBase: staticBase,
		logger:     logger,
		metrics:    m,
		classify:   envdetect.Classify,
	}
}

// Get resolves a component. The static root is the fixed,
// repository-relative location; the dynamic root comes from the
// per-component environment variable and is only honored when the live
// classification is Containerized.
func (p *Partition) Get(name string) (Component, error) {
	if strings.TrimSpace(name) == "" {
		return Component{}, fmt.Errorf("component name is required")
	}

	c := Component{
		Name:       name,
		StaticRoot: filepath.Join(p.staticBase, name),
	}

	if dyn := os.Getenv(DynamicRootEnv(name)); dyn != "" {
		if p.classify().Kind == envdetect.Containerized {
			c.DynamicRoot = dyn
		} else {
			p.logger.Warn("dynamic mock root set outside a container; ignoring",
				slog.String("component", name),
				slog.String("var", DynamicRootEnv(name)),
			)
		}
	}

	return c, nil
}

// List returns the component names present under the static base.
func (p *Partition) List() ([]string, error) {
	entries, err := os.ReadDir(p.staticBase)
	if err != nil {
		return nil, fmt.Errorf("reading static mock base %s: %w", p.staticBase, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Reset deletes the dynamic data of the named components. Pass
// AllComponents (or an empty slice) to reset every component under the
// static base. Component-scoped and full resets share this one routine.
//
// The environment lock is asserted first unless opts.SkipSafety. Static
// roots are never touched: a reset with no dynamic root defined refuses
// rather than falling back to the static root or the local filesystem.
func (p *Partition) Reset(names []string, opts ResetOptions) error {
	if len(names) == 0 || (len(names) == 1 && names[0] == AllComponents) {
		all, err := p.List()
		if err != nil {
			return err
		}
		names = all
	}

	for _, name := range names {
		comp, err := p.Get(name)
		if err != nil {
			return err
		}
		if !comp.HasDynamic() {
			return fmt.Errorf("component %s: no dynamic root defined; refusing dynamic reset outside a containerized run", name)
		}

		if !opts.SkipSafety {
			lock, err := LoadLock(comp.DynamicRoot)
			if err != nil {
				return err
			}
			if err := lock.Assert(comp.DynamicRoot, p.classify); err != nil {
				p.metrics.RecordViolation(string(pathguard.StaleOrInvalidLock))
				return err
			}
		}

		if err := clearDynamic(comp.DynamicRoot); err != nil {
			return fmt.Errorf("resetting %s: %w", name, err)
		}

		p.metrics.RecordReset(name)
		p.logger.Info("dynamic mock data reset",
			slog.String("component", name),
			slog.String("dynamic_root", comp.DynamicRoot),
		)
	}
	return nil
}

// clearDynamic removes everything under root except the lock directory —
// the lock is scoped to the container lifetime and survives resets.
func clearDynamic(root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading dynamic root: %w", err)
	}
	for _, e := range entries {
		if e.Name() == lockDirName {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
			return fmt.Errorf("removing %s: %w", e.Name(), err)
		}
	}
	return nil
}
