// Package sandbox provisions and tears down the isolated, per-suite
// directory tree that test bodies work inside. Every directory is checked
// by the path validator before anything is created, and teardown deletes
// exactly the subtree the manager created — verified by a containment
// check immediately before deletion.
package sandbox

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jkaninda/testguard/internal/envdetect"
	"github.com/jkaninda/testguard/internal/metrics"
	"github.com/jkaninda/testguard/internal/pathguard"
)

// Fixed subdirectory taxonomy. The names are shared with the test bodies
// that consume the sandbox.
const (
	DirRestoreTarget = "restore-target" // where restore operations land
	DirBackupSource  = "backup-source"  // seeded configuration to back up
	DirWork          = "work"           // scratch area
	DirState         = "state"          // state persisted across cases within one suite
)

// Subdirs lists the taxonomy in creation order.
var Subdirs = []string{DirRestoreTarget, DirBackupSource, DirWork, DirState}

// Handle describes one provisioned sandbox. It is owned exclusively by
// the suite that created it and is destroyed at suite end.
type Handle struct {
	Suite     string            `json:"suite"`
	Root      string            `json:"root"`
	Subpaths  map[string]string `json:"subpaths"`
	CreatedAt time.Time         `json:"created_at"`
}

// Subpath returns the named taxonomy directory.
func (h *Handle) Subpath(name string) string {
	return h.Subpaths[name]
}

// CleanupFailure is non-fatal: a teardown step that could not remove a
// directory. The run is allowed to finish, but the failure is surfaced
// prominently so orphaned sandboxes are discoverable.
type CleanupFailure struct {
	Path string
	Err  error
}

func (f *CleanupFailure) Error() string {
	return fmt.Sprintf("cleanup failure: could not remove %s: %v", f.Path, f.Err)
}

func (f *CleanupFailure) Unwrap() error { return f.Err }

// Manager allocates and removes suite sandboxes under a single temp root.
type Manager struct {
	tempRoot  string
	validator *pathguard.Validator
	logger    *slog.Logger
	metrics   *metrics.Metrics

	// now and pid are injectable for collision tests.
	now func() time.Time
	pid func() int
}

// NewManager creates a Manager rooted at tempRoot.
func NewManager(tempRoot string, validator *pathguard.Validator, logger *slog.Logger, m *metrics.Metrics) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		tempRoot:  tempRoot,
		validator: validator,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
		pid:       os.Getpid,
	}
}

// Initialize provisions a sandbox for the named suite.
//
// The root name combines the suite name with a time- and process-derived
// suffix: suites running as parallel OS processes get distinct roots
// structurally, without any shared coordination. The root and every
// subpath are validated before anything is created, and each directory is
// re-verified on disk afterwards.
func (m *Manager) Initialize(suite string, cls envdetect.Classification) (*Handle, error) {
	if strings.TrimSpace(suite) == "" {
		return nil, fmt.Errorf("suite name is required")
	}

	createdAt := m.now().UTC()
	name := fmt.Sprintf("%s%s-%s-%d",
		pathguard.DefaultSuiteMarker,
		sanitizeSuite(suite),
		createdAt.Format("20060102T150405.000000000"),
		m.pid(),
	)
	root := filepath.Join(m.tempRoot, name)

	subpaths := make(map[string]string, len(Subdirs))
	paths := []string{root}
	for _, d := range Subdirs {
		p := filepath.Join(root, d)
		subpaths[d] = p
		paths = append(paths, p)
	}

	// All verdicts must be Safe before the first directory is created.
	if _, err := m.validator.Validate(paths, cls); err != nil {
		return nil, err
	}

	for _, p := range paths {
		if err := os.MkdirAll(p, 0750); err != nil {
			return nil, fmt.Errorf("creating sandbox directory %s: %w", p, err)
		}
	}

	// Post-check: a directory we just created must exist on disk.
	for _, p := range paths {
		if err := m.validator.ConfirmExists(p); err != nil {
			return nil, err
		}
	}

	m.metrics.RecordSandboxCreated()
	m.logger.Info("sandbox provisioned",
		slog.String("suite", suite),
		slog.String("root", root),
	)

	return &Handle{
		Suite:     suite,
		Root:      root,
		Subpaths:  subpaths,
		CreatedAt: createdAt,
	}, nil
}

// Remove tears down the sandbox. It re-validates that the handle's root
// is still contained under the manager's temp root — defense against a
// tampered or misused handle — then deletes the subtree. Idempotent: a
// second call, or a call on an already-absent root, does nothing.
//
// A failed deletion is returned as *CleanupFailure; callers log it and
// let the run finish.
func (m *Manager) Remove(h *Handle) error {
	if h == nil || h.Root == "" {
		return nil
	}

	if !pathguard.Contains(m.tempRoot, h.Root) || filepath.Clean(h.Root) == filepath.Clean(m.tempRoot) {
		m.metrics.RecordViolation(string(pathguard.DangerousRootWrite))
		return &pathguard.SafetyViolation{
			Category: pathguard.DangerousRootWrite,
			Path:     h.Root,
			Reason:   "sandbox root escaped the managed temp root " + m.tempRoot,
		}
	}

	if _, err := os.Stat(h.Root); os.IsNotExist(err) {
		return nil
	}

	if err := os.RemoveAll(h.Root); err != nil {
		m.metrics.RecordCleanupFailure()
		m.logger.Error("sandbox teardown failed; orphaned directory left behind",
			slog.String("suite", h.Suite),
			slog.String("root", h.Root),
			slog.String("error", err.Error()),
		)
		return &CleanupFailure{Path: h.Root, Err: err}
	}

	m.metrics.RecordSandboxRemoved()
	m.logger.Info("sandbox removed", slog.String("suite", h.Suite), slog.String("root", h.Root))
	return nil
}

// TempRoot returns the managed temp root.
func (m *Manager) TempRoot() string { return m.tempRoot }

// sanitizeSuite makes a suite name filesystem-safe.
func sanitizeSuite(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	name = strings.ReplaceAll(name, " ", "-")
	return name
}
