// Package pathguard judges whether candidate directories are safe for the
// test suite to mutate. It is the single authority for path containment:
// the sandbox manager and the mock data partition both delegate here
// instead of keeping parallel containment checks.
//
// The verdict rules fail closed — a path no rule recognizes is never
// assumed safe.
package pathguard

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/jkaninda/testguard/internal/envdetect"
)

// Verdict is the outcome of checking a single path.
type Verdict string

const (
	Safe         Verdict = "safe"
	Dangerous    Verdict = "dangerous"
	Unrecognized Verdict = "unrecognized"
)

// Report is the per-path verdict. Produced and consumed synchronously,
// never cached.
type Report struct {
	Path    string  `json:"path"`
	Verdict Verdict `json:"verdict"`
	Reason  string  `json:"reason"`
}

// DefaultSuiteMarker is the name fragment that identifies a directory as
// one of ours when it lives outside the repository temp root.
const DefaultSuiteMarker = "testguard-"

// Rules holds the recognized location classes. Zero-value fields fall back
// to the defaults from DefaultRules.
type Rules struct {
	// RepoTempRoot is the repository's own designated temp root. Anything
	// under it is safe in every classification.
	RepoTempRoot string

	// UserTempDir is the platform user-temp directory. Defaults to
	// os.TempDir().
	UserTempDir string

	// SuiteMarker must appear in a path under UserTempDir for it to be
	// accepted (CI only).
	SuiteMarker string

	// ContainerWorkspaceRoots are accepted when the classification is
	// Containerized.
	ContainerWorkspaceRoots []string

	// CIRunnerTempRoots are CI-runner temp conventions, accepted when the
	// classification is ContinuousIntegration.
	CIRunnerTempRoots []string

	// ProtectedRoots are operating-system locations that must never be
	// written, expressed in normalized form (lower-case, forward slashes,
	// drive letters stripped).
	ProtectedRoots []string
}

// DefaultRules returns the rules for a repository rooted at repoRoot.
// Protected roots cover both the target platform (Windows) and the POSIX
// hosts the containerized suite runs on.
func DefaultRules(repoRoot string) Rules {
	return Rules{
		RepoTempRoot: filepath.Join(repoRoot, "tmp"),
		UserTempDir:  os.TempDir(),
		SuiteMarker:  DefaultSuiteMarker,
		ContainerWorkspaceRoots: []string{
			"/workspace",
			"/app",
		},
		CIRunnerTempRoots: []string{
			"/home/runner/work/_temp", // GitHub Actions
			"/builds",                 // GitLab CI
			"/agent/_work/_temp",      // Azure Pipelines
			"/buildkite/builds",       // Buildkite
		},
		ProtectedRoots: []string{
			"/windows",
			"/program files",
			"/program files (x86)",
			"/programdata",
			"/etc",
			"/usr",
			"/bin",
			"/sbin",
			"/lib",
			"/lib64",
			"/boot",
			"/var",
			"/opt",
			"/dev",
			"/proc",
			"/sys",
			"/root",
			"/system",
			"/library",
		},
	}
}

// Validator applies the rules against a classification.
type Validator struct {
	rules  Rules
	logger *slog.Logger
}

// New creates a Validator. Unset rule fields get their defaults.
func New(rules Rules, logger *slog.Logger) *Validator {
	if rules.UserTempDir == "" {
		rules.UserTempDir = os.TempDir()
	}
	if rules.SuiteMarker == "" {
		rules.SuiteMarker = DefaultSuiteMarker
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{rules: rules, logger: logger}
}

// Validate checks every path and returns the collected reports. It stops
// at the first Dangerous or Unrecognized verdict and returns the
// corresponding *SafetyViolation — a violation is never returned silently,
// and it is always raised before any filesystem mutation is attempted.
func (v *Validator) Validate(paths []string, cls envdetect.Classification) ([]Report, error) {
	reports := make([]Report, 0, len(paths))
	for _, p := range paths {
		r := v.Check(p, cls)
		reports = append(reports, r)

		switch r.Verdict {
		case Dangerous:
			v.logger.Error("dangerous path rejected", slog.String("path", p), slog.String("reason", r.Reason))
			return reports, &SafetyViolation{Category: DangerousRootWrite, Path: p, Reason: r.Reason}
		case Unrecognized:
			v.logger.Error("unrecognized path rejected", slog.String("path", p), slog.String("reason", r.Reason))
			return reports, &SafetyViolation{Category: UnrecognizedPath, Path: p, Reason: r.Reason}
		}
	}
	return reports, nil
}

// Check judges one path. Rules are tried in order, first match wins.
func (v *Validator) Check(p string, cls envdetect.Classification) Report {
	// 1. Repository temp root is safe in every classification.
	if v.rules.RepoTempRoot != "" && Contains(v.rules.RepoTempRoot, p) {
		return Report{Path: p, Verdict: Safe, Reason: "within repository temp root"}
	}

	// 2. User temp dir, with a recognizable suite marker somewhere in the
	// path below it, on CI only.
	if cls.Kind == envdetect.ContinuousIntegration {
		if rel, ok := relWithin(v.rules.UserTempDir, p); ok && strings.Contains(rel, v.rules.SuiteMarker) {
			return Report{Path: p, Verdict: Safe, Reason: "suite directory under user temp on a CI runner"}
		}
	}

	// 3. Container workspace roots, only when actually containerized.
	if cls.Kind == envdetect.Containerized {
		for _, root := range v.rules.ContainerWorkspaceRoots {
			if Contains(root, p) {
				return Report{Path: p, Verdict: Safe, Reason: "within container workspace " + root}
			}
		}
	}

	// 4. CI-runner temp conventions, only on CI.
	if cls.Kind == envdetect.ContinuousIntegration {
		for _, root := range v.rules.CIRunnerTempRoots {
			if Contains(root, p) {
				return Report{Path: p, Verdict: Safe, Reason: "within CI runner temp " + root}
			}
		}
	}

	// 5. Protected operating-system locations. Checked before falling
	// through to Unrecognized so a system path is reported as Dangerous,
	// not merely unknown.
	if reason, protected := v.protectedReason(p); protected {
		return Report{Path: p, Verdict: Dangerous, Reason: reason}
	}

	// 6. Fail closed.
	return Report{Path: p, Verdict: Unrecognized, Reason: "no rule recognizes this location"}
}

// protectedReason reports whether p is a protected operating-system
// location: a filesystem or drive root, a direct child of one, or a
// descendant of a known system/program directory.
func (v *Validator) protectedReason(p string) (string, bool) {
	n := normalize(p)

	if n == "/" {
		return "filesystem root", true
	}
	if !strings.Contains(strings.TrimPrefix(n, "/"), "/") {
		return "direct child of the filesystem root", true
	}
	for _, root := range v.rules.ProtectedRoots {
		if n == root || strings.HasPrefix(n, root+"/") {
			return "within protected system directory " + root, true
		}
	}
	return "", false
}

// ConfirmExists re-verifies that an expected directory is actually on
// disk. A missing expected directory signals a path-resolution defect and
// is a safety violation, not a benign absence.
func (v *Validator) ConfirmExists(p string) error {
	info, err := os.Stat(p)
	if err != nil {
		return &SafetyViolation{
			Category: MissingExpectedDirectory,
			Path:     p,
			Reason:   fmt.Sprintf("expected directory is absent: %v", err),
		}
	}
	if !info.IsDir() {
		return &SafetyViolation{
			Category: MissingExpectedDirectory,
			Path:     p,
			Reason:   "expected a directory, found a file",
		}
	}
	return nil
}

// Contains reports whether child equals parent or is a descendant of it.
// Both paths are compared lexically after cleaning; no symlinks are
// resolved.
func Contains(parent, child string) bool {
	_, ok := relWithin(parent, child)
	return ok
}

// relWithin returns child relative to parent when child is parent itself
// or a descendant of it.
func relWithin(parent, child string) (string, bool) {
	rel, err := filepath.Rel(filepath.Clean(parent), filepath.Clean(child))
	if err != nil {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}

// normalize rewrites a path for protected-root comparison: forward
// slashes, lower case, drive letters stripped, so "C:\Windows\System32"
// and "/windows/system32" compare equal.
func normalize(p string) string {
	s := strings.ToLower(strings.ReplaceAll(p, "\\", "/"))
	if len(s) >= 2 && s[1] == ':' && s[0] >= 'a' && s[0] <= 'z' {
		s = s[2:]
	}
	if !strings.HasPrefix(s, "/") {
		s = "/" + s
	}
	return path.Clean(s)
}
