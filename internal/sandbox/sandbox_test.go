package sandbox

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jkaninda/testguard/internal/envdetect"
	"github.com/jkaninda/testguard/internal/pathguard"
)

func testManager(t *testing.T) (*Manager, string) {
	t.Helper()
	repo := t.TempDir()
	rules := pathguard.DefaultRules(repo)
	v := pathguard.New(rules, slog.New(slog.DiscardHandler))
	return NewManager(rules.RepoTempRoot, v, slog.New(slog.DiscardHandler), nil), repo
}

func localCls() envdetect.Classification {
	return envdetect.Classification{Kind: envdetect.InteractiveLocal}
}

func TestInitializeCreatesTaxonomy(t *testing.T) {
	m, _ := testManager(t)

	h, err := m.Initialize("backup-roundtrip", localCls())
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if h.Suite != "backup-roundtrip" {
		t.Errorf("Suite = %q", h.Suite)
	}
	if !pathguard.Contains(m.TempRoot(), h.Root) {
		t.Errorf("root %q outside temp root %q", h.Root, m.TempRoot())
	}

	// Every named subpath exists on disk immediately after Initialize.
	for _, name := range Subdirs {
		p := h.Subpath(name)
		if p == "" {
			t.Fatalf("subpath %q missing from handle", name)
		}
		info, err := os.Stat(p)
		if err != nil {
			t.Errorf("subpath %q not on disk: %v", name, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("subpath %q is not a directory", name)
		}
	}
}

func TestInitializeUniqueRoots(t *testing.T) {
	m, _ := testManager(t)

	// Distinct timestamps and pids give structurally distinct roots.
	stamp := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time {
		stamp = stamp.Add(time.Nanosecond)
		return stamp
	}

	seen := make(map[string]bool)
	for range 5 {
		h, err := m.Initialize("same-suite", localCls())
		if err != nil {
			t.Fatal(err)
		}
		if seen[h.Root] {
			t.Fatalf("duplicate root %q", h.Root)
		}
		seen[h.Root] = true
	}
}

func TestInitializeDistinctPIDsDistinctRoots(t *testing.T) {
	m, _ := testManager(t)

	fixed := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	m.pid = func() int { return 100 }
	h1, err := m.Initialize("shard", localCls())
	if err != nil {
		t.Fatal(err)
	}
	m.pid = func() int { return 200 }
	h2, err := m.Initialize("shard", localCls())
	if err != nil {
		t.Fatal(err)
	}
	if h1.Root == h2.Root {
		t.Errorf("same root for different pids: %q", h1.Root)
	}
}

func TestInitializeRejectsEmptySuite(t *testing.T) {
	m, _ := testManager(t)
	if _, err := m.Initialize("  ", localCls()); err == nil {
		t.Error("expected error for empty suite name")
	}
}

func TestInitializeValidatesBeforeCreating(t *testing.T) {
	repo := t.TempDir()
	rules := pathguard.DefaultRules(repo)
	v := pathguard.New(rules, slog.New(slog.DiscardHandler))
	// Manager pointed at a protected location: validation must refuse
	// before anything is created.
	m := NewManager("/etc/testguard", v, slog.New(slog.DiscardHandler), nil)

	_, err := m.Initialize("suite", localCls())
	var sv *pathguard.SafetyViolation
	if !errors.As(err, &sv) {
		t.Fatalf("err = %v, want SafetyViolation", err)
	}
	if sv.Category != pathguard.DangerousRootWrite {
		t.Errorf("category = %v, want DangerousRootWrite", sv.Category)
	}
	if _, statErr := os.Stat("/etc/testguard"); !os.IsNotExist(statErr) {
		t.Error("directory was created despite the violation")
	}
}

func TestRemove(t *testing.T) {
	m, _ := testManager(t)

	h, err := m.Initialize("teardown", localCls())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(h.Subpath(DirWork), "f.txt"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := m.Remove(h); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(h.Root); !os.IsNotExist(err) {
		t.Error("root still present after Remove")
	}

	// Idempotent: second call on the absent root raises nothing.
	if err := m.Remove(h); err != nil {
		t.Errorf("second Remove: %v", err)
	}
}

func TestRemoveNilHandle(t *testing.T) {
	m, _ := testManager(t)
	if err := m.Remove(nil); err != nil {
		t.Errorf("Remove(nil): %v", err)
	}
}

func TestRemoveRejectsEscapedRoot(t *testing.T) {
	m, repo := testManager(t)

	outside := filepath.Join(repo, "not-managed")
	if err := os.MkdirAll(outside, 0750); err != nil {
		t.Fatal(err)
	}

	h := &Handle{Suite: "tampered", Root: outside}
	err := m.Remove(h)
	var sv *pathguard.SafetyViolation
	if !errors.As(err, &sv) {
		t.Fatalf("err = %v, want SafetyViolation", err)
	}
	if _, statErr := os.Stat(outside); statErr != nil {
		t.Error("directory outside the temp root was deleted")
	}
}

func TestRemoveRejectsTempRootItself(t *testing.T) {
	m, _ := testManager(t)
	if err := os.MkdirAll(m.TempRoot(), 0750); err != nil {
		t.Fatal(err)
	}

	h := &Handle{Suite: "tampered", Root: m.TempRoot()}
	var sv *pathguard.SafetyViolation
	if err := m.Remove(h); !errors.As(err, &sv) {
		t.Fatalf("err = %v, want SafetyViolation", err)
	}
}

func TestSanitizeSuite(t *testing.T) {
	tests := []struct{ in, want string }{
		{"plain", "plain"},
		{"a/b", "a_b"},
		{`a\b`, "a_b"},
		{"../up", "__up"},
		{"two words", "two-words"},
	}
	for _, tc := range tests {
		if got := sanitizeSuite(tc.in); got != tc.want {
			t.Errorf("sanitizeSuite(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
