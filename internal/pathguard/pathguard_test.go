package pathguard

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jkaninda/testguard/internal/envdetect"
)

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testValidator(t *testing.T) (*Validator, string) {
	t.Helper()
	repo := t.TempDir()
	rules := DefaultRules(repo)
	rules.UserTempDir = filepath.Join(repo, "usertemp")
	return New(rules, discard()), repo
}

func TestCheckRepoTempRootSafe(t *testing.T) {
	v, repo := testValidator(t)
	cls := envdetect.Classification{Kind: envdetect.InteractiveLocal}

	r := v.Check(filepath.Join(repo, "tmp", "suite-42"), cls)
	if r.Verdict != Safe {
		t.Errorf("verdict = %v (%s), want Safe", r.Verdict, r.Reason)
	}
}

func TestValidateRepoTempRootNoError(t *testing.T) {
	v, repo := testValidator(t)
	cls := envdetect.Classification{Kind: envdetect.InteractiveLocal}

	reports, err := v.Validate([]string{filepath.Join(repo, "tmp", "suite-42")}, cls)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(reports) != 1 || reports[0].Verdict != Safe {
		t.Errorf("reports = %+v, want one Safe", reports)
	}
}

func TestValidateProtectedRootDangerous(t *testing.T) {
	v, _ := testValidator(t)
	cls := envdetect.Classification{Kind: envdetect.ContinuousIntegration, TargetPlatform: true}

	paths := []string{
		"/Windows/System32",
		`C:\Windows\System32`,
		`C:\Program Files\conf-bkup`,
		"/etc/ssh",
		"/usr/bin",
		"/",
		`C:\`,
	}
	for _, p := range paths {
		t.Run(p, func(t *testing.T) {
			_, err := v.Validate([]string{p}, cls)
			var sv *SafetyViolation
			if !errors.As(err, &sv) {
				t.Fatalf("Validate(%q) err = %v, want SafetyViolation", p, err)
			}
			if sv.Category != DangerousRootWrite {
				t.Errorf("category = %v, want DangerousRootWrite", sv.Category)
			}
			if sv.Path != p {
				t.Errorf("violation path = %q, want %q", sv.Path, p)
			}
		})
	}
}

func TestValidateUnrecognizedFailsClosed(t *testing.T) {
	v, _ := testValidator(t)
	cls := envdetect.Classification{Kind: envdetect.InteractiveLocal}

	_, err := v.Validate([]string{"/data/projects/somewhere"}, cls)
	var sv *SafetyViolation
	if !errors.As(err, &sv) {
		t.Fatalf("err = %v, want SafetyViolation", err)
	}
	if sv.Category != UnrecognizedPath {
		t.Errorf("category = %v, want UnrecognizedPath", sv.Category)
	}
}

func TestValidateStopsAtFirstViolation(t *testing.T) {
	v, repo := testValidator(t)
	cls := envdetect.Classification{Kind: envdetect.InteractiveLocal}

	paths := []string{
		filepath.Join(repo, "tmp", "a"),
		"/Windows/System32",
		filepath.Join(repo, "tmp", "b"), // never reached
	}
	reports, err := v.Validate(paths, cls)
	if err == nil {
		t.Fatal("expected violation")
	}
	if len(reports) != 2 {
		t.Errorf("got %d reports, want 2 (validation stops at first violation)", len(reports))
	}
}

func TestCheckUserTempRequiresMarkerAndCI(t *testing.T) {
	v, repo := testValidator(t)
	userTemp := filepath.Join(repo, "usertemp")

	marked := filepath.Join(userTemp, "testguard-backup-suite")
	unmarked := filepath.Join(userTemp, "random-dir")

	ci := envdetect.Classification{Kind: envdetect.ContinuousIntegration}
	local := envdetect.Classification{Kind: envdetect.InteractiveLocal}

	tests := []struct {
		name     string
		path     string
		cls      envdetect.Classification
		wantSafe bool
	}{
		{"marked on CI", marked, ci, true},
		{"marked subpath on CI", filepath.Join(marked, "work"), ci, true},
		{"unmarked on CI", unmarked, ci, false},
		{"marked but local", marked, local, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := v.Check(tc.path, tc.cls)
			if got := r.Verdict == Safe; got != tc.wantSafe {
				t.Errorf("verdict = %v (%s), want safe=%v", r.Verdict, r.Reason, tc.wantSafe)
			}
		})
	}
}

func TestCheckContainerWorkspaceRequiresContainer(t *testing.T) {
	v, _ := testValidator(t)

	contained := envdetect.Classification{Kind: envdetect.Containerized}
	ci := envdetect.Classification{Kind: envdetect.ContinuousIntegration}

	if r := v.Check("/workspace/mock/registry", contained); r.Verdict != Safe {
		t.Errorf("containerized /workspace verdict = %v, want Safe", r.Verdict)
	}
	// Outside a container the same path is a direct child of the root —
	// dangerous, not merely unrecognized.
	if r := v.Check("/workspace", ci); r.Verdict != Dangerous {
		t.Errorf("CI /workspace verdict = %v, want Dangerous", r.Verdict)
	}
}

func TestCheckCIRunnerTemp(t *testing.T) {
	v, _ := testValidator(t)

	ci := envdetect.Classification{Kind: envdetect.ContinuousIntegration}
	local := envdetect.Classification{Kind: envdetect.InteractiveLocal}

	p := "/home/runner/work/_temp/testguard-x"
	if r := v.Check(p, ci); r.Verdict != Safe {
		t.Errorf("CI runner temp on CI = %v (%s), want Safe", r.Verdict, r.Reason)
	}
	if r := v.Check(p, local); r.Verdict == Safe {
		t.Error("CI runner temp accepted outside CI")
	}
}

func TestConfirmExists(t *testing.T) {
	v, repo := testValidator(t)

	if err := v.ConfirmExists(repo); err != nil {
		t.Errorf("ConfirmExists(existing dir): %v", err)
	}

	missing := filepath.Join(repo, "never-created")
	err := v.ConfirmExists(missing)
	var sv *SafetyViolation
	if !errors.As(err, &sv) {
		t.Fatalf("err = %v, want SafetyViolation", err)
	}
	if sv.Category != MissingExpectedDirectory {
		t.Errorf("category = %v, want MissingExpectedDirectory", sv.Category)
	}

	file := filepath.Join(repo, "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := v.ConfirmExists(file); err == nil {
		t.Error("ConfirmExists on a regular file should fail")
	}
}

func TestContains(t *testing.T) {
	tests := []struct {
		parent, child string
		want          bool
	}{
		{"/tmp/root", "/tmp/root/a/b", true},
		{"/tmp/root", "/tmp/root", true},
		{"/tmp/root", "/tmp/rootx", false},
		{"/tmp/root", "/tmp", false},
		{"/tmp/root", "/tmp/root/../escape", false},
	}
	for _, tc := range tests {
		if got := Contains(tc.parent, tc.child); got != tc.want {
			t.Errorf("Contains(%q, %q) = %v, want %v", tc.parent, tc.child, got, tc.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`C:\Windows\System32`, "/windows/system32"},
		{"/Windows/System32", "/windows/system32"},
		{`c:\`, "/"},
		{"/etc/ssh/", "/etc/ssh"},
		{`D:\Program Files\App`, "/program files/app"},
	}
	for _, tc := range tests {
		if got := normalize(tc.in); got != tc.want {
			t.Errorf("normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSafetyViolationMessage(t *testing.T) {
	v := &SafetyViolation{Category: DangerousRootWrite, Path: `C:\Windows`, Reason: "protected"}
	msg := v.Error()
	for _, want := range []string{`C:\Windows`, "dangerous_root_write", "protected"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}
