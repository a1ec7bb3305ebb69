package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearOverrides(t *testing.T) {
	t.Helper()
	t.Setenv("TESTGUARD_REPO_ROOT", "")
	t.Setenv("TESTGUARD_TEMP_ROOT", "")
	t.Setenv("TESTGUARD_DB_DSN", "")
}

func TestDefault(t *testing.T) {
	clearOverrides(t)

	cfg := Default()
	wd, _ := os.Getwd()
	if cfg.RepoRoot != wd {
		t.Errorf("RepoRoot = %q, want %q", cfg.RepoRoot, wd)
	}
	if cfg.TempRoot != filepath.Join(wd, "tmp") {
		t.Errorf("TempRoot = %q", cfg.TempRoot)
	}
	if cfg.MockStaticRoot != filepath.Join(wd, "testdata", "mock") {
		t.Errorf("MockStaticRoot = %q", cfg.MockStaticRoot)
	}
	if cfg.MetricsEnabled() {
		t.Error("metrics enabled by default")
	}
}

func TestLoadYAML(t *testing.T) {
	clearOverrides(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "testguard.yaml")
	content := `
repo_root: ` + dir + `
safety:
  suite_marker: "bkup-"
  extra_protected_roots:
    - /srv
provision:
  interval_s: 5
  max_attempts: 12
  services:
    - localhost:5985
janitor:
  schedule: "0 * * * *"
  max_age_minutes: 30
metrics:
  enabled: true
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RepoRoot != dir {
		t.Errorf("RepoRoot = %q, want %q", cfg.RepoRoot, dir)
	}
	if got := cfg.Provision.Interval(); got != 5*time.Second {
		t.Errorf("Interval = %v, want 5s", got)
	}
	if got := cfg.Provision.Attempts(); got != 12 {
		t.Errorf("Attempts = %d, want 12", got)
	}
	if got := cfg.Janitor.MaxAge(); got != 30*time.Minute {
		t.Errorf("MaxAge = %v, want 30m", got)
	}
	if !cfg.MetricsEnabled() {
		t.Error("metrics should be enabled")
	}

	rules := cfg.Rules()
	if rules.SuiteMarker != "bkup-" {
		t.Errorf("SuiteMarker = %q", rules.SuiteMarker)
	}
	found := false
	for _, r := range rules.ProtectedRoots {
		if r == "/srv" {
			found = true
		}
	}
	if !found {
		t.Error("extra protected root /srv not merged")
	}
}

func TestLoadJSON(t *testing.T) {
	clearOverrides(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "testguard.json")
	content := `{"repo_root": "` + dir + `", "storage": {"driver": "sqlite"}}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Storage.StorageDriver(); got != "sqlite" {
		t.Errorf("driver = %q", got)
	}
	if cfg.HistoryPath() != filepath.Join(dir, ".testguard", "history.db") {
		t.Errorf("HistoryPath = %q", cfg.HistoryPath())
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TESTGUARD_REPO_ROOT", dir)
	t.Setenv("TESTGUARD_TEMP_ROOT", filepath.Join(dir, "custom-tmp"))
	t.Setenv("TESTGUARD_DB_DSN", "postgres://ci:ci@db/testguard")

	cfg := Default()
	if cfg.RepoRoot != dir {
		t.Errorf("RepoRoot = %q, want %q", cfg.RepoRoot, dir)
	}
	if cfg.TempRoot != filepath.Join(dir, "custom-tmp") {
		t.Errorf("TempRoot = %q", cfg.TempRoot)
	}
	if cfg.Storage.StorageDriver() != "postgres" {
		t.Errorf("driver = %q, want postgres", cfg.Storage.StorageDriver())
	}
	if cfg.Storage.Postgres.DSN != "postgres://ci:ci@db/testguard" {
		t.Errorf("DSN = %q", cfg.Storage.Postgres.DSN)
	}
}

func TestValidatePostgresRequiresDSN(t *testing.T) {
	clearOverrides(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("storage:\n  driver: postgres\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for postgres without DSN")
	}
}

func TestValidateUnknownDriver(t *testing.T) {
	clearOverrides(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("storage:\n  driver: bolt\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestAccessorsNilSafe(t *testing.T) {
	var p *ProvisionConfig
	if p.Interval() != 2*time.Second || p.Attempts() != 30 {
		t.Error("nil ProvisionConfig defaults wrong")
	}
	var j *JanitorConfig
	if j.CronSchedule() != "*/10 * * * *" || j.MaxAge() != 2*time.Hour {
		t.Error("nil JanitorConfig defaults wrong")
	}
	var s *StorageConfig
	if s.StorageDriver() != "sqlite" {
		t.Error("nil StorageConfig driver wrong")
	}
}
