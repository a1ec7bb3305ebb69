// Package envdetect classifies the execution context of a test run.
// The classification decides everything downstream: which directories the
// path validator accepts, whether destructive test cases may run, and
// whether dynamic mock data operations are permitted at all.
//
// Classification is computed once per process from ambient signals (marker
// files, environment variables, host OS) and is immutable afterward. It is
// never persisted across runs.
package envdetect

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"
)

// Kind is the execution-context classification.
type Kind string

const (
	// Containerized means the process runs inside an ephemeral, isolated
	// container provisioned for the test run.
	Containerized Kind = "containerized"

	// ContinuousIntegration means an automated pipeline runner, which may
	// be bare metal with a live system registry.
	ContinuousIntegration Kind = "ci"

	// InteractiveLocal means an interactive developer machine.
	InteractiveLocal Kind = "local"
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case Containerized:
		return "Containerized"
	case ContinuousIntegration:
		return "ContinuousIntegration"
	case InteractiveLocal:
		return "InteractiveLocal"
	default:
		return string(k)
	}
}

// Environment variables read by the classifier.
const (
	// EnvContainer explicitly marks a container environment, for runtimes
	// that do not create the marker file.
	EnvContainer = "TESTGUARD_CONTAINER"

	// EnvForce is the explicit developer opt-in for destructive test cases
	// on an interactive machine. It never affects the classified kind.
	EnvForce = "TESTGUARD_FORCE"
)

// containerMarkers are well-known marker files created by container
// runtimes. Overridable in tests.
var containerMarkers = []string{"/.dockerenv", "/run/.containerenv"}

// ciIndicators are environment variables set by the CI systems the suite
// runs on. Any non-empty value counts.
var ciIndicators = []string{
	"CI",
	"GITHUB_ACTIONS",
	"GITLAB_CI",
	"JENKINS_URL",
	"TF_BUILD",
	"BUILDKITE",
}

// targetOS is the operating-system family conf-bkup manages.
const targetOS = "windows"

// Classification is the computed execution context. JSON-serializable so
// the CLI can hand it to separate test processes.
type Classification struct {
	Kind               Kind `json:"kind"`
	TargetPlatform     bool `json:"target_platform"`
	AuthorizedOverride bool `json:"authorized_override"`
}

// Classify computes the classification from the ambient environment.
// Ordered, first match wins:
//
//  1. container marker file or explicit container variable → Containerized
//  2. any CI indicator variable → ContinuousIntegration
//  3. otherwise → InteractiveLocal
//
// When both container and CI signals are present, Containerized wins:
// containerization implies the stronger isolation guarantee, while a CI
// runner alone may be bare metal. The ambiguity is logged and execution
// continues.
func Classify() Classification {
	return classify(probe{
		markerExists:  anyMarkerExists(),
		getenv:        os.Getenv,
		goos:          runtime.GOOS,
		ambiguityWarn: warnAmbiguity,
	})
}

// probe carries the raw signals so the classification rules stay a pure
// function, testable without touching the real environment.
type probe struct {
	markerExists  bool
	getenv        func(string) string
	goos          string
	ambiguityWarn func()
}

func classify(p probe) Classification {
	container := p.markerExists || isTruthy(p.getenv(EnvContainer)) || p.getenv("container") != ""

	ci := false
	for _, v := range ciIndicators {
		if p.getenv(v) != "" {
			ci = true
			break
		}
	}

	kind := InteractiveLocal
	switch {
	case container:
		kind = Containerized
		if ci {
			p.ambiguityWarn()
		}
	case ci:
		kind = ContinuousIntegration
	}

	return Classification{
		Kind:               kind,
		TargetPlatform:     p.goos == targetOS,
		AuthorizedOverride: isTruthy(p.getenv(EnvForce)),
	}
}

func anyMarkerExists() bool {
	for _, m := range containerMarkers {
		if _, err := os.Stat(m); err == nil {
			return true
		}
	}
	return false
}

func warnAmbiguity() {
	slog.Warn("both container and CI indicators present; classifying as Containerized",
		slog.String("reason", "containerization implies the stronger isolation guarantee"),
	)
}

// isTruthy interprets the common opt-in spellings of a flag variable.
func isTruthy(v string) bool {
	switch v {
	case "1", "true", "TRUE", "True", "yes", "on":
		return true
	}
	return false
}

// MarshalIndent renders the classification as the JSON record consumed by
// downstream tooling.
func (c Classification) MarshalIndent() ([]byte, error) {
	out, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding classification: %w", err)
	}
	return out, nil
}
