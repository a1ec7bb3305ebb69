// Package gate decides whether state-mutating ("destructive") test cases
// may execute for a given execution context. The decision is published as
// an environment variable because the test cases that consume it run as
// separate processes.
package gate

import (
	"fmt"
	"os"

	"github.com/jkaninda/testguard/internal/envdetect"
)

// EnvDestructiveAllowed is the published permission flag. "1" allows
// destructive test cases, anything else forbids them.
const EnvDestructiveAllowed = "TESTGUARD_DESTRUCTIVE_ALLOWED"

// Evaluate returns true for exactly two combinations:
//
//   - a ContinuousIntegration run on the target platform, or
//   - an InteractiveLocal run on the target platform with the explicit
//     force override.
//
// Containerized runs are never destructive-safe, regardless of override:
// the container fixtures model a live registry but mutating them is the
// job of the dynamic mock data layer, not of destructive test cases.
func Evaluate(cls envdetect.Classification, forceOverride bool) bool {
	if cls.Kind == envdetect.Containerized {
		return false
	}
	if cls.Kind == envdetect.ContinuousIntegration && cls.TargetPlatform {
		return true
	}
	if cls.Kind == envdetect.InteractiveLocal && cls.TargetPlatform && forceOverride {
		return true
	}
	return false
}

// Publish exports the decision for downstream test processes.
func Publish(allowed bool) error {
	value := "0"
	if allowed {
		value = "1"
	}
	if err := os.Setenv(EnvDestructiveAllowed, value); err != nil {
		return fmt.Errorf("publishing destructive permission flag: %w", err)
	}
	return nil
}

// Allowed reads the published flag back. Test bodies call this instead of
// re-deriving the decision.
func Allowed() bool {
	return os.Getenv(EnvDestructiveAllowed) == "1"
}
