package pathguard

import "fmt"

// Category identifies the class of safety violation.
type Category string

const (
	// DangerousRootWrite means a candidate path sits under a protected
	// operating-system root.
	DangerousRootWrite Category = "dangerous_root_write"

	// UnrecognizedPath means no rule recognized the path. Unrecognized is
	// never assumed safe.
	UnrecognizedPath Category = "unrecognized_path"

	// MissingExpectedDirectory means a directory that was just created (or
	// is required to exist) is absent — a path-resolution defect, not a
	// benign absence.
	MissingExpectedDirectory Category = "missing_expected_directory"

	// StaleOrInvalidLock means a dynamic-data lock failed one of its
	// validity conditions.
	StaleOrInvalidLock Category = "stale_or_invalid_lock"
)

// SafetyViolation is fatal: it is raised before any mutation is attempted
// and is never caught and suppressed. The message always carries the
// offending path and the specific reason so an operator can tell a real
// bug from an environment that needs a different flag.
type SafetyViolation struct {
	Category Category
	Path     string
	Reason   string
}

func (v *SafetyViolation) Error() string {
	return fmt.Sprintf("safety violation (%s): %s: %s", v.Category, v.Path, v.Reason)
}
