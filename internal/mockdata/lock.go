package mockdata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/testguard/internal/envdetect"
	"github.com/jkaninda/testguard/internal/pathguard"
)

const (
	lockDirName   = ".lock"
	lockTokenFile = "token.json"
)

// Lock proves that dynamic mock operations are really happening inside an
// isolated container, not accidentally on a developer machine. It is
// created once per container lifetime.
//
// A lock is valid only while all three conditions hold at once: the token
// file exists, its directory is contained in the currently-reported
// dynamic root, and the live classification is Containerized. Anything
// else is stale and must be rejected.
type Lock struct {
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
	Dir       string    `json:"dir"`
}

// TokenPath returns the token file location for a lock rooted at dir.
func TokenPath(dir string) string {
	return filepath.Join(dir, lockDirName, lockTokenFile)
}

// Acquire writes a fresh lock token under the dynamic root. Call once per
// container lifetime, after the dynamic root is provisioned.
func Acquire(dynamicRoot string) (*Lock, error) {
	lockDir := filepath.Join(dynamicRoot, lockDirName)
	if err := os.MkdirAll(lockDir, 0750); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	l := &Lock{
		Token:     uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Dir:       lockDir,
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("encoding lock token: %w", err)
	}
	if err := os.WriteFile(TokenPath(dynamicRoot), data, 0600); err != nil {
		return nil, fmt.Errorf("writing lock token: %w", err)
	}
	return l, nil
}

// LoadLock reads the lock token stored under the given dynamic root. A
// missing or unreadable token is reported as a stale lock, not as a plain
// file error — the caller is about to mutate dynamic data and must stop.
func LoadLock(dynamicRoot string) (*Lock, error) {
	path := TokenPath(dynamicRoot)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &pathguard.SafetyViolation{
			Category: pathguard.StaleOrInvalidLock,
			Path:     path,
			Reason:   fmt.Sprintf("lock token unreadable: %v", err),
		}
	}
	var l Lock
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, &pathguard.SafetyViolation{
			Category: pathguard.StaleOrInvalidLock,
			Path:     path,
			Reason:   fmt.Sprintf("lock token corrupt: %v", err),
		}
	}
	return &l, nil
}

// Assert checks all three validity conditions against the
// currently-reported dynamic root. The classification is re-checked live,
// never cached: a lock acquired in a container must not authorize work
// after the process is no longer classified as containerized.
func (l *Lock) Assert(currentDynamicRoot string, classify func() envdetect.Classification) error {
	tokenPath := filepath.Join(l.Dir, lockTokenFile)
	if _, err := os.Stat(tokenPath); err != nil {
		return &pathguard.SafetyViolation{
			Category: pathguard.StaleOrInvalidLock,
			Path:     tokenPath,
			Reason:   fmt.Sprintf("lock token file missing: %v", err),
		}
	}

	if !pathguard.Contains(currentDynamicRoot, l.Dir) {
		return &pathguard.SafetyViolation{
			Category: pathguard.StaleOrInvalidLock,
			Path:     l.Dir,
			Reason:   "lock directory is outside the currently-reported dynamic root " + currentDynamicRoot,
		}
	}

	if kind := classify().Kind; kind != envdetect.Containerized {
		return &pathguard.SafetyViolation{
			Category: pathguard.StaleOrInvalidLock,
			Path:     l.Dir,
			Reason:   "live classification is " + kind.String() + ", not Containerized",
		}
	}

	return nil
}
