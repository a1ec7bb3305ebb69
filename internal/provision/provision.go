// Package provision waits for externally provisioned dependencies (mock
// services inside the container, marker files) to become ready. Waits are
// bounded retry loops with fixed sleep intervals: exceeding the attempt
// budget is a fatal provisioning failure, never a silently-retried
// condition. There is no cooperative cancellation — a started wait runs
// until it succeeds or exhausts its budget.
package provision

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"
)

// Policy bounds one readiness wait.
type Policy struct {
	Interval    time.Duration // fixed sleep between attempts
	MaxAttempts int
}

// Defaults applied to zero-valued policy fields.
const (
	DefaultInterval    = 2 * time.Second
	DefaultMaxAttempts = 30
)

func (p Policy) normalized() Policy {
	if p.Interval <= 0 {
		p.Interval = DefaultInterval
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	return p
}

// Failure reports which readiness signal never arrived. Fatal for the
// suite.
type Failure struct {
	Signal   string
	Attempts int
	LastErr  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("provisioning failure: %s not ready after %d attempts: %v", f.Signal, f.Attempts, f.LastErr)
}

func (f *Failure) Unwrap() error { return f.LastErr }

// Waiter runs readiness waits. The probes are injectable for tests.
type Waiter struct {
	logger *slog.Logger

	dial  func(network, addr string, timeout time.Duration) (net.Conn, error)
	stat  func(name string) (os.FileInfo, error)
	sleep func(d time.Duration)
}

// NewWaiter creates a Waiter with real network and filesystem probes.
func NewWaiter(logger *slog.Logger) *Waiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Waiter{
		logger: logger,
		dial:   net.DialTimeout,
		stat:   os.Stat,
		sleep:  time.Sleep,
	}
}

// ForService waits until a TCP connection to addr succeeds.
func (w *Waiter) ForService(addr string, p Policy) error {
	p = p.normalized()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		conn, err := w.dial("tcp", addr, p.Interval)
		if err == nil {
			_ = conn.Close()
			w.logger.Info("service ready", slog.String("addr", addr), slog.Int("attempts", attempt))
			return nil
		}
		lastErr = err
		w.logger.Debug("service not ready yet",
			slog.String("addr", addr),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", p.MaxAttempts),
		)
		if attempt < p.MaxAttempts {
			w.sleep(p.Interval)
		}
	}
	return &Failure{Signal: "tcp " + addr, Attempts: p.MaxAttempts, LastErr: lastErr}
}

// ForFile waits until the named file exists.
func (w *Waiter) ForFile(path string, p Policy) error {
	p = p.normalized()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		_, err := w.stat(path)
		if err == nil {
			w.logger.Info("file ready", slog.String("path", path), slog.Int("attempts", attempt))
			return nil
		}
		lastErr = err
		if attempt < p.MaxAttempts {
			w.sleep(p.Interval)
		}
	}
	return &Failure{Signal: "file " + path, Attempts: p.MaxAttempts, LastErr: lastErr}
}
