// Package sandbox owns the execution runtime used by dev-server previews: a
// single service object that boots once and is shared by every caller, and
// the install + dev server process orchestration that runs inside it.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"apex-preview/internal/logging"
	"apex-preview/internal/metrics"
)

// ErrRuntimeFailed is returned while the runtime is in the failed state.
var ErrRuntimeFailed = errors.New("sandbox: runtime failed to start")

// State is the lifecycle state of a Runtime.
type State string

const (
	StateUnstarted State = "unstarted"
	StateStarting  State = "starting"
	StateReady     State = "ready"
	StateFailed    State = "failed"
)

// Booter performs the one-time runtime boot.
type Booter interface {
	Boot(ctx context.Context) error
}

// BootFunc adapts a function to Booter.
type BootFunc func(ctx context.Context) error

// Boot calls f.
func (f BootFunc) Boot(ctx context.Context) error { return f(ctx) }

// Runtime is the explicitly owned runtime handle. Concurrent EnsureStarted
// calls share one in-flight boot; a failed boot stays failed until Reset.
type Runtime struct {
	booter Booter
	group  singleflight.Group

	mu       sync.RWMutex
	state    State
	err      error
	bootedAt time.Time

	log *zap.Logger
}

// NewRuntime creates an unstarted runtime.
func NewRuntime(b Booter) *Runtime {
	return &Runtime{booter: b, state: StateUnstarted, log: logging.Named("sandbox")}
}

// State returns the current state.
func (r *Runtime) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Err returns the error of the last failed boot.
func (r *Runtime) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// EnsureStarted boots the runtime if needed and waits for the shared boot to
// finish. Cancelling ctx stops the wait, not the boot.
func (r *Runtime) EnsureStarted(ctx context.Context) error {
	r.mu.Lock()
	switch r.state {
	case StateReady:
		r.mu.Unlock()
		return nil
	case StateFailed:
		err := r.err
		r.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrRuntimeFailed, err)
	case StateUnstarted:
		r.state = StateStarting
	}
	r.mu.Unlock()

	bootCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan("boot", func() (interface{}, error) {
		// A caller that observed "starting" may arrive after that boot ended.
		switch r.State() {
		case StateReady:
			return nil, nil
		case StateFailed:
			return nil, fmt.Errorf("%w: %v", ErrRuntimeFailed, r.Err())
		}

		start := time.Now()
		err := r.booter.Boot(bootCtx)
		metrics.RecordRuntimeBoot(err)

		r.mu.Lock()
		defer r.mu.Unlock()
		if err != nil {
			r.state = StateFailed
			r.err = err
			r.log.Error("runtime boot failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
			return nil, fmt.Errorf("%w: %v", ErrRuntimeFailed, err)
		}
		r.state = StateReady
		r.err = nil
		r.bootedAt = time.Now()
		r.log.Info("runtime ready", zap.Duration("duration", time.Since(start)))
		return nil, nil
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset moves a failed runtime back to unstarted. It reports whether the
// state changed.
func (r *Runtime) Reset() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateFailed {
		return false
	}
	r.state = StateUnstarted
	r.err = nil
	return true
}

// Retry resets a failed runtime and boots it again.
func (r *Runtime) Retry(ctx context.Context) error {
	r.Reset()
	return r.EnsureStarted(ctx)
}
