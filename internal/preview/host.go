// Package preview owns the live preview of each browsing surface. Every new
// file set supersedes the surface's previous one: the newer run wins, a
// superseded run's result is discarded, and the surface's prior resource is
// released when the new one goes live.
package preview

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"apex-preview/internal/bundler"
	"apex-preview/internal/logging"
	"apex-preview/internal/metrics"
	"apex-preview/internal/repair"
	"apex-preview/internal/workspace"
)

var (
	// ErrSurfaceClosed is returned when a surface was closed while a run was
	// in flight, or the host has shut down.
	ErrSurfaceClosed = errors.New("preview: surface closed")
	// ErrStaleRun is returned to a run that finished after a newer run for
	// the same surface had started.
	ErrStaleRun = errors.New("preview: superseded by a newer run")
)

// State is the externally visible state of a surface.
type State string

const (
	StateIdle  State = "idle"
	StateReady State = "ready"
	StateError State = "error"
)

// Status describes one surface.
type Status struct {
	Surface   string          `json:"surface"`
	State     State           `json:"state"`
	Address   string          `json:"address,omitempty"`
	Message   string          `json:"message,omitempty"`
	Root      string          `json:"root,omitempty"`
	Run       uint64          `json:"run"`
	Building  bool            `json:"building"`
	Strategy  string          `json:"strategy"`
	Warnings  []string        `json:"warnings,omitempty"`
	Repairs   []repair.Action `json:"repairs,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type surface struct {
	name     string
	latest   uint64
	inFlight int
	live     *Delivery
	status   Status
	closed   bool
}

// Host manages preview surfaces.
type Host struct {
	strategy Strategy
	counter  Counter
	hub      *Hub

	mu       sync.Mutex
	surfaces map[string]*surface
	shutdown bool

	log *zap.Logger
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithCounter replaces the run counter.
func WithCounter(c Counter) HostOption {
	return func(h *Host) { h.counter = c }
}

// WithHub pushes state changes to websocket clients.
func WithHub(hub *Hub) HostOption {
	return func(h *Host) { h.hub = hub }
}

// NewHost creates a host delivering previews with strategy.
func NewHost(strategy Strategy, opts ...HostOption) *Host {
	h := &Host{
		strategy: strategy,
		counter:  &AtomicCounter{},
		surfaces: make(map[string]*surface),
		log:      logging.Named("preview-host"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Strategy returns the delivery strategy.
func (h *Host) Strategy() Strategy {
	return h.strategy
}

// Update delivers files to surface. On success the previous delivery is
// released and the surface becomes ready. A delivery failure puts the surface
// in the error state (releasing the previous delivery) and is returned
// together with that status. A run overtaken by a newer one returns
// ErrStaleRun and leaves the surface untouched.
func (h *Host) Update(ctx context.Context, name string, files *workspace.Files) (Status, error) {
	h.mu.Lock()
	if h.shutdown {
		h.mu.Unlock()
		return Status{}, ErrSurfaceClosed
	}
	s, ok := h.surfaces[name]
	if !ok {
		s = &surface{name: name, status: Status{Surface: name, State: StateIdle, Strategy: h.strategy.Name()}}
		h.surfaces[name] = s
		metrics.SetLiveSurfaces(len(h.surfaces))
	}
	run := h.counter.Next()
	s.latest = run
	s.inFlight++
	h.mu.Unlock()

	start := time.Now()
	d, err := h.strategy.Deliver(ctx, name, files)
	elapsed := time.Since(start)

	h.mu.Lock()
	s.inFlight--
	if s.closed || h.surfaces[name] != s {
		h.mu.Unlock()
		h.discard(d, name, run)
		metrics.RecordPreview(h.strategy.Name(), "closed", elapsed)
		return Status{}, ErrSurfaceClosed
	}
	if s.latest != run {
		h.mu.Unlock()
		h.discard(d, name, run)
		metrics.RecordPreview(h.strategy.Name(), "stale", elapsed)
		return Status{}, ErrStaleRun
	}

	prev := s.live
	now := time.Now()
	if err != nil {
		s.live = nil
		s.status = Status{
			Surface:   name,
			State:     StateError,
			Message:   err.Error(),
			Run:       run,
			Strategy:  h.strategy.Name(),
			UpdatedAt: now,
		}
	} else {
		s.live = d
		s.status = Status{
			Surface:   name,
			State:     StateReady,
			Address:   d.Address,
			Root:      d.Root,
			Run:       run,
			Strategy:  h.strategy.Name(),
			Warnings:  d.Warnings,
			Repairs:   d.Repairs,
			UpdatedAt: now,
		}
	}
	status := s.status
	h.mu.Unlock()

	if prev != nil {
		if rerr := prev.Release(); rerr != nil {
			h.log.Warn("failed to release previous preview", zap.String("surface", name), zap.Error(rerr))
		}
	}

	if err != nil {
		h.log.Warn("preview failed", zap.String("surface", name), zap.Uint64("run", run), zap.Error(err))
		metrics.RecordPreview(h.strategy.Name(), "error", elapsed)
		h.notify(Message{Type: MessageError, Surface: name, Message: status.Message, Run: run})
		return status, fmt.Errorf("preview %s: %w", name, err)
	}

	h.log.Info("preview ready",
		zap.String("surface", name),
		zap.Uint64("run", run),
		zap.String("address", status.Address),
		zap.Duration("duration", elapsed))
	metrics.RecordPreview(h.strategy.Name(), "ready", elapsed)
	h.notify(Message{Type: MessageReload, Surface: name, Address: status.Address, Run: run})
	return status, nil
}

// Status returns the status of surface. Unknown surfaces are idle.
func (h *Host) Status(name string) (Status, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.surfaces[name]
	if !ok {
		return Status{Surface: name, State: StateIdle, Strategy: h.strategy.Name()}, false
	}
	st := s.status
	st.Building = s.inFlight > 0
	return st, true
}

// Bundle returns the synthesized bundle behind the surface's live delivery.
// Strategies that serve from a dev server have none.
func (h *Host) Bundle(name string) (*bundler.Bundle, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.surfaces[name]
	if !ok || s.live == nil || s.live.Bundle == nil {
		return nil, false
	}
	return s.live.Bundle, true
}

// Surfaces lists all known surfaces by name.
func (h *Host) Surfaces() []Status {
	h.mu.Lock()
	out := make([]Status, 0, len(h.surfaces))
	for _, s := range h.surfaces {
		st := s.status
		st.Building = s.inFlight > 0
		out = append(out, st)
	}
	h.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Surface < out[j].Surface })
	return out
}

// Close tears a surface down and releases its live delivery. Runs still in
// flight for it finish with ErrSurfaceClosed. Closing an unknown surface is a
// no-op.
func (h *Host) Close(name string) error {
	h.mu.Lock()
	s, ok := h.surfaces[name]
	if !ok {
		h.mu.Unlock()
		return nil
	}
	s.closed = true
	delete(h.surfaces, name)
	live := s.live
	s.live = nil
	metrics.SetLiveSurfaces(len(h.surfaces))
	h.mu.Unlock()

	h.notify(Message{Type: MessageClosed, Surface: name})
	if err := live.Release(); err != nil {
		return fmt.Errorf("release %s: %w", name, err)
	}
	return nil
}

// Shutdown closes every surface and the hub. Later Updates fail with
// ErrSurfaceClosed.
func (h *Host) Shutdown() {
	h.mu.Lock()
	h.shutdown = true
	names := make([]string, 0, len(h.surfaces))
	for name := range h.surfaces {
		names = append(names, name)
	}
	h.mu.Unlock()

	for _, name := range names {
		if err := h.Close(name); err != nil {
			h.log.Warn("failed to close surface", zap.String("surface", name), zap.Error(err))
		}
	}
	if h.hub != nil {
		h.hub.Close()
	}
}

func (h *Host) discard(d *Delivery, name string, run uint64) {
	if d == nil {
		return
	}
	h.log.Debug("discarding superseded preview", zap.String("surface", name), zap.Uint64("run", run))
	if err := d.Release(); err != nil {
		h.log.Warn("failed to release superseded preview", zap.String("surface", name), zap.Error(err))
	}
}

func (h *Host) notify(msg Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}
