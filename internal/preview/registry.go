package preview

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"apex-preview/internal/logging"
)

// ErrUnknownArtifact is returned for artifact IDs that were never registered
// or have been released.
var ErrUnknownArtifact = errors.New("preview: unknown artifact")

// Artifact is a registered, servable preview document plus its mounted
// assets. It plays the role of a browser object URL: addressable until
// released, and released exactly once.
type Artifact struct {
	ID        string
	Surface   string
	Document  string
	Assets    map[string]string
	CreatedAt time.Time
}

// Registry holds live artifacts.
type Registry struct {
	mu        sync.RWMutex
	artifacts map[string]*Artifact
	log       *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		artifacts: make(map[string]*Artifact),
		log:       logging.Named("preview-registry"),
	}
}

// Register stores a document for surface and returns its artifact.
func (r *Registry) Register(surface, document string, assets map[string]string) *Artifact {
	a := &Artifact{
		ID:        uuid.NewString(),
		Surface:   surface,
		Document:  document,
		Assets:    assets,
		CreatedAt: time.Now(),
	}
	r.mu.Lock()
	r.artifacts[a.ID] = a
	r.mu.Unlock()
	return a
}

// Lookup returns a live artifact.
func (r *Registry) Lookup(id string) (*Artifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.artifacts[id]
	if !ok {
		return nil, ErrUnknownArtifact
	}
	return a, nil
}

// Release drops an artifact. Releasing twice returns ErrUnknownArtifact.
func (r *Registry) Release(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.artifacts[id]; !ok {
		return ErrUnknownArtifact
	}
	delete(r.artifacts, id)
	r.log.Debug("artifact released", zap.String("id", id))
	return nil
}

// Len returns the number of live artifacts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.artifacts)
}
