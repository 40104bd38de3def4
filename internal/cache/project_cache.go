package cache

import (
	"context"
	"time"

	"apex-preview/internal/workspace"
)

// ProjectCache caches the file sets of stored projects.
type ProjectCache struct {
	cache *Tiered
	ttl   time.Duration
}

// CachedProject is the cached form of a stored project.
type CachedProject struct {
	Name     string               `json:"name"`
	Files    []workspace.FlatFile `json:"files"`
	CachedAt time.Time            `json:"cached_at"`
}

// NewProjectCache creates a project cache with a 30s TTL.
func NewProjectCache(cache *Tiered) *ProjectCache {
	return &ProjectCache{cache: cache, ttl: 30 * time.Second}
}

// Get retrieves a cached project.
func (pc *ProjectCache) Get(ctx context.Context, name string) (*CachedProject, error) {
	var p CachedProject
	if err := pc.cache.GetJSON(ctx, ProjectKey(name), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Set caches a project's files.
func (pc *ProjectCache) Set(ctx context.Context, name string, files []workspace.FlatFile) error {
	return pc.cache.SetJSON(ctx, ProjectKey(name), CachedProject{
		Name:     name,
		Files:    files,
		CachedAt: time.Now(),
	}, pc.ttl)
}

// Invalidate drops a cached project.
func (pc *ProjectCache) Invalidate(ctx context.Context, name string) error {
	return pc.cache.Delete(ctx, ProjectKey(name))
}

// InvalidateAll drops every cached project.
func (pc *ProjectCache) InvalidateAll(ctx context.Context) error {
	return pc.cache.DeletePattern(ctx, ProjectPattern())
}
