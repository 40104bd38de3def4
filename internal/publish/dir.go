package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"apex-preview/internal/bundler"
	"apex-preview/internal/logging"
)

// DirPublisher writes bundles below a local directory.
type DirPublisher struct {
	dir       string
	publicURL string
	log       *zap.Logger
}

// NewDirPublisher creates a directory publisher. publicURL, when set, is the
// address the directory is served from; file:// URLs are returned otherwise.
func NewDirPublisher(dir, publicURL string) *DirPublisher {
	return &DirPublisher{
		dir:       dir,
		publicURL: strings.TrimRight(publicURL, "/"),
		log:       logging.Named("publish-dir"),
	}
}

// Name implements Publisher.
func (p *DirPublisher) Name() string { return "dir" }

// Publish implements Publisher.
func (p *DirPublisher) Publish(ctx context.Context, name string, b *bundler.Bundle) (*Result, error) {
	base, objs, err := layout("", name, b)
	if err != nil {
		return nil, err
	}
	root, err := filepath.Abs(p.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve publish directory: %w", err)
	}

	for _, o := range objs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		target := filepath.Join(root, filepath.FromSlash(o.key))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", o.key, err)
		}
		if err := os.WriteFile(target, o.body, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", o.key, err)
		}
	}

	index := base + "/index.html"
	url := "file://" + filepath.ToSlash(filepath.Join(root, filepath.FromSlash(index)))
	if p.publicURL != "" {
		url = p.publicURL + "/" + index
	}
	p.log.Info("bundle published", zap.String("dir", root), zap.String("key", base), zap.Int("files", len(objs)))
	return &Result{
		Target: p.Name(),
		URL:    url,
		Key:    base,
		Hash:   b.Hash,
		Size:   totalSize(objs),
		Files:  keys(objs),
	}, nil
}
