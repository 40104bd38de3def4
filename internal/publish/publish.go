// Package publish uploads synthesized bundles to a hosting target: an S3
// bucket or a local directory.
package publish

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"apex-preview/internal/bundler"
	"apex-preview/internal/config"
	"apex-preview/internal/metrics"
)

// ErrEmptyBundle is returned when there is nothing to publish.
var ErrEmptyBundle = errors.New("publish: empty bundle")

// Result describes a published bundle.
type Result struct {
	Target string   `json:"target"`
	URL    string   `json:"url"`
	Key    string   `json:"key"`
	Hash   string   `json:"hash"`
	Size   int      `json:"size"`
	Files  []string `json:"files"`
}

// Publisher stores a bundle under name and returns where it can be reached.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, name string, b *bundler.Bundle) (*Result, error)
}

// New selects a publisher from cfg: S3 when a bucket is configured,
// otherwise the local directory.
func New(ctx context.Context, cfg config.PublishConfig) (Publisher, error) {
	if cfg.S3Bucket != "" {
		return NewS3Publisher(ctx, cfg)
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("publish: no S3 bucket or directory configured")
	}
	return NewDirPublisher(cfg.Dir, cfg.PublicURL), nil
}

// Publish runs p and records the outcome.
func Publish(ctx context.Context, p Publisher, name string, b *bundler.Bundle) (*Result, error) {
	res, err := p.Publish(ctx, name, b)
	metrics.RecordPublish(p.Name(), err)
	return res, err
}

type object struct {
	key         string
	body        []byte
	contentType string
}

// layout returns the objects of b under prefix/name/<hash>/. The document
// is index.html; assets keep their workspace paths.
func layout(prefix, name string, b *bundler.Bundle) (string, []object, error) {
	if b == nil || b.HTML == "" {
		return "", nil, ErrEmptyBundle
	}
	hash := b.Hash
	if len(hash) > 12 {
		hash = hash[:12]
	}
	if hash == "" {
		hash = "latest"
	}
	base := path.Join(strings.Trim(prefix, "/"), safeName(name), hash)

	objs := []object{{
		key:         path.Join(base, "index.html"),
		body:        []byte(b.HTML),
		contentType: "text/html; charset=utf-8",
	}}
	assets := make([]string, 0, len(b.Assets))
	for p := range b.Assets {
		assets = append(assets, p)
	}
	sort.Strings(assets)
	for _, p := range assets {
		clean := strings.TrimPrefix(path.Clean("/"+p), "/")
		if clean == "" || clean == "index.html" {
			continue
		}
		objs = append(objs, object{
			key:         path.Join(base, clean),
			body:        []byte(b.Assets[p]),
			contentType: contentType(clean),
		})
	}
	return base, objs, nil
}

func safeName(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			sb.WriteRune(r)
		default:
			sb.WriteByte('-')
		}
	}
	out := strings.Trim(sb.String(), "-.")
	if out == "" {
		return "preview"
	}
	return out
}

var contentTypes = map[string]string{
	".html": "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "application/javascript; charset=utf-8",
	".json": "application/json; charset=utf-8",
	".svg":  "image/svg+xml",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".ico":  "image/x-icon",
	".txt":  "text/plain; charset=utf-8",
	".md":   "text/markdown; charset=utf-8",
}

func contentType(p string) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(p))]; ok {
		return ct
	}
	return "application/octet-stream"
}

func totalSize(objs []object) int {
	n := 0
	for _, o := range objs {
		n += len(o.body)
	}
	return n
}

func keys(objs []object) []string {
	out := make([]string, len(objs))
	for i, o := range objs {
		out[i] = o.key
	}
	return out
}
