package preview

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"apex-preview/internal/bundler"
	"apex-preview/internal/logging"
	"apex-preview/internal/repair"
	"apex-preview/internal/sandbox"
	"apex-preview/internal/workspace"
)

// Delivery is one live preview: an address plus the disposable resource
// behind it.
type Delivery struct {
	Address    string          `json:"address"`
	ArtifactID string          `json:"artifact_id,omitempty"`
	Root       string          `json:"root,omitempty"`
	Warnings   []string        `json:"warnings,omitempty"`
	Repairs    []repair.Action `json:"repairs,omitempty"`
	Bundle     *bundler.Bundle `json:"-"`

	releaseOnce sync.Once
	release     func() error
	releaseErr  error
}

// Release frees the delivery's resource. Only the first call has an effect.
func (d *Delivery) Release() error {
	if d == nil {
		return nil
	}
	d.releaseOnce.Do(func() {
		if d.release != nil {
			d.releaseErr = d.release()
		}
	})
	return d.releaseErr
}

// Strategy turns a file set into a live preview for one surface.
type Strategy interface {
	Name() string
	Deliver(ctx context.Context, surface string, files *workspace.Files) (*Delivery, error)
}

// InlineStrategy synthesizes a single self-contained document and registers
// it behind a signed address.
type InlineStrategy struct {
	service  *bundler.Service
	registry *Registry
	signer   *Signer
	baseURL  string
}

// NewInlineStrategy creates the inline strategy. baseURL prefixes the
// returned addresses and may be empty for relative ones.
func NewInlineStrategy(service *bundler.Service, registry *Registry, signer *Signer, baseURL string) *InlineStrategy {
	return &InlineStrategy{
		service:  service,
		registry: registry,
		signer:   signer,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// Name implements Strategy.
func (s *InlineStrategy) Name() string { return "inline" }

// Deliver implements Strategy.
func (s *InlineStrategy) Deliver(ctx context.Context, surface string, files *workspace.Files) (*Delivery, error) {
	build, err := s.service.Build(ctx, files)
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}

	artifact := s.registry.Register(surface, build.Bundle.HTML, build.Bundle.Assets)
	token, err := s.signer.Sign(artifact.ID, surface)
	if err != nil {
		_ = s.registry.Release(artifact.ID)
		return nil, err
	}

	return &Delivery{
		Address:    s.baseURL + LinkPath(token),
		ArtifactID: artifact.ID,
		Root:       build.Bundle.RootComponent,
		Warnings:   build.Bundle.Warnings,
		Repairs:    build.Report.Actions,
		Bundle:     build.Bundle,
		release:    func() error { return s.registry.Release(artifact.ID) },
	}, nil
}

// LinkPath is the path under which a link token is served.
func LinkPath(token string) string {
	return "/preview/" + token + "/"
}

// DevServerStrategy writes the repaired project to disk and runs it with the
// project's own toolchain inside the sandbox runtime.
type DevServerStrategy struct {
	runtime  *sandbox.Runtime
	dev      *sandbox.DevServer
	workRoot string
	log      *zap.Logger
}

// NewDevServerStrategy creates the dev-server strategy.
func NewDevServerStrategy(runtime *sandbox.Runtime, dev *sandbox.DevServer, workRoot string) *DevServerStrategy {
	return &DevServerStrategy{
		runtime:  runtime,
		dev:      dev,
		workRoot: workRoot,
		log:      logging.Named("devserver-strategy"),
	}
}

// Name implements Strategy.
func (s *DevServerStrategy) Name() string { return "devserver" }

// Deliver implements Strategy.
func (s *DevServerStrategy) Deliver(ctx context.Context, surface string, files *workspace.Files) (*Delivery, error) {
	if files == nil {
		return nil, bundler.ErrNilWorkspace
	}
	if err := s.runtime.EnsureStarted(ctx); err != nil {
		return nil, err
	}

	work := files.Clone()
	report := repair.Run(work)
	ScaffoldDevProject(work, report.Root)

	dir := filepath.Join(s.workRoot, safeDirName(surface)+"-"+uuid.NewString()[:8])
	if err := WriteFiles(dir, work); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	proc, err := s.dev.Start(ctx, dir)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	return &Delivery{
		Address: proc.URL,
		Root:    report.Root,
		Repairs: report.Actions,
		release: func() error {
			stopErr := proc.Stop()
			if err := os.RemoveAll(dir); err != nil {
				s.log.Warn("failed to remove project directory", zap.String("dir", dir), zap.Error(err))
			}
			return stopErr
		},
	}, nil
}

// ScaffoldDevProject adds the files a Vite dev server needs when the project
// does not carry them: index.html mounting the entry, package.json and a Vite
// config with the React plugin.
func ScaffoldDevProject(files *workspace.Files, root string) {
	entry, ok := repair.FindEntry(files)
	if !ok {
		repair.EnsureEntry(files, root)
		entry, _ = repair.FindEntry(files)
	}

	if !files.Has("index.html") {
		files.Set("index.html", fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="UTF-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1.0" />
    <title>Preview</title>
  </head>
  <body>
    <div id="root"></div>
    <script type="module" src="/%s"></script>
  </body>
</html>
`, entry))
	}

	if !files.Has("package.json") {
		files.Set("package.json", `{
  "name": "preview",
  "private": true,
  "version": "0.0.0",
  "type": "module",
  "scripts": {
    "dev": "vite",
    "build": "vite build"
  },
  "dependencies": {
    "react": "^18.2.0",
    "react-dom": "^18.2.0"
  },
  "devDependencies": {
    "@vitejs/plugin-react": "^4.2.0",
    "typescript": "^5.3.0",
    "vite": "^5.0.0"
  }
}
`)
	}

	hasViteConfig := false
	for _, p := range files.Paths() {
		if strings.HasPrefix(p, "vite.config.") {
			hasViteConfig = true
			break
		}
	}
	if !hasViteConfig {
		files.Set("vite.config.js", `import { defineConfig } from 'vite';
import react from '@vitejs/plugin-react';

export default defineConfig({
  plugins: [react()],
});
`)
	}
}

// WriteFiles materializes files under dir, refusing paths that escape it.
func WriteFiles(dir string, files *workspace.Files) error {
	cleanDir := filepath.Clean(dir)
	for _, f := range files.List() {
		target := filepath.Clean(filepath.Join(cleanDir, filepath.FromSlash(f.Path)))
		if !strings.HasPrefix(target, cleanDir+string(filepath.Separator)) {
			return fmt.Errorf("path escapes project directory: %s", f.Path)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", f.Path, err)
		}
		if err := os.WriteFile(target, []byte(f.Content), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.Path, err)
		}
	}
	return nil
}

func safeDirName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "surface"
	}
	return b.String()
}
