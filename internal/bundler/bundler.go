// Package bundler synthesizes one self-contained HTML document from a repaired
// project: stylesheets are inlined, component sources are stripped of module
// syntax and concatenated (root last), and a bootstrap renders the root
// component from CDN-hosted React under an error boundary.
package bundler

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	"go.uber.org/zap"

	"apex-preview/internal/logging"
	"apex-preview/internal/repair"
	"apex-preview/internal/workspace"
)

// TranspileMode selects where TSX/JSX is compiled.
type TranspileMode string

const (
	// TranspileBrowser ships sources to the page and compiles them with Babel
	// standalone right before execution.
	TranspileBrowser TranspileMode = "browser"
	// TranspileServer compiles each file with esbuild during synthesis.
	TranspileServer TranspileMode = "server"
)

// ErrNilWorkspace is returned when Synthesize is given no file set.
var ErrNilWorkspace = errors.New("bundler: nil workspace")

// CDN holds the script URLs of the UI runtime.
type CDN struct {
	React    string `json:"react" yaml:"react"`
	ReactDOM string `json:"react_dom" yaml:"react_dom"`
	Babel    string `json:"babel" yaml:"babel"`
}

// Options configures synthesis.
type Options struct {
	Transpile TranspileMode `json:"transpile"`
	Minify    bool          `json:"minify"`
	CDN       CDN           `json:"cdn"`
	// Title is used when the project does not set one.
	Title string `json:"title"`
}

// DefaultOptions returns browser-side transpilation against unpkg React 18.
func DefaultOptions() Options {
	return Options{
		Transpile: TranspileBrowser,
		CDN: CDN{
			React:    "https://unpkg.com/react@18/umd/react.development.js",
			ReactDOM: "https://unpkg.com/react-dom@18/umd/react-dom.development.js",
			Babel:    "https://unpkg.com/@babel/standalone/babel.min.js",
		},
		Title: "Preview",
	}
}

// Bundle is one synthesized preview document.
type Bundle struct {
	HTML string `json:"html"`
	// Assets are non-source files mounted next to the document.
	Assets map[string]string `json:"assets,omitempty"`
	// RootComponent is the identifier the bootstrap renders.
	RootComponent string `json:"root_component"`
	RootPath      string `json:"root_path"`
	// Source is the concatenated, module-stripped component code.
	Source   string   `json:"source"`
	Styles   string   `json:"styles"`
	Hash     string   `json:"hash"`
	Warnings []string `json:"warnings,omitempty"`
}

// DataURL returns the document as a base64 data URL.
func (b *Bundle) DataURL() string {
	return "data:text/html;charset=utf-8;base64," + base64.StdEncoding.EncodeToString([]byte(b.HTML))
}

// Unit is one component file after module stripping.
type Unit struct {
	Path string `json:"path"`
	Code string `json:"code"`
	// Compiled is set when Code is already plain script.
	Compiled bool `json:"compiled,omitempty"`
}

// Parts is a file set partitioned for synthesis.
type Parts struct {
	Styles     []workspace.FlatFile
	Components []workspace.FlatFile
	Assets     []workspace.FlatFile
	Entries    []string
	Root       string
}

// Partition splits files into stylesheets, component sources (non-root
// first in file order, root last) and opaque assets. Entry files are left out
// because the bootstrap replaces them.
func Partition(files *workspace.Files, root string) Parts {
	p := Parts{Root: root}
	var rootFile *workspace.FlatFile
	for _, f := range files.List() {
		switch {
		case repair.IsStylesheet(f.Path):
			p.Styles = append(p.Styles, f)
		case repair.IsComponentFile(f.Path):
			if repair.IsEntryFile(f.Path) {
				p.Entries = append(p.Entries, f.Path)
				continue
			}
			if f.Path == root {
				rf := f
				rootFile = &rf
				continue
			}
			p.Components = append(p.Components, f)
		default:
			p.Assets = append(p.Assets, f)
		}
	}
	if rootFile != nil {
		p.Components = append(p.Components, *rootFile)
	}
	return p
}

// Synthesizer builds bundles. It holds no per-call state and is safe for
// concurrent use.
type Synthesizer struct {
	opts     Options
	minifier *minify.M
	log      *zap.Logger
}

// New returns a Synthesizer. Empty CDN URLs fall back to the defaults.
func New(opts Options) *Synthesizer {
	def := DefaultOptions()
	if opts.Transpile == "" {
		opts.Transpile = def.Transpile
	}
	if opts.CDN.React == "" {
		opts.CDN.React = def.CDN.React
	}
	if opts.CDN.ReactDOM == "" {
		opts.CDN.ReactDOM = def.CDN.ReactDOM
	}
	if opts.CDN.Babel == "" {
		opts.CDN.Babel = def.CDN.Babel
	}
	if opts.Title == "" {
		opts.Title = def.Title
	}

	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.AddFunc("text/html", html.Minify)
	m.AddFuncRegexp(regexp.MustCompile("^(application|text)/(x-)?(java|ecma)script$"), js.Minify)

	return &Synthesizer{opts: opts, minifier: m, log: logging.Named("bundler")}
}

// Options returns the effective options.
func (s *Synthesizer) Options() Options {
	return s.opts
}

// Synthesize builds the preview document for files. files is not modified; a
// project without a root component gets a placeholder root inside the bundle.
// Per-file transform failures become inline comment markers listed in
// Bundle.Warnings; only structural failures return an error.
func (s *Synthesizer) Synthesize(files *workspace.Files) (*Bundle, error) {
	if files == nil {
		return nil, ErrNilWorkspace
	}
	work := files.Clone()
	root, ok := repair.FindRoot(work)
	if !ok {
		root, _ = repair.EnsureRoot(work)
	}

	parts := Partition(work, root)
	b := &Bundle{RootPath: root, Assets: map[string]string{}}

	styles := make([]string, 0, len(parts.Styles))
	for _, f := range parts.Styles {
		styles = append(styles, f.Content)
	}
	b.Styles = strings.Join(styles, "\n")
	for _, f := range parts.Assets {
		b.Assets[f.Path] = f.Content
	}

	units := make([]Unit, 0, len(parts.Components))
	sources := make([]string, 0, len(parts.Components))
	for _, f := range parts.Components {
		stripped := StripModuleSyntax(f.Content, workspace.Base(f.Path))
		if f.Path == root {
			b.RootComponent = stripped.DefaultName
			if b.RootComponent == "" {
				b.RootComponent = identifier(repair.RootComponentName(root, stripped.Code))
			}
		}
		sources = append(sources, fmt.Sprintf("// %s\n%s", f.Path, stripped.Code))

		unit := Unit{Path: f.Path, Code: stripped.Code}
		if s.opts.Transpile == TranspileServer {
			compiled, err := Transform(f.Path, stripped.Code)
			if err != nil {
				s.log.Warn("transform failed", zap.String("path", f.Path), zap.Error(err))
				b.Warnings = append(b.Warnings, err.Error())
				compiled = failedMarker(f.Path, err)
			}
			unit.Code = compiled
			unit.Compiled = true
		}
		units = append(units, unit)
	}
	b.Source = strings.Join(sources, "\n\n")

	doc, err := renderDocument(documentData{
		Title:     s.title(files),
		Styles:    b.Styles,
		CDN:       s.opts.CDN,
		Transpile: s.opts.Transpile,
		Units:     units,
		Root:      b.RootComponent,
	})
	if err != nil {
		return nil, fmt.Errorf("render document: %w", err)
	}

	if s.opts.Minify {
		if min, err := s.minifier.String("text/html", doc); err != nil {
			s.log.Warn("minify failed, using original document", zap.Error(err))
			b.Warnings = append(b.Warnings, "minify: "+err.Error())
		} else {
			doc = min
		}
	}

	b.HTML = doc
	b.Hash = hashString(doc)
	s.log.Debug("synthesized bundle",
		zap.String("root", b.RootComponent),
		zap.Int("components", len(units)),
		zap.Int("assets", len(b.Assets)),
		zap.Int("warnings", len(b.Warnings)))
	return b, nil
}

// title prefers the <title> of a project index.html.
func (s *Synthesizer) title(files *workspace.Files) string {
	if p, ok := repair.FindMarkup(files); ok {
		if page := repair.ExtractPage(files, p); page.Title != "" {
			return page.Title
		}
	}
	return s.opts.Title
}

// ComputeCacheKey derives a cache key from a workspace hash and the options
// that change the output.
func ComputeCacheKey(filesHash string, opts Options) string {
	h := sha256.New()
	h.Write([]byte(filesHash))
	h.Write([]byte{0})
	h.Write([]byte(opts.Transpile))
	h.Write([]byte(fmt.Sprintf("%v", opts.Minify)))
	h.Write([]byte(opts.CDN.React))
	h.Write([]byte(opts.CDN.ReactDOM))
	h.Write([]byte(opts.CDN.Babel))
	h.Write([]byte(opts.Title))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
