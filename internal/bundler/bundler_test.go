package bundler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"apex-preview/internal/cache"
	"apex-preview/internal/repair"
	"apex-preview/internal/workspace"
)

func sampleProject() *workspace.Files {
	return workspace.FromList([]workspace.FlatFile{
		{Path: "src/main.jsx", Content: "import App from './App';\nReactDOM.createRoot(document.getElementById('root')).render(<App />);"},
		{Path: "src/App.jsx", Content: "import Header from './Header';\nimport './App.css';\n\nexport default function App() {\n  const [n, setN] = useState(0);\n  return <div><Header />{n}</div>;\n}"},
		{Path: "src/Header.jsx", Content: "export const Header = () => <h1>Title</h1>;\n\nexport default Header;"},
		{Path: "src/App.css", Content: "h1 { color: teal; }"},
		{Path: "public/logo.svg", Content: "<svg></svg>"},
	})
}

func TestStripModuleSyntax(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		fallback string
		wantCode string
		wantName string
	}{
		{
			name:     "default function declaration",
			src:      "export default function App() {\n  return null\n}",
			fallback: "App",
			wantCode: "function App() {\n  return null\n}",
			wantName: "App",
		},
		{
			name:     "default arrow expression",
			src:      "export default () => <div/>",
			fallback: "Card",
			wantCode: "const Card = () => <div/>",
			wantName: "Card",
		},
		{
			name:     "default identifier",
			src:      "const Nav = () => null;\nexport default Nav;",
			fallback: "Navigation",
			wantCode: "const Nav = () => null;",
			wantName: "Nav",
		},
		{
			name:     "multi-line imports and named exports",
			src:      "import React from 'react';\nimport {\n  a,\n  b\n} from './x';\nexport const A = 1;\nexport function B() {}",
			fallback: "x",
			wantCode: "const A = 1;\nfunction B() {}",
		},
		{
			name:     "export list with default alias",
			src:      "function X() {}\nexport { X as default, Y };",
			fallback: "Other",
			wantCode: "function X() {}",
			wantName: "X",
		},
		{
			name:     "anonymous default class",
			src:      "export default class extends React.Component {}",
			fallback: "Widget",
			wantCode: "class Widget extends React.Component {}",
			wantName: "Widget",
		},
		{
			name:     "anonymous async default function",
			src:      "export default async function () {}",
			fallback: "load",
			wantCode: "async function load() {}",
			wantName: "load",
		},
		{
			name:     "re-exports dropped",
			src:      "export * from './a';\nexport { b } from './b';\nexport const x = 1;",
			fallback: "x",
			wantCode: "const x = 1;",
		},
		{
			name:     "default expression wrapping a declared component",
			src:      "function Header() { return <h1/>; }\nexport default memo(Header);",
			fallback: "Header",
			wantCode: "function Header() { return <h1/>; }\nconst __default_Header = memo(Header);",
			wantName: "__default_Header",
		},
		{
			name:     "default higher-order call on a declared const",
			src:      "export const Header = () => null;\nexport default connect(mapState)(Header);",
			fallback: "Header",
			wantCode: "const Header = () => null;\nconst __default_Header = connect(mapState)(Header);",
			wantName: "__default_Header",
		},
		{
			name:     "default expression with unrelated declarations",
			src:      "function Inner() { return null; }\nexport default memo(Inner);",
			fallback: "Card",
			wantCode: "function Inner() { return null; }\nconst Card = memo(Inner);",
			wantName: "Card",
		},
		{
			name:     "fallback name sanitized",
			src:      "export default () => null",
			fallback: "my-card",
			wantCode: "const my_card = () => null",
			wantName: "my_card",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StripModuleSyntax(tt.src, tt.fallback)
			if got.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.DefaultName != tt.wantName {
				t.Errorf("default name = %q, want %q", got.DefaultName, tt.wantName)
			}
		})
	}
}

func TestSynthesize_PlainRootHasNoExport(t *testing.T) {
	files := workspace.New()
	files.Set("src/App.tsx", "function App(){return null}")

	b, err := New(DefaultOptions()).Synthesize(files)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !strings.Contains(b.Source, "function App(){return null}") {
		t.Fatalf("source missing component: %q", b.Source)
	}
	if strings.Contains(b.Source, "export") {
		t.Errorf("source still contains export: %q", b.Source)
	}
	if b.RootComponent != "App" {
		t.Errorf("root component = %q, want App", b.RootComponent)
	}
	if files.Len() != 1 {
		t.Errorf("input file set modified: %v", files.Paths())
	}
}

func TestSynthesize_Deterministic(t *testing.T) {
	s := New(DefaultOptions())

	first, err := s.Synthesize(sampleProject())
	if err != nil {
		t.Fatalf("first Synthesize: %v", err)
	}
	second, err := s.Synthesize(sampleProject())
	if err != nil {
		t.Fatalf("second Synthesize: %v", err)
	}
	if first.HTML != second.HTML {
		t.Fatal("documents differ between runs")
	}
	if first.Hash != second.Hash {
		t.Errorf("hash %s != %s", first.Hash, second.Hash)
	}
}

func TestSynthesize_Layout(t *testing.T) {
	b, err := New(DefaultOptions()).Synthesize(sampleProject())
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	header := strings.Index(b.Source, "const Header")
	app := strings.Index(b.Source, "function App()")
	if header < 0 || app < 0 || header > app {
		t.Errorf("root must come after its dependencies:\n%s", b.Source)
	}
	if strings.Contains(b.Source, "createRoot") {
		t.Error("entry file must not be bundled")
	}
	if strings.Contains(b.Source, "import ") {
		t.Errorf("imports not stripped:\n%s", b.Source)
	}
	if b.Styles != "h1 { color: teal; }" {
		t.Errorf("styles = %q", b.Styles)
	}
	if b.Assets["public/logo.svg"] != "<svg></svg>" {
		t.Errorf("asset not mounted: %v", b.Assets)
	}
	if b.RootPath != "src/App.jsx" {
		t.Errorf("root path = %q", b.RootPath)
	}

	for _, want := range []string{
		`<div id="root"></div>`,
		"h1 { color: teal; }",
		"react@18/umd/react.development.js",
		"@babel/standalone",
		`var __rootName = "App";`,
		"ErrorBoundary",
	} {
		if !strings.Contains(b.HTML, want) {
			t.Errorf("document missing %q", want)
		}
	}
}

func TestSynthesize_DefaultExpressionKeepsScopeValid(t *testing.T) {
	files := workspace.New()
	files.Set("src/Header.jsx", "function Header() { return <h1>Title</h1>; }\nexport default memo(Header);")
	files.Set("src/App.jsx", "import Header from './Header';\nfunction App() { return <Header />; }\nexport default memo(App);")

	b, err := New(DefaultOptions()).Synthesize(files)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if strings.Contains(b.Source, "const Header =") || strings.Contains(b.Source, "const App =") {
		t.Errorf("declared name bound twice:\n%s", b.Source)
	}
	if _, err := Transform("bundle.jsx", b.Source); err != nil {
		t.Fatalf("concatenated program does not compile: %v", err)
	}
	if b.RootComponent != "__default_App" {
		t.Errorf("root component = %q, want __default_App", b.RootComponent)
	}
	if !strings.Contains(b.HTML, `var __rootName = "__default_App";`) {
		t.Error("bootstrap does not render the wrapped root")
	}
}

func TestSynthesize_EscapesStyleClose(t *testing.T) {
	files := workspace.New()
	files.Set("src/App.jsx", "function App() { return null }")
	files.Set("src/x.css", "a::after { content: '</style><script>alert(1)</script>'; }")

	b, err := New(DefaultOptions()).Synthesize(files)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if strings.Contains(b.HTML, "'</style><script>") {
		t.Fatal("stylesheet text closed the style element")
	}
	if !strings.Contains(b.HTML, `<\/style>`) {
		t.Error("escaped close tag not found")
	}
}

func TestSynthesize_ZeroComponents(t *testing.T) {
	files := workspace.New()
	files.Set("README.md", "# notes")

	b, err := New(DefaultOptions()).Synthesize(files)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if b.RootPath != repair.GeneratedRootPath {
		t.Errorf("root path = %q, want placeholder %q", b.RootPath, repair.GeneratedRootPath)
	}
	if b.RootComponent == "" {
		t.Error("placeholder root has no component name")
	}
	if !strings.Contains(b.HTML, `<div id="root"></div>`) {
		t.Error("document has no mount element")
	}
	if _, ok := b.Assets["README.md"]; !ok {
		t.Error("README.md should be mounted as an asset")
	}
}

func TestSynthesize_NilWorkspace(t *testing.T) {
	if _, err := New(DefaultOptions()).Synthesize(nil); !errors.Is(err, ErrNilWorkspace) {
		t.Fatalf("err = %v, want ErrNilWorkspace", err)
	}
}

func TestSynthesize_TitleFromMarkup(t *testing.T) {
	files := workspace.New()
	files.Set("index.html", "<html><head><title>Demo</title></head><body><h1>Hi</h1></body></html>")

	b, err := New(DefaultOptions()).Synthesize(files)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !strings.Contains(b.HTML, "<title>Demo</title>") {
		t.Error("title not taken from index.html")
	}
	if !strings.Contains(b.Source, "<h1>Hi</h1>") {
		t.Errorf("converted markup missing from source:\n%s", b.Source)
	}
}

func TestSynthesize_ServerTransformIsolatesFailures(t *testing.T) {
	files := workspace.New()
	files.Set("src/Good.jsx", "export function Good() { return <div>ok</div>; }")
	files.Set("src/Bad.jsx", "export function Bad() { return <div>; }")
	files.Set("src/App.tsx", "export default function App(): JSX.Element { return <Good />; }")

	opts := DefaultOptions()
	opts.Transpile = TranspileServer
	b, err := New(opts).Synthesize(files)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if len(b.Warnings) != 1 || !strings.Contains(b.Warnings[0], "src/Bad.jsx") {
		t.Fatalf("warnings = %v, want one for src/Bad.jsx", b.Warnings)
	}
	if !strings.Contains(b.HTML, "/* transform failed: src/Bad.jsx") {
		t.Error("failure marker missing from document")
	}
	if !strings.Contains(b.HTML, "React.createElement") {
		t.Error("good files were not compiled")
	}
	if strings.Contains(b.HTML, "@babel/standalone") {
		t.Error("server mode must not load the in-browser compiler")
	}
	if strings.Contains(b.HTML, "JSX.Element") {
		t.Error("type annotations survived the transform")
	}
}

func TestTransform(t *testing.T) {
	out, err := Transform("src/A.tsx", "const n: number = 1;\nconst el = <b>{n}</b>;")
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if !strings.Contains(out, "React.createElement") || strings.Contains(out, ": number") {
		t.Errorf("unexpected output: %q", out)
	}

	_, err = Transform("src/B.jsx", "const x = <div>;")
	var te TransformError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TransformError", err)
	}
	if te.File != "src/B.jsx" || te.Line == 0 {
		t.Errorf("error location = %+v", te)
	}
}

func TestSynthesize_Minify(t *testing.T) {
	plain, err := New(DefaultOptions()).Synthesize(sampleProject())
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	opts := DefaultOptions()
	opts.Minify = true
	min, err := New(opts).Synthesize(sampleProject())
	if err != nil {
		t.Fatalf("Synthesize minified: %v", err)
	}
	if len(min.HTML) >= len(plain.HTML) {
		t.Errorf("minified document is not smaller: %d >= %d", len(min.HTML), len(plain.HTML))
	}
	if !strings.Contains(min.HTML, "__units") {
		t.Error("bootstrap missing after minification")
	}
}

func TestBundle_DataURL(t *testing.T) {
	b := &Bundle{HTML: "<p>x</p>"}
	if got := b.DataURL(); got != "data:text/html;charset=utf-8;base64,PHA+eDwvcD4=" {
		t.Errorf("DataURL = %q", got)
	}
}

func TestComputeCacheKey(t *testing.T) {
	opts := DefaultOptions()
	a := ComputeCacheKey("abc", opts)
	if a != ComputeCacheKey("abc", opts) {
		t.Fatal("key not stable")
	}
	opts.Minify = true
	if a == ComputeCacheKey("abc", opts) {
		t.Error("options must change the key")
	}
	if a == ComputeCacheKey("abd", DefaultOptions()) {
		t.Error("workspace hash must change the key")
	}
}

func TestBundleCache_GetOrBuild(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemory(cache.Config{MaxItems: 10})
	defer mem.Close()
	bc := NewBundleCache(mem, 0)

	calls := 0
	build := func() (*Bundle, error) {
		calls++
		return &Bundle{HTML: "<html></html>", RootComponent: "App", Hash: "h"}, nil
	}

	first, hit, err := bc.GetOrBuild(ctx, "k", build)
	if err != nil || hit {
		t.Fatalf("first call: hit=%v err=%v", hit, err)
	}
	second, hit, err := bc.GetOrBuild(ctx, "k", build)
	if err != nil || !hit {
		t.Fatalf("second call: hit=%v err=%v", hit, err)
	}
	if calls != 1 {
		t.Errorf("build called %d times", calls)
	}
	if first.HTML != second.HTML || second.RootComponent != "App" {
		t.Errorf("cached bundle differs: %+v", second)
	}

	if err := bc.Invalidate(ctx, "k"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, err := bc.Get(ctx, "k"); !errors.Is(err, cache.ErrCacheMiss) {
		t.Errorf("err = %v, want miss", err)
	}
}

func TestService_Build(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemory(cache.Config{MaxItems: 10})
	defer mem.Close()
	svc := NewService(New(DefaultOptions()), NewBundleCache(mem, 0))

	files := workspace.New()
	files.Set("src/Header.tsx", "function Header() { return <h1>Hi</h1> }\nexport default Header;")
	files.Set("src/App.tsx", "export default function App() { return <Header /> }")

	build, err := svc.Build(ctx, files)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if build.Cached {
		t.Error("first build should not be cached")
	}
	if build.Report.Count(repair.KindImport) != 1 {
		t.Errorf("report = %+v, want one import repair", build.Report)
	}
	if build.Report.Count(repair.KindEntry) != 1 {
		t.Errorf("report = %+v, want a synthesized entry", build.Report)
	}
	if content, _ := files.Get("src/App.tsx"); strings.Contains(content, "import") {
		t.Error("Build modified its input")
	}

	again, err := svc.Build(ctx, files)
	if err != nil {
		t.Fatalf("second Build: %v", err)
	}
	if !again.Cached {
		t.Error("second build should be served from the cache")
	}
	if again.Bundle.HTML != build.Bundle.HTML {
		t.Error("cached document differs")
	}
}

func TestErrorHTML(t *testing.T) {
	_, terr := Transform("src/B.jsx", "const x = <div>;")
	doc := ErrorHTML([]error{
		fmt.Errorf("synthesize: %w", terr),
		errors.New("root <App> missing"),
	})

	if !strings.HasPrefix(doc, "<!DOCTYPE html>") {
		t.Fatalf("not a document: %q", doc[:20])
	}
	for _, want := range []string{"Preview Failed", "src/B.jsx:", "root &lt;App&gt; missing"} {
		if !strings.Contains(doc, want) {
			t.Errorf("error document missing %q", want)
		}
	}
}
