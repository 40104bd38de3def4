package preview

import (
	"strings"
	"testing"
)

func TestNormalizePreviewPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "   ", want: ""},
		{in: "/index.html", want: "index.html"},
		{in: "./index.html", want: "index.html"},
		{in: "\\src\\App.tsx", want: "src/App.tsx"},
		{in: ".", want: ""},
		{in: "../../etc/passwd", want: "etc/passwd"},
	}

	for _, tc := range tests {
		if got := normalizePreviewPath(tc.in); got != tc.want {
			t.Fatalf("normalizePreviewPath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPreviewLookupVariationsIncludesNormalizedAndHtmlFallbacks(t *testing.T) {
	got := previewLookupVariations("/dashboard")
	want := []string{
		"dashboard",
		"dashboard.html",
		"dashboard/index.html",
		"public/dashboard",
		"src/dashboard",
	}

	if len(got) != len(want) {
		t.Fatalf("previewLookupVariations length = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("previewLookupVariations[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestArtifactResolve(t *testing.T) {
	a := &Artifact{
		Document: "<html><body><div id=\"root\"></div></body></html>",
		Assets: map[string]string{
			"public/logo.svg": "<svg/>",
			"about.html":      "<p>about</p>",
		},
	}

	doc, ok := a.Resolve("/", "/preview/ws/main")
	if !ok || doc.Path != "index.html" {
		t.Fatalf("Resolve(/) = %+v, %v", doc, ok)
	}
	if !strings.Contains(doc.Content, "new WebSocket") || !strings.HasSuffix(doc.Content, "</body></html>") {
		t.Fatalf("reload script not injected before </body>: %s", doc.Content)
	}

	plain, _ := a.Resolve("index.html", "")
	if plain.Content != a.Document {
		t.Fatalf("document changed without a reload url")
	}

	logo, ok := a.Resolve("logo.svg", "")
	if !ok || logo.Path != "public/logo.svg" || logo.ContentType != "image/svg+xml" {
		t.Fatalf("Resolve(logo.svg) = %+v, %v", logo, ok)
	}

	about, ok := a.Resolve("/about", "")
	if !ok || about.Content != "<p>about</p>" {
		t.Fatalf("Resolve(/about) = %+v, %v", about, ok)
	}

	if _, ok := a.Resolve("missing.js", ""); ok {
		t.Fatalf("Resolve(missing.js) should miss")
	}
}

func TestInjectReloadScriptWithoutBody(t *testing.T) {
	got := InjectReloadScript("<div></div>", "ws://host/x")
	if !strings.HasPrefix(got, "<div></div>") || !strings.Contains(got, "ws://host/x") {
		t.Fatalf("unexpected document: %s", got)
	}
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"a.css":     "text/css; charset=utf-8",
		"A.JS":      "application/javascript; charset=utf-8",
		"img.webp":  "image/webp",
		"blob.bin":  "application/octet-stream",
		"no-suffix": "application/octet-stream",
	}
	for in, want := range tests {
		if got := ContentType(in); got != want {
			t.Fatalf("ContentType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNotFoundPageEscapes(t *testing.T) {
	page := NotFoundPage("File not found", "<script>x</script>")
	if strings.Contains(page, "<script>x</script>") {
		t.Fatalf("path was not escaped")
	}
	if !strings.Contains(page, "File not found") {
		t.Fatalf("message missing")
	}
}
