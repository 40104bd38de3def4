package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apex-preview/internal/bundler"
	"apex-preview/internal/config"
	"apex-preview/internal/handlers"
	"apex-preview/internal/middleware"
	"apex-preview/internal/parser"
	"apex-preview/internal/preview"
)

const sampleResponse = `Here is your app.
<action type="file" path="src/App.tsx">
export default function App() { return <h1>Hello preview</h1>; }
</action>`

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("APEX_PREVIEW_CONFIG", "")
	t.Setenv("PREVIEW_STRATEGY", "")
	t.Setenv("TRANSPILE_MODE", "")
	t.Setenv("ENVIRONMENT", "")
	bundleOutput, publishName, configPath = "", "", ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestParseCommandFromStdin(t *testing.T) {
	out, err := runCLI(t, sampleResponse, "parse", "-")
	require.NoError(t, err)

	var report parseReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, parser.StrategyTagged, report.Strategy)
	assert.False(t, report.Fallback)
	require.Len(t, report.Steps, 1)
	assert.Equal(t, "src/App.tsx", report.Steps[0].Path)
	require.NotEmpty(t, report.Tree)
	assert.Equal(t, "src", report.Tree[0].Name)
}

func TestBundleCommandWritesDocument(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "response.md")
	require.NoError(t, os.WriteFile(in, []byte(sampleResponse), 0o644))
	outPath := filepath.Join(dir, "out.html")

	_, err := runCLI(t, "", "bundle", in, "-o", outPath)
	require.NoError(t, err)

	doc, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(doc), "<!DOCTYPE html>"))
	assert.Contains(t, string(doc), "Hello preview")
}

func TestBundleCommandMissingFile(t *testing.T) {
	_, err := runCLI(t, "", "bundle", filepath.Join(t.TempDir(), "missing.md"))
	require.Error(t, err)
}

const conflictingResponse = `<action type="file" path="src/App.tsx">
export default function App() { return null; }
</action>
<action type="file" path="src/App.tsx/extra.js">
export const x = 1;
</action>`

func TestBundleCommandWritesErrorDocument(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "out.html")

	_, err := runCLI(t, conflictingResponse, "bundle", "-", "-o", outPath)
	require.Error(t, err)

	doc, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(doc), "Preview Failed")
	assert.Contains(t, string(doc), "file and folder share a path")
}

func TestPublishCommandToDirectory(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("S3_BUCKET", "")
	t.Setenv("PUBLISH_DIR", dir)

	out, err := runCLI(t, sampleResponse, "publish", "-", "--name", "demo")
	require.NoError(t, err)

	var res struct {
		Target string   `json:"target"`
		Key    string   `json:"key"`
		Files  []string `json:"files"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "dir", res.Target)
	assert.Contains(t, res.Key, "demo")
	require.NotEmpty(t, res.Files)
	assert.FileExists(t, filepath.Join(dir, filepath.FromSlash(res.Files[0])))
}

func TestRebuildToWritesOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "live.html")
	handle := rebuildTo(newService(config.Default(), nil), out)

	require.NoError(t, handle(t.Context(), []byte(sampleResponse)))
	doc, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(doc), "Hello preview")
}

func TestRebuildToWritesErrorDocument(t *testing.T) {
	out := filepath.Join(t.TempDir(), "live.html")
	handle := rebuildTo(newService(config.Default(), nil), out)

	require.NoError(t, handle(t.Context(), []byte(sampleResponse)))
	require.Error(t, handle(t.Context(), []byte(conflictingResponse)))

	doc, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(doc), "Preview Failed")
	assert.NotContains(t, string(doc), "Hello preview")
}

func TestDefaultWatchOutput(t *testing.T) {
	assert.Equal(t, "resp.html", defaultWatchOutput("resp.md"))
	assert.Equal(t, "dir/resp.html", defaultWatchOutput("dir/resp"))
	assert.Equal(t, "page.html.preview.html", defaultWatchOutput("page.html"))
}

func TestProjectName(t *testing.T) {
	assert.Equal(t, "stdin", projectName("-"))
	assert.Equal(t, "landing", projectName("/tmp/x/landing.md"))
}

func TestBundleOptionsFromConfig(t *testing.T) {
	c := config.Default()
	c.Bundle.TranspileMode = config.TranspileServer
	c.Bundle.Minify = true
	c.Bundle.BabelURL = "https://cdn.example/babel.js"

	opts := bundleOptions(c)
	assert.Equal(t, bundler.TranspileServer, opts.Transpile)
	assert.True(t, opts.Minify)
	assert.Equal(t, "https://cdn.example/babel.js", opts.CDN.Babel)
	assert.Equal(t, c.Bundle.ReactURL, opts.CDN.React)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example"})

	req := httptest.NewRequest(http.MethodGet, "http://svc.local/ws", nil)
	assert.True(t, check(req), "no origin")

	req.Header.Set("Origin", "https://app.example")
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://svc.local")
	assert.True(t, check(req), "same host")

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))

	assert.True(t, originChecker([]string{"*"})(req))
}

func TestRouterHeaders(t *testing.T) {
	c := config.Default()
	service := newService(c, nil)
	stack, err := preview.NewStack(preview.FactoryConfig{Service: service})
	require.NoError(t, err)
	defer stack.Shutdown()

	limiter := middleware.NewIPRateLimiter(c.Limits.RequestsPerMinute, c.Limits.Burst)
	defer limiter.Stop()
	router := newRouter(c, handlers.NewHandler(parser.New(), service, stack, nil, nil), limiter)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/preview/bogus/", nil))
	assert.Empty(t, w.Header().Get("X-Frame-Options"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "frame-ancestors 'self'")
}
