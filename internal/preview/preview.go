package preview

import (
	"html/template"
	"path"
	"strings"
)

// Resource is one servable file of an artifact.
type Resource struct {
	Path        string
	Content     string
	ContentType string
}

// Resolve finds the resource for a request path inside the artifact. The
// root path serves the document; other paths are looked up among the mounted
// assets with the usual static-hosting fallbacks. reloadURL, when not empty,
// is the websocket address the document reconnects to for live reload.
func (a *Artifact) Resolve(requestPath, reloadURL string) (Resource, bool) {
	p := normalizePreviewPath(requestPath)
	if p == "" || p == "index.html" {
		doc := a.Document
		if reloadURL != "" {
			doc = InjectReloadScript(doc, reloadURL)
		}
		return Resource{Path: "index.html", Content: doc, ContentType: ContentType("index.html")}, true
	}
	for _, v := range previewLookupVariations(p) {
		if content, ok := a.Assets[v]; ok {
			return Resource{Path: v, Content: content, ContentType: ContentType(v)}, true
		}
	}
	return Resource{}, false
}

func normalizePreviewPath(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if p == "" {
		return ""
	}
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

func previewLookupVariations(p string) []string {
	p = normalizePreviewPath(p)
	return []string{
		p,
		p + ".html",
		p + "/index.html",
		"public/" + p,
		"src/" + p,
	}
}

var contentTypes = map[string]string{
	".html":  "text/html; charset=utf-8",
	".htm":   "text/html; charset=utf-8",
	".css":   "text/css; charset=utf-8",
	".js":    "application/javascript; charset=utf-8",
	".mjs":   "application/javascript; charset=utf-8",
	".jsx":   "application/javascript; charset=utf-8",
	".ts":    "application/typescript; charset=utf-8",
	".tsx":   "application/typescript; charset=utf-8",
	".json":  "application/json; charset=utf-8",
	".xml":   "application/xml; charset=utf-8",
	".svg":   "image/svg+xml",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".webp":  "image/webp",
	".ico":   "image/x-icon",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".txt":   "text/plain; charset=utf-8",
	".md":    "text/markdown; charset=utf-8",
}

// ContentType returns the response content type for a file path.
func ContentType(p string) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(p))]; ok {
		return ct
	}
	return "application/octet-stream"
}

const reloadScript = `
<script>
(function() {
  var url = '__RELOAD_URL__';
  if (url.indexOf('/') === 0) {
    url = (location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + url;
  }
  var ws = new WebSocket(url);
  ws.onmessage = function(event) {
    var data = JSON.parse(event.data);
    if (data.type === 'reload' && data.address) {
      window.location.replace(data.address);
    } else if (data.type === 'error') {
      console.error('[preview] build failed:', data.message);
    }
  };
  ws.onclose = function() {
    console.log('[preview] live reload disconnected');
  };
})();
</script>
`

// InjectReloadScript adds the live reload client before </body>, or at the
// end of the document.
func InjectReloadScript(doc, reloadURL string) string {
	script := strings.Replace(reloadScript, "__RELOAD_URL__", template.JSEscapeString(reloadURL), 1)
	if i := strings.LastIndex(doc, "</body>"); i >= 0 {
		return doc[:i] + script + doc[i:]
	}
	return doc + script
}

var notFoundTemplate = template.Must(template.New("404").Parse(`<!DOCTYPE html>
<html>
<head>
  <title>404 - Not Found</title>
  <style>
    body {
      font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, sans-serif;
      background: #0a0a0f;
      color: #fff;
      display: flex;
      align-items: center;
      justify-content: center;
      min-height: 100vh;
      margin: 0;
    }
    .container { text-align: center; padding: 40px; }
    h1 {
      font-size: 120px;
      margin: 0;
      background: linear-gradient(135deg, #06b6d4, #8b5cf6);
      -webkit-background-clip: text;
      -webkit-text-fill-color: transparent;
    }
    p { color: #64748b; font-size: 18px; }
    code { background: #1e1e2e; padding: 4px 8px; border-radius: 4px; color: #06b6d4; }
  </style>
</head>
<body>
  <div class="container">
    <h1>404</h1>
    <p>{{.Message}}: <code>{{.Path}}</code></p>
  </div>
</body>
</html>`))

// NotFoundPage renders the page served for missing files and expired links.
func NotFoundPage(message, p string) string {
	var buf strings.Builder
	if err := notFoundTemplate.Execute(&buf, map[string]string{"Message": message, "Path": p}); err != nil {
		return "404 " + message
	}
	return buf.String()
}
