package parser

import (
	"path"
	"strings"
)

// SourceDir is the conventional directory for component sources.
const SourceDir = "src"

// SanitizePath normalizes a path taken from AI output: backslashes become
// slashes, leading "./" and "/" go away, empty and "." segments are dropped.
// Paths containing ".." segments are rejected with "".
func SanitizePath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.Trim(p, "`'\"")
	if p == "" {
		return ""
	}
	p = strings.ReplaceAll(p, "\\", "/")
	var segs []string
	for _, seg := range strings.Split(p, "/") {
		seg = strings.TrimSpace(seg)
		switch seg {
		case "", ".":
			continue
		case "..":
			return ""
		}
		segs = append(segs, seg)
	}
	return strings.Join(segs, "/")
}

// ResolvePath decides where a file named by the sectioner lives.
//
// This is a best-effort heuristic; AI output naming is unconstrained:
//   - names that already carry a directory are kept as given
//   - markup (index.html, *.html, *.htm) and manifests (*.json) stay at the root
//   - stylesheets and plain scripts (*.css, *.js) stay at the root
//   - components (*.tsx, *.jsx, *.ts) go under src/
//   - anything else defaults to src/
func ResolvePath(name string) string {
	clean := SanitizePath(name)
	if clean == "" {
		return ""
	}
	if strings.Contains(clean, "/") {
		return clean
	}

	switch strings.ToLower(path.Ext(clean)) {
	case ".html", ".htm", ".json", ".css", ".js":
		return clean
	case ".tsx", ".jsx", ".ts":
		return SourceDir + "/" + clean
	default:
		return SourceDir + "/" + clean
	}
}
