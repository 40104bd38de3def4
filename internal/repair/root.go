package repair

import (
	"fmt"
	"path"
	"strings"

	"apex-preview/internal/workspace"
)

// RootCandidates are the conventional root component paths, in lookup order.
var RootCandidates = []string{
	"src/App.tsx", "src/App.ts", "src/App.jsx", "src/App.js",
	"App.tsx", "App.ts", "App.jsx", "App.js",
}

// GeneratedRootPath is where synthesized root components are written.
const GeneratedRootPath = "src/App.jsx"

// GeneratedEntryPath is where a synthesized render entry is written.
const GeneratedEntryPath = "src/main.jsx"

// FindRoot returns the first root candidate present in files.
func FindRoot(files *workspace.Files) (string, bool) {
	for _, p := range RootCandidates {
		if files.Has(p) {
			return p, true
		}
	}
	return "", false
}

// RootComponentName returns the identifier the root file renders: its first
// declared component, or its base name.
func RootComponentName(rootPath, content string) string {
	base := workspace.Base(rootPath)
	decls := DeclaredComponents(content)
	for _, d := range decls {
		if d == base {
			return d
		}
	}
	if len(decls) > 0 {
		return decls[0]
	}
	return base
}

// IsEntryFile reports whether p is a render/bootstrap entry (main.* or
// index.* script at the root or under src/).
func IsEntryFile(p string) bool {
	if !IsComponentFile(p) {
		return false
	}
	dir := workspace.Dir(p)
	if dir != "" && dir != "src" {
		return false
	}
	switch workspace.Base(p) {
	case "main", "index":
		return true
	}
	return false
}

// FindEntry returns the first entry file in files.
func FindEntry(files *workspace.Files) (string, bool) {
	for _, p := range files.Paths() {
		if IsEntryFile(p) {
			return p, true
		}
	}
	return "", false
}

// FindMarkup returns the project's index.html, preferring the root copy.
func FindMarkup(files *workspace.Files) (string, bool) {
	if files.Has("index.html") {
		return "index.html", true
	}
	for _, p := range files.Paths() {
		if path.Base(p) == "index.html" {
			return p, true
		}
	}
	return "", false
}

// EnsureRoot makes sure files has a root component. An existing root is left
// alone; a plain markup project is converted; otherwise a placeholder root is
// written. It returns the root path and the actions taken.
func EnsureRoot(files *workspace.Files) (string, []Action) {
	if root, ok := FindRoot(files); ok {
		return root, nil
	}
	if root, actions, ok := ConvertVanilla(files); ok {
		return root, actions
	}
	content, renders := placeholderRoot(files)
	files.Set(GeneratedRootPath, content)
	detail := "no root component or index.html"
	if renders != "" {
		detail = "placeholder renders " + renders
	}
	return GeneratedRootPath, []Action{{Kind: KindPlaceholderRoot, Path: GeneratedRootPath, Detail: detail}}
}

// placeholderRoot renders the first component declared by a non-entry source
// file, or a static notice when there is none.
func placeholderRoot(files *workspace.Files) (string, string) {
	for _, f := range files.List() {
		if !IsComponentFile(f.Path) || IsEntryFile(f.Path) {
			continue
		}
		if decls := DeclaredComponents(f.Content); len(decls) > 0 {
			name := decls[0]
			return fmt.Sprintf(`import React from 'react';

export default function App() {
  return <%s />;
}
`, name), name
		}
	}
	return `import React from 'react';

export default function App() {
  return (
    <div style={{ fontFamily: 'sans-serif', padding: '2rem' }}>
      <h1>Preview</h1>
      <p>No root component was generated for this project.</p>
    </div>
  );
}
`, ""
}

// EnsureEntry writes src/main.jsx rendering the root component when the
// project has no main.* or index.* entry. The inline bundle ignores entries;
// dev-server previews need one.
func EnsureEntry(files *workspace.Files, root string) []Action {
	if root == "" {
		return nil
	}
	if _, ok := FindEntry(files); ok {
		return nil
	}
	content, ok := files.Get(root)
	if !ok {
		return nil
	}

	name := RootComponentName(root, content)
	spec := RelativeImport(GeneratedEntryPath, root)
	importLine := fmt.Sprintf("import %s from '%s';", name, spec)
	if NamedExports(content)[name] && !HasDefaultExport(content) {
		importLine = fmt.Sprintf("import { %s } from '%s';", name, spec)
	}

	var b strings.Builder
	b.WriteString("import React from 'react';\n")
	b.WriteString("import ReactDOM from 'react-dom/client';\n")
	b.WriteString(importLine + "\n")
	for _, css := range []string{"src/index.css", "index.css"} {
		if files.Has(css) {
			b.WriteString(fmt.Sprintf("import '%s.css';\n", RelativeImport(GeneratedEntryPath, css)))
			break
		}
	}
	b.WriteString("\n")
	b.WriteString("ReactDOM.createRoot(document.getElementById('root')).render(\n")
	b.WriteString("  <React.StrictMode>\n")
	b.WriteString(fmt.Sprintf("    <%s />\n", name))
	b.WriteString("  </React.StrictMode>\n")
	b.WriteString(");\n")

	files.Set(GeneratedEntryPath, b.String())
	return []Action{{Kind: KindEntry, Path: GeneratedEntryPath, Detail: "renders " + name + " from " + root}}
}
