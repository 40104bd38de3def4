package repair

import (
	"path"
	"regexp"
	"sort"
	"strings"

	"apex-preview/internal/workspace"
)

var (
	// <Header or <Layout.Main, not preceded by an identifier character so
	// generic type arguments like useState<Props> are skipped.
	jsxTagRe = regexp.MustCompile(`(?:^|[^\w$.])<([A-Z][\w$]*)`)

	// Any import statement, multi-line clauses included. Group 1 is the clause
	// (empty for side-effect imports), group 2 the module specifier.
	importStmtRe = regexp.MustCompile(`(?m)^[ \t]*import\b\s*(?:([\w$*{}\s,]*?)\s*\bfrom\s*)?['"]([^'"\n]*)['"][ \t]*;?`)

	styleImportRe = regexp.MustCompile(`(?m)^[ \t]*import\s+(?:[\w$]+\s+from\s+)?['"]([^'"\n]+\.css)['"][ \t]*;?[ \t]*(?:\r?\n)?`)

	declFuncRe  = regexp.MustCompile(`\b(?:function|class)\s+([A-Z][\w$]*)`)
	declConstRe = regexp.MustCompile(`\b(?:const|let|var)\s+([A-Z][\w$]*)\s*[=:]`)

	namedExportRe   = regexp.MustCompile(`(?m)^[ \t]*export\s+(?:async\s+)?(?:function\*?|class|const|let|var)\s+([\w$]+)`)
	exportListRe    = regexp.MustCompile(`(?m)^[ \t]*export\s*\{([^}]*)\}`)
	defaultExportRe = regexp.MustCompile(`(?m)^[ \t]*export\s+default\b`)

	interactiveRe = regexp.MustCompile(`addEventListener|getElementById|querySelector(?:All)?\s*\(|getElementsBy(?:ClassName|TagName|Name)|\bfetch\s*\(|XMLHttpRequest|\.innerHTML\b|\.outerHTML\b|insertAdjacentHTML|document\.write`)
)

// IsComponentFile reports whether p holds script or component source.
func IsComponentFile(p string) bool {
	switch workspace.Ext(p) {
	case ".tsx", ".jsx", ".ts", ".js", ".mjs":
		return !IsToolingFile(p)
	}
	return false
}

// IsToolingFile reports build configuration and type declaration files that
// are never part of the rendered component tree.
func IsToolingFile(p string) bool {
	base := path.Base(p)
	return strings.Contains(base, ".config.") || strings.HasSuffix(base, ".d.ts")
}

// IsStylesheet reports whether p is a CSS file.
func IsStylesheet(p string) bool {
	return workspace.Ext(p) == ".css"
}

// UsedComponents returns the capitalized JSX tag names used in content, in
// order of first appearance.
func UsedComponents(content string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range jsxTagRe.FindAllStringSubmatch(content, -1) {
		name := m[1]
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// ImportStatement is one import found in a file.
type ImportStatement struct {
	Clause string
	Spec   string
	Start  int
	End    int
}

// Imports lists the import statements of content in order.
func Imports(content string) []ImportStatement {
	var out []ImportStatement
	for _, m := range importStmtRe.FindAllStringSubmatchIndex(content, -1) {
		st := ImportStatement{Start: m[0], End: m[1], Spec: content[m[4]:m[5]]}
		if m[2] >= 0 {
			st.Clause = content[m[2]:m[3]]
		}
		out = append(out, st)
	}
	return out
}

// ImportedNames returns every local binding introduced by the imports of
// content: default, namespace and named (after "as" renames).
func ImportedNames(content string) map[string]bool {
	names := map[string]bool{}
	for _, st := range Imports(content) {
		for _, n := range clauseNames(st.Clause) {
			names[n] = true
		}
	}
	return names
}

func clauseNames(clause string) []string {
	clause = strings.TrimSpace(clause)
	clause = strings.TrimPrefix(clause, "type ")
	if clause == "" {
		return nil
	}

	var names []string
	outer := clause
	if open := strings.Index(clause, "{"); open >= 0 {
		end := strings.Index(clause[open:], "}")
		if end < 0 {
			end = len(clause) - open
		}
		inner := clause[open+1 : open+end]
		outer = clause[:open] + clause[min(len(clause), open+end+1):]
		for _, part := range strings.Split(inner, ",") {
			if n := bindingName(part); n != "" {
				names = append(names, n)
			}
		}
	}
	for _, part := range strings.Split(outer, ",") {
		if n := bindingName(part); n != "" {
			names = append(names, n)
		}
	}
	return names
}

func bindingName(part string) string {
	part = strings.TrimSpace(part)
	part = strings.TrimPrefix(part, "type ")
	if i := strings.LastIndex(part, " as "); i >= 0 {
		part = part[i+len(" as "):]
	}
	part = strings.TrimSpace(part)
	if part == "" || part == "*" {
		return ""
	}
	return part
}

// DeclaredComponents returns capitalized identifiers declared in content by
// function, class, const, let or var, in order of first appearance.
func DeclaredComponents(content string) []string {
	type hit struct {
		at   int
		name string
	}
	var hits []hit
	for _, re := range []*regexp.Regexp{declFuncRe, declConstRe} {
		for _, m := range re.FindAllStringSubmatchIndex(content, -1) {
			hits = append(hits, hit{at: m[0], name: content[m[2]:m[3]]})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].at < hits[j].at })
	var out []string
	seen := map[string]bool{}
	for _, h := range hits {
		if !seen[h.name] {
			seen[h.name] = true
			out = append(out, h.name)
		}
	}
	return out
}

// NamedExports returns the identifiers exported by name from content.
func NamedExports(content string) map[string]bool {
	names := map[string]bool{}
	for _, m := range namedExportRe.FindAllStringSubmatch(content, -1) {
		names[m[1]] = true
	}
	for _, m := range exportListRe.FindAllStringSubmatch(content, -1) {
		for _, part := range strings.Split(m[1], ",") {
			if n := bindingName(part); n != "" && n != "default" {
				names[n] = true
			}
		}
	}
	return names
}

// HasDefaultExport reports whether content has an export default statement.
func HasDefaultExport(content string) bool {
	return defaultExportRe.MatchString(content)
}

// StyleImport is a stylesheet import statement, including its line break.
type StyleImport struct {
	Statement string
	Spec      string
	Start     int
	End       int
}

// StylesheetImports lists the .css imports of content.
func StylesheetImports(content string) []StyleImport {
	var out []StyleImport
	for _, m := range styleImportRe.FindAllStringSubmatchIndex(content, -1) {
		out = append(out, StyleImport{
			Statement: content[m[0]:m[1]],
			Spec:      content[m[2]:m[3]],
			Start:     m[0],
			End:       m[1],
		})
	}
	return out
}

// IsLocalSpecifier reports whether spec refers to a project file rather than
// a package.
func IsLocalSpecifier(spec string) bool {
	return strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") ||
		spec == "." || spec == ".." || strings.HasPrefix(spec, "/")
}

// ResolveImport resolves a module specifier against the importing file.
// Package specifiers and paths escaping the project root resolve to "".
func ResolveImport(from, spec string) string {
	if !IsLocalSpecifier(spec) {
		return ""
	}
	if strings.HasPrefix(spec, "/") {
		return workspace.NormalizePath(spec)
	}
	dir := workspace.Dir(from)
	if dir == "" {
		return workspace.NormalizePath(spec)
	}
	return workspace.NormalizePath(dir + "/" + spec)
}

// RelativeImport returns the shortest relative specifier from the file at
// from to the file at to, without the target's extension.
func RelativeImport(from, to string) string {
	fromDir := splitDir(workspace.Dir(from))
	toDir := splitDir(workspace.Dir(to))

	common := 0
	for common < len(fromDir) && common < len(toDir) && fromDir[common] == toDir[common] {
		common++
	}

	var b strings.Builder
	ups := len(fromDir) - common
	if ups == 0 {
		b.WriteString("./")
	}
	for i := 0; i < ups; i++ {
		b.WriteString("../")
	}
	for _, seg := range toDir[common:] {
		b.WriteString(seg)
		b.WriteString("/")
	}
	b.WriteString(workspace.Base(to))
	return b.String()
}

func splitDir(dir string) []string {
	if dir == "" {
		return nil
	}
	return strings.Split(dir, "/")
}

// moduleExtensions are tried, in order, when an import omits the extension.
var moduleExtensions = []string{".tsx", ".ts", ".jsx", ".js", ".mjs"}

// LookupModule finds the file a resolved extension-less import points at,
// trying the exact path, known extensions and directory index files.
func LookupModule(files *workspace.Files, resolved string) (string, bool) {
	if resolved == "" {
		return "", false
	}
	if files.Has(resolved) {
		return resolved, true
	}
	for _, ext := range moduleExtensions {
		if files.Has(resolved + ext) {
			return resolved + ext, true
		}
	}
	for _, ext := range moduleExtensions {
		if p := resolved + "/index" + ext; files.Has(p) {
			return p, true
		}
	}
	return "", false
}

// DetectInteractive reports whether script references DOM APIs that a static
// markup conversion cannot carry over: event listeners, element lookups,
// network fetches or direct markup injection.
func DetectInteractive(script string) bool {
	return interactiveRe.MatchString(script)
}
