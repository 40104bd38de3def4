package repair

import (
	"fmt"
	"path"
	"strings"

	"apex-preview/internal/workspace"
)

// ComponentIndex maps a component base name to the file defining it. The
// first file in workspace order wins.
func ComponentIndex(files *workspace.Files) map[string]string {
	index := map[string]string{}
	for _, p := range files.Paths() {
		if !IsComponentFile(p) || IsEntryFile(p) {
			continue
		}
		base := workspace.Base(p)
		if _, taken := index[base]; !taken {
			index[base] = p
		}
	}
	return index
}

// MissingImport is an import FixImports would add to a file.
type MissingImport struct {
	Name   string
	Target string
	Line   string
}

// MissingImports lists the imports file p needs: capitalized tags that are
// neither imported nor declared locally and match another file's base name.
func MissingImports(files *workspace.Files, index map[string]string, p string) []MissingImport {
	content, ok := files.Get(p)
	if !ok {
		return nil
	}
	imported := ImportedNames(content)
	declared := map[string]bool{workspace.Base(p): true}
	for _, d := range DeclaredComponents(content) {
		declared[d] = true
	}

	var out []MissingImport
	for _, name := range UsedComponents(content) {
		if imported[name] || declared[name] {
			continue
		}
		target, ok := index[name]
		if !ok || target == p {
			continue
		}
		targetContent, _ := files.Get(target)
		out = append(out, MissingImport{
			Name:   name,
			Target: target,
			Line:   importLine(name, RelativeImport(p, target), targetContent),
		})
	}
	return out
}

func importLine(name, spec, targetContent string) string {
	if NamedExports(targetContent)[name] {
		return fmt.Sprintf("import { %s } from '%s';", name, spec)
	}
	return fmt.Sprintf("import %s from '%s';", name, spec)
}

// InsertImports places lines after the last import statement of content, or
// at the top when there is none.
func InsertImports(content string, lines []string) string {
	if len(lines) == 0 {
		return content
	}
	block := strings.Join(lines, "\n")
	stmts := Imports(content)
	if len(stmts) == 0 {
		return block + "\n" + content
	}
	at := stmts[len(stmts)-1].End
	return content[:at] + "\n" + block + content[at:]
}

// RetargetImports points local imports of p that resolve to no file at the
// file defining the component they bind. Only single-binding imports are
// moved; anything else stays as written.
func RetargetImports(files *workspace.Files, index map[string]string, p string) []Action {
	content, ok := files.Get(p)
	if !ok {
		return nil
	}
	stmts := Imports(content)
	var actions []Action
	for i := len(stmts) - 1; i >= 0; i-- {
		st := stmts[i]
		if !IsLocalSpecifier(st.Spec) || !moduleSpecifier(st.Spec) {
			continue
		}
		if _, ok := LookupModule(files, ResolveImport(p, st.Spec)); ok {
			continue
		}
		names := clauseNames(st.Clause)
		if len(names) != 1 {
			continue
		}
		target, ok := index[names[0]]
		if !ok || target == p {
			continue
		}
		spec := RelativeImport(p, target)
		stmt := strings.Replace(content[st.Start:st.End], st.Spec, spec, 1)
		content = content[:st.Start] + stmt + content[st.End:]
		actions = append([]Action{{Kind: KindRetarget, Path: p, Detail: st.Spec + " -> " + spec}}, actions...)
	}
	if len(actions) > 0 {
		files.Set(p, content)
	}
	return actions
}

// moduleSpecifier reports whether spec names a script module rather than an
// asset: no extension or a script extension.
func moduleSpecifier(spec string) bool {
	ext := path.Ext(spec)
	if ext == "" {
		return true
	}
	for _, e := range moduleExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// FixImports retargets broken component imports and adds missing ones to
// every component file. Running it again changes nothing.
func FixImports(files *workspace.Files) []Action {
	index := ComponentIndex(files)
	var actions []Action
	for _, p := range files.Paths() {
		if !IsComponentFile(p) {
			continue
		}
		actions = append(actions, RetargetImports(files, index, p)...)
		missing := MissingImports(files, index, p)
		if len(missing) == 0 {
			continue
		}
		lines := make([]string, 0, len(missing))
		for _, m := range missing {
			lines = append(lines, m.Line)
			actions = append(actions, Action{Kind: KindImport, Path: p, Detail: m.Line})
		}
		content, _ := files.Get(p)
		files.Set(p, InsertImports(content, lines))
	}
	return actions
}
