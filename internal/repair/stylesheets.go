package repair

import (
	"apex-preview/internal/workspace"
)

// DanglingStyles returns the stylesheet imports of p whose local target is
// missing from files. Package stylesheets are never reported.
func DanglingStyles(files *workspace.Files, p string) []StyleImport {
	content, ok := files.Get(p)
	if !ok {
		return nil
	}
	var out []StyleImport
	for _, imp := range StylesheetImports(content) {
		if !IsLocalSpecifier(imp.Spec) {
			continue
		}
		resolved := ResolveImport(p, imp.Spec)
		if resolved == "" || !files.Has(resolved) {
			out = append(out, imp)
		}
	}
	return out
}

// RemoveDanglingStyles deletes stylesheet import lines that point at files
// not present in the set. Other imports and code are left untouched.
func RemoveDanglingStyles(files *workspace.Files) []Action {
	var actions []Action
	for _, p := range files.Paths() {
		if !IsComponentFile(p) {
			continue
		}
		dangling := DanglingStyles(files, p)
		if len(dangling) == 0 {
			continue
		}
		content, _ := files.Get(p)
		for i := len(dangling) - 1; i >= 0; i-- {
			d := dangling[i]
			content = content[:d.Start] + content[d.End:]
			actions = append(actions, Action{Kind: KindStylesheet, Path: p, Detail: d.Spec})
		}
		files.Set(p, content)
	}
	return actions
}
