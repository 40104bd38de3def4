// Package repair applies best-effort structural fixes to a generated project
// so it can be rendered as one component tree. No pass ever fails; a pass
// whose precondition is absent does nothing.
package repair

import (
	"go.uber.org/zap"

	"apex-preview/internal/logging"
	"apex-preview/internal/workspace"
)

// Action kinds recorded in a Report.
const (
	KindVanilla         = "convert-vanilla"
	KindPlaceholderRoot = "placeholder-root"
	KindEntry           = "synthesize-entry"
	KindImport          = "add-import"
	KindRetarget        = "retarget-import"
	KindStylesheet      = "remove-stylesheet-import"
)

// Action is one applied fix.
type Action struct {
	Kind   string `json:"kind"`
	Path   string `json:"path"`
	Detail string `json:"detail,omitempty"`
}

// Report summarizes a Run.
type Report struct {
	Root    string   `json:"root"`
	Actions []Action `json:"actions,omitempty"`
}

// Count returns how many actions of kind were applied.
func (r Report) Count(kind string) int {
	n := 0
	for _, a := range r.Actions {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

// Run repairs files in place: root discovery or synthesis, entry synthesis,
// import repair (retargeting broken component imports, then adding missing
// ones) and dangling stylesheet removal, in that order.
func Run(files *workspace.Files) Report {
	log := logging.Named("repair")

	root, actions := EnsureRoot(files)
	report := Report{Root: root, Actions: actions}
	report.Actions = append(report.Actions, EnsureEntry(files, root)...)
	report.Actions = append(report.Actions, FixImports(files)...)
	report.Actions = append(report.Actions, RemoveDanglingStyles(files)...)

	for _, a := range report.Actions {
		log.Debug("applied fix",
			zap.String("kind", a.Kind),
			zap.String("path", a.Path),
			zap.String("detail", a.Detail))
	}
	return report
}
