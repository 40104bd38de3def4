package bundler

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"apex-preview/internal/workspace"
)

// TransformError describes a file that could not be transpiled.
type TransformError struct {
	File    string `json:"file"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Message string `json:"message"`
	Text    string `json:"text,omitempty"`
}

func (e TransformError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// loaderFor picks the esbuild loader for a component file. Plain .js files
// frequently carry JSX in generated projects, so they use the JSX loader.
func loaderFor(path string) api.Loader {
	switch workspace.Ext(path) {
	case ".tsx":
		return api.LoaderTSX
	case ".ts":
		return api.LoaderTS
	default:
		return api.LoaderJSX
	}
}

// Transform transpiles one module-stripped component file to plain script
// with classic React.createElement JSX.
func Transform(path, code string) (string, error) {
	result := api.Transform(code, api.TransformOptions{
		Loader:      loaderFor(path),
		JSX:         api.JSXTransform,
		JSXFactory:  "React.createElement",
		JSXFragment: "React.Fragment",
		Target:      api.ES2020,
		Sourcefile:  path,
	})
	if len(result.Errors) > 0 {
		msg := result.Errors[0]
		te := TransformError{File: path, Message: msg.Text}
		if msg.Location != nil {
			te.Line = msg.Location.Line
			te.Column = msg.Location.Column
			te.Text = msg.Location.LineText
		}
		return "", te
	}
	return string(result.Code), nil
}

// failedMarker is the inline comment that replaces a file whose transform
// failed.
func failedMarker(path string, err error) string {
	detail := strings.ReplaceAll(err.Error(), "*/", "* /")
	return fmt.Sprintf("/* transform failed: %s: %s */", path, detail)
}
