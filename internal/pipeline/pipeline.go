// Package pipeline chains the parse and assembly stages: a raw response
// becomes steps, a file tree and the flat workspace the preview consumes.
package pipeline

import (
	"fmt"

	"apex-preview/internal/filetree"
	"apex-preview/internal/parser"
	"apex-preview/internal/workspace"
)

// Parsed is a response after parsing and assembly.
type Parsed struct {
	Result parser.Result
	Tree   *filetree.Tree
	Files  *workspace.Files
}

// Parse parses raw with p (a default parser when nil) and assembles the
// steps into a tree.
func Parse(p *parser.Parser, raw string) (*Parsed, error) {
	if p == nil {
		p = parser.New()
	}
	res := p.Parse(raw)
	pairs := make([]filetree.Pair, len(res.Steps))
	for i, s := range res.Steps {
		pairs[i] = filetree.Pair{Path: s.Path, Content: s.Content}
	}
	tree, err := filetree.Build(pairs)
	if err != nil {
		return nil, fmt.Errorf("assemble files: %w", err)
	}
	return &Parsed{Result: res, Tree: tree, Files: tree.Flatten()}, nil
}

// FromFlat builds a workspace from explicit files, validating that they form
// a tree.
func FromFlat(list []workspace.FlatFile) (*workspace.Files, *filetree.Tree, error) {
	files := workspace.FromList(list)
	tree, err := filetree.FromWorkspace(files)
	if err != nil {
		return nil, nil, fmt.Errorf("assemble files: %w", err)
	}
	return files, tree, nil
}
