// Package filetree assembles parsed (path, content) pairs into the
// hierarchical FileNode tree shown by file browsers.
package filetree

import (
	"errors"
	"fmt"
	"strings"

	"apex-preview/internal/workspace"
)

// Node types, matching the "file" / "directory" split used by stored files.
const (
	TypeFile   = "file"
	TypeFolder = "folder"
)

// ErrPathConflict is returned when a file and a folder would share one path.
var ErrPathConflict = errors.New("filetree: file and folder share a path")

// Node is a File or a Folder. Folders own their children exclusively.
type Node struct {
	Type     string  `json:"type"`
	Name     string  `json:"name"`
	Path     string  `json:"path"`
	Content  string  `json:"content,omitempty"`
	Children []*Node `json:"children,omitempty"`
}

// IsFolder reports whether n is a folder.
func (n *Node) IsFolder() bool { return n.Type == TypeFolder }

func (n *Node) child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Pair is one resolved parser candidate.
type Pair struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Tree is the root of a FileNode hierarchy. The root itself is an unnamed
// folder and is not part of the JSON view.
type Tree struct {
	root  *Node
	files int
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{root: &Node{Type: TypeFolder}}
}

// Build assembles pairs in order. Later pairs with an equal path replace the
// content of earlier ones.
func Build(pairs []Pair) (*Tree, error) {
	t := New()
	for _, p := range pairs {
		if err := t.Insert(p.Path, p.Content); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Insert creates or overwrites the file at path, creating intermediate
// folders as needed. Paths that normalize to nothing are ignored.
func (t *Tree) Insert(path, content string) error {
	clean := workspace.NormalizePath(path)
	if clean == "" {
		return nil
	}
	segs := strings.Split(clean, "/")

	dir := t.root
	for i, seg := range segs[:len(segs)-1] {
		next := dir.child(seg)
		if next == nil {
			next = &Node{Type: TypeFolder, Name: seg, Path: strings.Join(segs[:i+1], "/")}
			dir.Children = append(dir.Children, next)
		} else if !next.IsFolder() {
			return fmt.Errorf("%w: %s is a file", ErrPathConflict, next.Path)
		}
		dir = next
	}

	name := segs[len(segs)-1]
	if existing := dir.child(name); existing != nil {
		if existing.IsFolder() {
			return fmt.Errorf("%w: %s is a folder", ErrPathConflict, existing.Path)
		}
		existing.Content = content
		return nil
	}
	dir.Children = append(dir.Children, &Node{Type: TypeFile, Name: name, Path: clean, Content: content})
	t.files++
	return nil
}

// Find returns the node at path, or nil.
func (t *Tree) Find(path string) *Node {
	clean := workspace.NormalizePath(path)
	if clean == "" {
		return nil
	}
	n := t.root
	for _, seg := range strings.Split(clean, "/") {
		if n = n.child(seg); n == nil {
			return nil
		}
	}
	return n
}

// Nodes returns the top-level nodes.
func (t *Tree) Nodes() []*Node {
	return t.root.Children
}

// Len returns the number of file nodes.
func (t *Tree) Len() int {
	return t.files
}

// Walk visits every node depth-first in child order. Returning false from fn
// skips the children of a folder.
func (t *Tree) Walk(fn func(n *Node) bool) {
	var visit func(nodes []*Node)
	visit = func(nodes []*Node) {
		for _, n := range nodes {
			if fn(n) && n.IsFolder() {
				visit(n.Children)
			}
		}
	}
	visit(t.root.Children)
}

// Flatten returns the files of the tree as a workspace, depth-first.
func (t *Tree) Flatten() *workspace.Files {
	files := workspace.New()
	t.Walk(func(n *Node) bool {
		if !n.IsFolder() {
			files.Set(n.Path, n.Content)
		}
		return true
	})
	return files
}

// Map returns a path->content mapping of every file.
func (t *Tree) Map() map[string]string {
	return t.Flatten().Map()
}

// FromWorkspace builds a tree from a workspace in its insertion order.
func FromWorkspace(files *workspace.Files) (*Tree, error) {
	t := New()
	for _, f := range files.List() {
		if err := t.Insert(f.Path, f.Content); err != nil {
			return nil, err
		}
	}
	return t, nil
}
