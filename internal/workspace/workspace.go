// Package workspace holds the flat, insertion-ordered file set that the repair
// passes and the bundle synthesizer mutate in place.
package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"sort"
	"strings"
)

// FlatFile is one path/content record of a project.
type FlatFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Files is an insertion-ordered mapping from normalized path to content.
// Overwriting an existing path keeps its original position.
// A Files value is owned by a single synthesis call and is not safe for
// concurrent use.
type Files struct {
	order   []string
	content map[string]string
}

// New returns an empty file set.
func New() *Files {
	return &Files{content: make(map[string]string)}
}

// FromList builds a file set from records, later records overwriting earlier
// ones with the same normalized path.
func FromList(list []FlatFile) *Files {
	f := New()
	for _, file := range list {
		f.Set(file.Path, file.Content)
	}
	return f
}

// FromMap builds a file set from a map. Map iteration order is random, so the
// keys are inserted sorted to keep synthesis deterministic.
func FromMap(m map[string]string) *Files {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	f := New()
	for _, k := range keys {
		f.Set(k, m[k])
	}
	return f
}

// NormalizePath converts a logical path to the canonical key form:
// forward slashes, no leading "./" or "/", no empty or "." segments.
// ".." segments are resolved; a path escaping the root yields "".
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = strings.ReplaceAll(p, "\\", "/")
	var segs []string
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(segs) == 0 {
				return ""
			}
			segs = segs[:len(segs)-1]
		default:
			segs = append(segs, seg)
		}
	}
	return strings.Join(segs, "/")
}

// Set inserts or overwrites a file. Empty paths are ignored.
func (f *Files) Set(p, content string) {
	key := NormalizePath(p)
	if key == "" {
		return
	}
	if _, ok := f.content[key]; !ok {
		f.order = append(f.order, key)
	}
	f.content[key] = content
}

// Get returns the content stored at p.
func (f *Files) Get(p string) (string, bool) {
	c, ok := f.content[NormalizePath(p)]
	return c, ok
}

// Has reports whether p is present.
func (f *Files) Has(p string) bool {
	_, ok := f.content[NormalizePath(p)]
	return ok
}

// Delete removes p. It reports whether anything was removed.
func (f *Files) Delete(p string) bool {
	key := NormalizePath(p)
	if _, ok := f.content[key]; !ok {
		return false
	}
	delete(f.content, key)
	for i, k := range f.order {
		if k == key {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of files.
func (f *Files) Len() int {
	return len(f.order)
}

// Paths returns the paths in insertion order.
func (f *Files) Paths() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// List returns the files in insertion order.
func (f *Files) List() []FlatFile {
	out := make([]FlatFile, 0, len(f.order))
	for _, k := range f.order {
		out = append(out, FlatFile{Path: k, Content: f.content[k]})
	}
	return out
}

// Map returns a plain path->content copy.
func (f *Files) Map() map[string]string {
	out := make(map[string]string, len(f.order))
	for _, k := range f.order {
		out[k] = f.content[k]
	}
	return out
}

// Clone returns an independent copy preserving order.
func (f *Files) Clone() *Files {
	c := New()
	for _, k := range f.order {
		c.Set(k, f.content[k])
	}
	return c
}

// Hash returns a SHA-256 over paths and contents in insertion order.
func (f *Files) Hash() string {
	h := sha256.New()
	for _, k := range f.order {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(f.content[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Ext returns the lower-cased extension of p including the dot.
func Ext(p string) string {
	return strings.ToLower(path.Ext(p))
}

// Base returns the file name of p without its extension.
func Base(p string) string {
	b := path.Base(p)
	return strings.TrimSuffix(b, path.Ext(b))
}

// Dir returns the directory of p, "" for root-level files.
func Dir(p string) string {
	d := path.Dir(NormalizePath(p))
	if d == "." || d == "/" {
		return ""
	}
	return d
}
