package workspace

import "testing"

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "   ", want: ""},
		{in: "/index.html", want: "index.html"},
		{in: "./src/App.tsx", want: "src/App.tsx"},
		{in: "\\src\\App.tsx", want: "src/App.tsx"},
		{in: "src//components/./Header.tsx", want: "src/components/Header.tsx"},
		{in: "src/components/../App.tsx", want: "src/App.tsx"},
		{in: "../secrets.txt", want: ""},
		{in: ".", want: ""},
	}

	for _, tc := range tests {
		if got := NormalizePath(tc.in); got != tc.want {
			t.Fatalf("NormalizePath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFilesOverwriteKeepsPosition(t *testing.T) {
	f := New()
	f.Set("a.css", "1")
	f.Set("src/App.tsx", "2")
	f.Set("./a.css", "3")

	paths := f.Paths()
	if len(paths) != 2 || paths[0] != "a.css" || paths[1] != "src/App.tsx" {
		t.Fatalf("unexpected order: %v", paths)
	}
	if c, _ := f.Get("a.css"); c != "3" {
		t.Fatalf("content = %q, want 3", c)
	}
}

func TestFilesDelete(t *testing.T) {
	f := FromList([]FlatFile{{Path: "a", Content: "1"}, {Path: "b", Content: "2"}, {Path: "c", Content: "3"}})
	if !f.Delete("b") {
		t.Fatalf("expected delete to report removal")
	}
	if f.Delete("b") {
		t.Fatalf("second delete should be a no-op")
	}
	paths := f.Paths()
	if len(paths) != 2 || paths[0] != "a" || paths[1] != "c" {
		t.Fatalf("unexpected order after delete: %v", paths)
	}
}

func TestHashDependsOnOrderAndContent(t *testing.T) {
	a := FromList([]FlatFile{{Path: "a", Content: "1"}, {Path: "b", Content: "2"}})
	b := FromList([]FlatFile{{Path: "a", Content: "1"}, {Path: "b", Content: "2"}})
	c := FromList([]FlatFile{{Path: "b", Content: "2"}, {Path: "a", Content: "1"}})

	if a.Hash() != b.Hash() {
		t.Fatalf("identical sets hash differently")
	}
	if a.Hash() == c.Hash() {
		t.Fatalf("order should change the hash")
	}
}

func TestDirAndBase(t *testing.T) {
	if got := Dir("index.html"); got != "" {
		t.Fatalf("Dir(index.html) = %q", got)
	}
	if got := Dir("src/components/Header.tsx"); got != "src/components" {
		t.Fatalf("Dir = %q", got)
	}
	if got := Base("src/components/Header.tsx"); got != "Header" {
		t.Fatalf("Base = %q", got)
	}
	if got := Ext("src/App.TSX"); got != ".tsx" {
		t.Fatalf("Ext = %q", got)
	}
}
