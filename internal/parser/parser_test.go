package parser

import (
	"fmt"
	"strings"
	"testing"
)

func sequentialIDs() Option {
	n := 0
	return WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("step-%d", n)
	})
}

func TestParse_TaggedBlocks(t *testing.T) {
	raw := `Sure, here is the app.
<action type="file" path="src/App.tsx">
function App(){return null}
</action>
Some prose in between.
<ACTION TYPE="file" PATH="index.html">  <div id="root"></div>  </ACTION>`

	res := New(sequentialIDs()).Parse(raw)
	if res.Strategy != StrategyTagged {
		t.Fatalf("strategy = %q, want tagged", res.Strategy)
	}
	if len(res.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(res.Steps))
	}
	if res.Steps[0].Path != "src/App.tsx" || res.Steps[0].Content != "function App(){return null}" {
		t.Fatalf("step 0 = %+v", res.Steps[0])
	}
	if res.Steps[1].Path != "index.html" || res.Steps[1].Content != `<div id="root"></div>` {
		t.Fatalf("step 1 = %+v", res.Steps[1])
	}
	if res.Steps[0].ID != "step-1" || res.Steps[1].ID != "step-2" {
		t.Fatalf("unexpected ids: %q %q", res.Steps[0].ID, res.Steps[1].ID)
	}
	if res.Steps[0].Title != "Create src/App.tsx" || res.Steps[0].Status != StatusComplete {
		t.Fatalf("unexpected title/status: %+v", res.Steps[0])
	}
}

func TestParse_TaggedBlocksWinOverOtherFormats(t *testing.T) {
	raw := "**index.html**\nignored\n**App.tsx**\nignored\n" +
		"```jsx\nfunction Other() { return <div>other</div>; }\n```\n" +
		`<action type="file" path="src/Main.tsx">const x = 1;</action>`

	res := Parse(raw)
	if res.Strategy != StrategyTagged {
		t.Fatalf("strategy = %q, want tagged", res.Strategy)
	}
	if len(res.Steps) != 1 || res.Steps[0].Path != "src/Main.tsx" {
		t.Fatalf("unexpected steps: %+v", res.Steps)
	}
}

func TestParseTagged_IgnoresNonFileActions(t *testing.T) {
	raw := `<action type="shell">npm install</action><action type="file" path="a.css">body{}</action>`
	sections, ok := ParseTagged(raw)
	if !ok || len(sections) != 1 {
		t.Fatalf("expected 1 file section, got %d (ok=%v)", len(sections), ok)
	}
	if sections[0].Name != "a.css" || sections[0].Content != "body{}" {
		t.Fatalf("unexpected section: %+v", sections[0])
	}
}

func TestParseMarkdownHeaders_ContentBetweenMarkers(t *testing.T) {
	raw := "Here is the project.\n\n**index.html**\n```html\n<div id=\"root\"></div>\n```\n\n**App.tsx**\n```tsx\nexport default function App() { return <p>hi</p>; }\n```\n"

	sections, ok := ParseMarkdownHeaders(raw)
	if !ok {
		t.Fatalf("expected markdown headers to match")
	}
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(sections))
	}
	first := raw[strings.Index(raw, "**index.html**")+len("**index.html**") : strings.Index(raw, "**App.tsx**")]
	if sections[0].Name != "index.html" || sections[0].Content != first {
		t.Fatalf("section 0 = %+v, want content %q", sections[0], first)
	}
	last := raw[strings.Index(raw, "**App.tsx**")+len("**App.tsx**"):]
	if sections[1].Name != "App.tsx" || sections[1].Content != last {
		t.Fatalf("section 1 = %+v, want content %q", sections[1], last)
	}
}

func TestParse_MarkdownHeadersResolveAndClean(t *testing.T) {
	raw := "Here is the project.\n\n**index.html**\n```html\n<div id=\"root\"></div>\n```\n\n**App.tsx**\n```tsx\nexport default function App() { return <p>hi</p>; }\n```\n"

	res := Parse(raw)
	if res.Strategy != StrategyMarkdown {
		t.Fatalf("strategy = %q, want markdown", res.Strategy)
	}
	if len(res.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(res.Steps))
	}
	if res.Steps[0].Path != "index.html" || res.Steps[0].Content != `<div id="root"></div>` {
		t.Fatalf("step 0 = %+v", res.Steps[0])
	}
	if res.Steps[1].Path != "src/App.tsx" || res.Steps[1].Content != "export default function App() { return <p>hi</p>; }" {
		t.Fatalf("step 1 = %+v", res.Steps[1])
	}
}

func TestParse_CRLFLineEndings(t *testing.T) {
	lf := "**index.html**\n```html\n<div id=\"root\"></div>\n```\n\n**styles.css**\n```css\nbody { margin: 0; }\n```\n"

	for name, raw := range map[string]string{
		"crlf":    strings.ReplaceAll(lf, "\n", "\r\n"),
		"lone cr": strings.ReplaceAll(lf, "\n", "\r"),
	} {
		t.Run(name, func(t *testing.T) {
			res := Parse(raw)
			if res.Strategy != StrategyMarkdown {
				t.Fatalf("strategy = %q, want markdown", res.Strategy)
			}
			var paths []string
			for _, s := range res.Steps {
				paths = append(paths, s.Path)
				if strings.Contains(s.Content, "\r") {
					t.Errorf("%s content kept carriage returns: %q", s.Path, s.Content)
				}
			}
			if strings.Join(paths, " ") != "index.html styles.css" {
				t.Fatalf("paths = %v, want [index.html styles.css]", paths)
			}
		})
	}
}

func TestParseMarkdownHeaders_HeadingAndBareStyles(t *testing.T) {
	heading := "### styles.css\nbody { margin: 0 }\n### src/components/Nav.jsx\nexport const Nav = () => null;\n"
	sections, ok := ParseMarkdownHeaders(heading)
	if !ok || len(sections) != 2 {
		t.Fatalf("heading style: ok=%v sections=%d", ok, len(sections))
	}
	if sections[1].Name != "src/components/Nav.jsx" {
		t.Fatalf("name = %q", sections[1].Name)
	}

	bare := "main.js\nconsole.log(1)\n\nstyle.css:\nbody{}\n"
	sections, ok = ParseMarkdownHeaders(bare)
	if !ok || len(sections) != 2 {
		t.Fatalf("bare style: ok=%v sections=%d", ok, len(sections))
	}
	if sections[0].Name != "main.js" || sections[1].Name != "style.css" {
		t.Fatalf("names = %q, %q", sections[0].Name, sections[1].Name)
	}
}

func TestParseMarkdownHeaders_SingleMatchIsNotEnough(t *testing.T) {
	if _, ok := ParseMarkdownHeaders("**App.tsx**\nconst a = 1;\n"); ok {
		t.Fatalf("a single header must not bound a section")
	}
}

func TestParseFenced_NamesAndThreshold(t *testing.T) {
	raw := "Some intro\n```jsx\nfunction Header() {\n  return <h1>Header</h1>;\n}\n```\nand css\n```css\nbody { margin: 0; padding: 0; }\n```\n```js\nx=1\n```\n"

	sections, ok := ParseFenced(raw)
	if !ok {
		t.Fatalf("expected fenced blocks")
	}
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections (short block dropped), got %d", len(sections))
	}
	if sections[0].Name != "Header.jsx" {
		t.Fatalf("name 0 = %q", sections[0].Name)
	}
	if sections[1].Name != "Component2.css" {
		t.Fatalf("name 1 = %q", sections[1].Name)
	}

	res := Parse(raw)
	if res.Strategy != StrategyFenced {
		t.Fatalf("strategy = %q, want fenced", res.Strategy)
	}
	if res.Steps[0].Path != "src/Header.jsx" || res.Steps[1].Path != "Component2.css" {
		t.Fatalf("paths = %q, %q", res.Steps[0].Path, res.Steps[1].Path)
	}
}

func TestParseFenced_PlaceholderExtensions(t *testing.T) {
	body := "let counter = 0; counter += 1;"
	tests := []struct {
		lang string
		want string
	}{
		{lang: "javascript", want: "Component1.js"},
		{lang: "typescript", want: "Component1.ts"},
		{lang: "tsx", want: "Component1.tsx"},
		{lang: "json", want: "Component1.json"},
		{lang: "", want: "Component1.jsx"},
		{lang: "python", want: "Component1.jsx"},
	}
	for _, tc := range tests {
		raw := "```" + tc.lang + "\n" + body + "\n```\n"
		sections, ok := ParseFenced(raw)
		if !ok || len(sections) != 1 {
			t.Fatalf("lang %q: ok=%v n=%d", tc.lang, ok, len(sections))
		}
		if sections[0].Name != tc.want {
			t.Fatalf("lang %q: name = %q, want %q", tc.lang, sections[0].Name, tc.want)
		}
	}
}

func TestParse_ShortFenceFallsBack(t *testing.T) {
	res := Parse("```js\nabcde\n```")
	if res.Strategy != StrategyFallback || !res.Fallback() {
		t.Fatalf("strategy = %q, want fallback", res.Strategy)
	}
	if len(res.Steps) != 1 {
		t.Fatalf("expected exactly one fallback step, got %d", len(res.Steps))
	}
	if !IsFallback(res.Steps) {
		t.Fatalf("fallback content not detected")
	}
	if res.Steps[0].Path != FallbackPath {
		t.Fatalf("fallback path = %q", res.Steps[0].Path)
	}
}

func TestParse_NeverEmpty(t *testing.T) {
	for _, raw := range []string{"", "   ", "just some prose with no files", "<action type=\"file\" path=\"../escape.js\">x</action>"} {
		res := Parse(raw)
		if len(res.Steps) != 1 || !IsFallback(res.Steps) {
			t.Fatalf("Parse(%q) = %+v, want fallback", raw, res)
		}
	}
}

func TestCleanContent(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "fence wins over prose",
			in:   "\n### Title\nSome prose\n```tsx\ncode here\n```\nmore prose",
			want: "code here",
		},
		{
			name: "first fence only",
			in:   "```css\na{}\n```\n```css\nb{}\n```",
			want: "a{}",
		},
		{
			name: "decoration stripped",
			in:   "* line one\n\n# two\n  - three\n",
			want: "line one\ntwo\nthree",
		},
		{
			name: "empty",
			in:   "\n\n",
			want: "",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CleanContent(tc.in); got != tc.want {
				t.Fatalf("CleanContent() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestResolvePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Foo.tsx", want: "src/Foo.tsx"},
		{in: "index.html", want: "index.html"},
		{in: "styles.css", want: "styles.css"},
		{in: "package.json", want: "package.json"},
		{in: "app.js", want: "app.js"},
		{in: "Button.jsx", want: "src/Button.jsx"},
		{in: "util.ts", want: "src/util.ts"},
		{in: "README.md", want: "src/README.md"},
		{in: "components/Header.tsx", want: "components/Header.tsx"},
		{in: "./src/App.tsx", want: "src/App.tsx"},
		{in: "`App.tsx`", want: "src/App.tsx"},
		{in: "../x.js", want: ""},
		{in: "", want: ""},
	}
	for _, tc := range tests {
		if got := ResolvePath(tc.in); got != tc.want {
			t.Fatalf("ResolvePath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
