package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Section is a provisionally detected file: a name (or authoritative path for
// tagged blocks) and the raw text that belongs to it.
type Section struct {
	Name    string
	Content string
	// Lang is the fence language for sections found by ParseFenced.
	Lang string
}

// MinFencedBodyLength is the shortest trimmed fence body accepted as a file.
// Shorter blocks are treated as inline illustrations.
const MinFencedBodyLength = 20

// SectionExtensions are the file extensions recognized by the markdown header
// strategy.
var SectionExtensions = []string{"html", "htm", "css", "js", "jsx", "ts", "tsx", "json"}

var (
	actionTagRe  = regexp.MustCompile(`(?is)<action\b([^>]*)>(.*?)</action\s*>`)
	actionAttrRe = regexp.MustCompile(`(?is)([a-z_:-]+)\s*=\s*"([^"]*)"`)

	headerPatterns = buildHeaderPatterns()

	componentDeclRe = regexp.MustCompile(`\b(?:function|const|class)\s+([A-Z][A-Za-z0-9_]*)`)

	markdown = goldmark.New()
)

func buildHeaderPatterns() []*regexp.Regexp {
	name := "`?([A-Za-z0-9_./-]+\\.(?:" + strings.Join(SectionExtensions, "|") + "))`?"
	label := `(?:file(?:name)?:[ \t]*)?`
	return []*regexp.Regexp{
		// **App.tsx** or - **File: src/App.tsx**:
		regexp.MustCompile(`(?mi)^[ \t]*(?:[-*][ \t]+)?\*\*[ \t]*` + label + name + `[ \t]*:?[ \t]*\*\*:?[ \t]*$`),
		// ## App.tsx
		regexp.MustCompile(`(?mi)^[ \t]*#{1,6}[ \t]+` + label + name + `[ \t]*:?[ \t]*$`),
		// App.tsx on a line of its own
		regexp.MustCompile(`(?mi)^[ \t]*` + label + name + `[ \t]*:?[ \t]*$`),
	}
}

// ParseTagged extracts <action type="file" path="...">...</action> blocks.
// Tag and attribute names match case-insensitively; bodies are trimmed.
// ok is false when no file action was found.
func ParseTagged(raw string) ([]Section, bool) {
	var sections []Section
	for _, m := range actionTagRe.FindAllStringSubmatch(raw, -1) {
		attrs := map[string]string{}
		for _, a := range actionAttrRe.FindAllStringSubmatch(m[1], -1) {
			attrs[strings.ToLower(a[1])] = a[2]
		}
		if !strings.EqualFold(attrs["type"], "file") {
			continue
		}
		p, ok := attrs["path"]
		if !ok || strings.TrimSpace(p) == "" {
			continue
		}
		sections = append(sections, Section{Name: p, Content: strings.TrimSpace(m[2])})
	}
	return sections, len(sections) > 0
}

// ParseMarkdownHeaders finds filename markers written as bold text, headings
// or bare lines. Patterns are tried in that order and the first one matching
// at least twice wins. Section i spans from the end of marker i to the start
// of marker i+1 (or the end of the text).
func ParseMarkdownHeaders(raw string) ([]Section, bool) {
	for _, re := range headerPatterns {
		matches := re.FindAllStringSubmatchIndex(raw, -1)
		if len(matches) < 2 {
			continue
		}
		sections := make([]Section, 0, len(matches))
		for i, m := range matches {
			end := len(raw)
			if i+1 < len(matches) {
				end = matches[i+1][0]
			}
			sections = append(sections, Section{
				Name:    raw[m[2]:m[3]],
				Content: raw[m[1]:end],
			})
		}
		return sections, true
	}
	return nil, false
}

// ParseFenced collects fenced code blocks whose trimmed body is at least
// MinFencedBodyLength long. Names come from a capitalized component
// declaration in the code (Name.jsx) or fall back to ComponentN.<ext>, N
// counting accepted blocks from 1.
func ParseFenced(raw string) ([]Section, bool) {
	blocks := fencedBlocks(raw)
	var sections []Section
	for _, b := range blocks {
		body := strings.TrimSpace(b.body)
		if len(body) < MinFencedBodyLength {
			continue
		}
		n := len(sections) + 1
		ext := extensionForLang(b.lang)
		name := fmt.Sprintf("Component%d.%s", n, ext)
		if declaresComponents(ext) {
			if m := componentDeclRe.FindStringSubmatch(body); m != nil {
				name = m[1] + ".jsx"
			}
		}
		sections = append(sections, Section{Name: name, Content: body, Lang: b.lang})
	}
	return sections, len(sections) > 0
}

type fence struct {
	lang string
	body string
}

// fencedBlocks walks the markdown AST of raw and returns every fenced code
// block in document order.
func fencedBlocks(raw string) []fence {
	src := []byte(raw)
	doc := markdown.Parser().Parse(text.NewReader(src))

	var out []fence
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fcb, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		var buf bytes.Buffer
		lines := fcb.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
		out = append(out, fence{
			lang: strings.ToLower(string(fcb.Language(src))),
			body: buf.String(),
		})
		return ast.WalkSkipChildren, nil
	})
	return out
}

// extensionForLang maps a fence language tag to a file extension.
func extensionForLang(lang string) string {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case "javascript", "js":
		return "js"
	case "jsx":
		return "jsx"
	case "typescript", "ts":
		return "ts"
	case "tsx":
		return "tsx"
	case "css":
		return "css"
	case "html":
		return "html"
	case "json":
		return "json"
	default:
		return "jsx"
	}
}

func declaresComponents(ext string) bool {
	switch ext {
	case "css", "html", "json":
		return false
	}
	return true
}
