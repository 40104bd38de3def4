package repair

import (
	"encoding/json"
	"regexp"
	"strings"

	"apex-preview/internal/workspace"
)

// PortingNote marks roots converted from pages whose scripts drove the DOM.
const PortingNote = "Interactive behavior from the original scripts was not converted. Port it to React state and effects manually."

// GeneratedStylesPath receives the concatenated stylesheets of a converted page.
const GeneratedStylesPath = "src/App.css"

var (
	bodyRe        = regexp.MustCompile(`(?is)<body\b[^>]*>(.*?)</body\s*>`)
	titleRe       = regexp.MustCompile(`(?is)<title\b[^>]*>(.*?)</title\s*>`)
	scriptBlockRe = regexp.MustCompile(`(?is)<script\b[^>]*>(.*?)</script\s*>`)
	scriptVoidRe  = regexp.MustCompile(`(?is)<script\b[^>]*/>`)
	styleBlockRe  = regexp.MustCompile(`(?is)<style\b[^>]*>(.*?)</style\s*>`)
	headRe        = regexp.MustCompile(`(?is)<head\b[^>]*>.*?</head\s*>`)
	docShellRe    = regexp.MustCompile(`(?is)<!doctype[^>]*>|</?html\b[^>]*>|</?body\b[^>]*>`)
)

// Page is what a plain markup/script/style project contributes to a
// generated root component.
type Page struct {
	Title       string
	Body        string
	Styles      string
	Scripts     string
	Interactive bool
	// Sources are the files subsumed by the conversion.
	Sources []string
}

// ExtractPage collects the body markup (scripts removed), the title, inline
// and file stylesheets and inline and file scripts of the page at markupPath.
func ExtractPage(files *workspace.Files, markupPath string) Page {
	doc, _ := files.Get(markupPath)
	page := Page{Sources: []string{markupPath}}

	if m := titleRe.FindStringSubmatch(doc); m != nil {
		page.Title = strings.TrimSpace(m[1])
	}

	var body string
	if m := bodyRe.FindStringSubmatch(doc); m != nil {
		body = m[1]
	} else {
		body = docShellRe.ReplaceAllString(headRe.ReplaceAllString(doc, ""), "")
	}

	var scripts []string
	for _, m := range scriptBlockRe.FindAllStringSubmatch(doc, -1) {
		if s := strings.TrimSpace(m[1]); s != "" {
			scripts = append(scripts, s)
		}
	}
	body = scriptBlockRe.ReplaceAllString(body, "")
	body = scriptVoidRe.ReplaceAllString(body, "")
	page.Body = strings.TrimSpace(body)

	var styles []string
	for _, m := range styleBlockRe.FindAllStringSubmatch(doc, -1) {
		if s := strings.TrimSpace(m[1]); s != "" {
			styles = append(styles, s)
		}
	}

	for _, f := range files.List() {
		switch {
		case f.Path == markupPath:
		case IsStylesheet(f.Path):
			styles = append(styles, strings.TrimSpace(f.Content))
			page.Sources = append(page.Sources, f.Path)
		case isPlainScript(f.Path):
			scripts = append(scripts, strings.TrimSpace(f.Content))
			page.Sources = append(page.Sources, f.Path)
		}
	}

	page.Styles = strings.Join(styles, "\n\n")
	page.Scripts = strings.Join(scripts, "\n\n")
	page.Interactive = DetectInteractive(page.Scripts)
	return page
}

func isPlainScript(p string) bool {
	switch workspace.Ext(p) {
	case ".js", ".mjs":
		return !IsToolingFile(p)
	}
	return false
}

// ConvertVanilla turns a plain markup project into a component project. It is
// a no-op when a root component exists or there is no index.html. The page's
// markup, stylesheet and script files are deleted after conversion.
func ConvertVanilla(files *workspace.Files) (string, []Action, bool) {
	if _, ok := FindRoot(files); ok {
		return "", nil, false
	}
	markupPath, ok := FindMarkup(files)
	if !ok {
		return "", nil, false
	}

	page := ExtractPage(files, markupPath)
	for _, p := range page.Sources {
		files.Delete(p)
	}
	if page.Styles != "" {
		files.Set(GeneratedStylesPath, page.Styles+"\n")
	}
	files.Set(GeneratedRootPath, RenderPage(page))

	detail := "static markup"
	if page.Interactive {
		detail = "interactive scripts need manual porting"
	}
	return GeneratedRootPath, []Action{{
		Kind:   KindVanilla,
		Path:   GeneratedRootPath,
		Detail: detail + "; replaced " + strings.Join(page.Sources, ", "),
	}}, true
}

// RenderPage generates the root component source for page. The markup is
// embedded verbatim and injected as raw HTML.
func RenderPage(page Page) string {
	var b strings.Builder
	if page.Interactive {
		b.WriteString("import React, { useEffect, useState } from 'react';\n")
	} else if page.Title != "" {
		b.WriteString("import React, { useEffect } from 'react';\n")
	} else {
		b.WriteString("import React from 'react';\n")
	}
	if page.Styles != "" {
		b.WriteString("import './App.css';\n")
	}
	b.WriteString("\n")

	if page.Interactive {
		b.WriteString("// NOTE: " + PortingNote + "\n")
		if page.Scripts != "" {
			b.WriteString("/*\nOriginal scripts:\n\n")
			b.WriteString(strings.ReplaceAll(page.Scripts, "*/", "* /"))
			b.WriteString("\n*/\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("const markup = `")
	b.WriteString(escapeTemplate(page.Body))
	b.WriteString("`;\n\n")

	b.WriteString("export default function App() {\n")
	if page.Interactive {
		b.WriteString("  // placeholder state for the ported behavior\n")
		b.WriteString("  const [state, setState] = useState({});\n\n")
	}
	if page.Title != "" {
		title, _ := json.Marshal(page.Title)
		b.WriteString("  useEffect(() => {\n")
		b.WriteString("    document.title = " + string(title) + ";\n")
		b.WriteString("  }, []);\n\n")
	}
	b.WriteString("  return <div className=\"app\" dangerouslySetInnerHTML={{ __html: markup }} />;\n")
	b.WriteString("}\n")
	return b.String()
}

func escapeTemplate(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "`", "\\`")
	return strings.ReplaceAll(s, "${", "\\${")
}
