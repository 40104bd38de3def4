package bundler

import (
	"regexp"
	"strings"

	"apex-preview/internal/repair"
)

var (
	defaultNamedDeclRe = regexp.MustCompile(`(?m)^([ \t]*)export\s+default\s+((?:async\s+)?function\b\*?\s*[\w$]+|class\s+[\w$]+)`)
	defaultNameRe      = regexp.MustCompile(`(?m)^[ \t]*export\s+default\s+(?:async\s+)?(?:function\b\*?|class)\s*([\w$]+)`)
	defaultAnonFuncRe  = regexp.MustCompile(`(?m)^([ \t]*)export\s+default\s+((?:async\s+)?function\b\*?)\s*\(`)
	defaultAnonClassRe = regexp.MustCompile(`(?m)^([ \t]*)export\s+default\s+class\s*(\{|extends\b)`)
	defaultIdentRe     = regexp.MustCompile(`(?m)^[ \t]*export\s+default\s+([A-Za-z_$][\w$]*)[ \t]*;?[ \t]*(?:\r?\n|$)`)
	defaultExprRe      = regexp.MustCompile(`(?m)^([ \t]*)export\s+default\s+`)

	exportListRe = regexp.MustCompile(`(?m)^[ \t]*export\s+(?:type\s+)?\{([^}]*)\}(?:\s*from\s*['"][^'"\n]*['"])?[ \t]*;?[ \t]*(?:\r?\n)?`)
	exportStarRe = regexp.MustCompile(`(?m)^[ \t]*export\s*\*(?:\s*as\s+[\w$]+)?\s*from\s*['"][^'"\n]*['"][ \t]*;?[ \t]*(?:\r?\n)?`)
	exportDeclRe = regexp.MustCompile(`(?m)^([ \t]*)export\s+((?:declare\s+)?(?:async\s+function|function|abstract\s+class|class|const|let|var|interface|type|enum)\b)`)

	identCleanRe = regexp.MustCompile(`[^A-Za-z0-9_]`)
)

// Stripped is a component source with its module syntax removed.
type Stripped struct {
	Code string
	// DefaultName is the identifier the file exported as default, if any.
	DefaultName string
}

// StripModuleSyntax removes import statements and export qualifiers so that
// several files can share one script scope. Default-exported declarations keep
// their names; anonymous ones and expressions are bound to fallbackName.
func StripModuleSyntax(src, fallbackName string) Stripped {
	fallbackName = identifier(fallbackName)
	out := Stripped{}

	code := removeImports(src)

	if defaultAnonClassRe.MatchString(code) {
		out.DefaultName = fallbackName
		code = defaultAnonClassRe.ReplaceAllString(code, "${1}class "+fallbackName+" ${2}")
	}
	if defaultAnonFuncRe.MatchString(code) {
		out.DefaultName = fallbackName
		code = defaultAnonFuncRe.ReplaceAllString(code, "${1}${2} "+fallbackName+"(")
	}
	if m := defaultNameRe.FindStringSubmatch(code); m != nil {
		out.DefaultName = m[1]
	}
	code = defaultNamedDeclRe.ReplaceAllString(code, "${1}${2}")
	if m := defaultIdentRe.FindStringSubmatch(code); m != nil {
		out.DefaultName = m[1]
		code = defaultIdentRe.ReplaceAllString(code, "")
	}
	if defaultExprRe.MatchString(code) {
		name := fallbackName
		if declares(code, name) {
			// export default memo(Header) next to function Header.
			name = "__default_" + name
		}
		out.DefaultName = name
		code = defaultExprRe.ReplaceAllString(code, "${1}const "+name+" = ")
	}

	for _, m := range exportListRe.FindAllStringSubmatch(code, -1) {
		for _, part := range strings.Split(m[1], ",") {
			fields := strings.Fields(part)
			if len(fields) == 3 && fields[1] == "as" && fields[2] == "default" {
				out.DefaultName = fields[0]
			}
		}
	}
	code = exportListRe.ReplaceAllString(code, "")
	code = exportStarRe.ReplaceAllString(code, "")
	code = exportDeclRe.ReplaceAllString(code, "${1}${2}")

	out.Code = strings.TrimSpace(code)
	return out
}

func removeImports(src string) string {
	stmts := repair.Imports(src)
	if len(stmts) == 0 {
		return src
	}
	var b strings.Builder
	last := 0
	for _, st := range stmts {
		b.WriteString(src[last:st.Start])
		last = st.End
		if last < len(src) && src[last] == '\n' {
			last++
		}
	}
	b.WriteString(src[last:])
	return b.String()
}

// declares reports whether code binds name at the start of a line.
func declares(code, name string) bool {
	re := regexp.MustCompile(`(?m)^[ \t]*(?:export\s+)?(?:(?:async\s+)?function\b\*?\s*|class\s+|(?:const|let|var)\s+)` + regexp.QuoteMeta(name) + `\b`)
	return re.MatchString(code)
}

// identifier turns a file base name into a usable script identifier.
func identifier(name string) string {
	name = identCleanRe.ReplaceAllString(name, "_")
	if name == "" {
		return "Component"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}
	return name
}
