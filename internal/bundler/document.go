package bundler

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
)

// hookNames are bound in the scope enclosing the program so that component
// code written against an imported React keeps working with the global one.
var hookNames = []string{
	"useState", "useEffect", "useLayoutEffect", "useRef", "useMemo",
	"useCallback", "useContext", "useReducer", "useId", "createContext",
	"forwardRef", "memo", "Fragment",
}

type documentData struct {
	Title     string
	Styles    string
	CDN       CDN
	Transpile TranspileMode
	Units     []Unit
	Root      string
}

// renderDocument writes the preview page. Component units are embedded as
// JSON and evaluated by the bootstrap in file order.
func renderDocument(d documentData) (string, error) {
	units, err := json.Marshal(d.Units)
	if err != nil {
		return "", fmt.Errorf("encode units: %w", err)
	}
	root, err := json.Marshal(d.Root)
	if err != nil {
		return "", fmt.Errorf("encode root: %w", err)
	}
	hooks, err := json.Marshal(hookNames)
	if err != nil {
		return "", fmt.Errorf("encode hooks: %w", err)
	}

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	b.WriteString("  <meta charset=\"UTF-8\">\n")
	b.WriteString("  <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	fmt.Fprintf(&b, "  <title>%s</title>\n", html.EscapeString(d.Title))
	b.WriteString("  <style>\n")
	b.WriteString(baseStyles)
	if d.Styles != "" {
		b.WriteString(escapeStyle(d.Styles))
		b.WriteString("\n")
	}
	b.WriteString("  </style>\n")
	fmt.Fprintf(&b, "  <script crossorigin src=\"%s\"></script>\n", html.EscapeString(d.CDN.React))
	fmt.Fprintf(&b, "  <script crossorigin src=\"%s\"></script>\n", html.EscapeString(d.CDN.ReactDOM))
	if d.Transpile != TranspileServer {
		fmt.Fprintf(&b, "  <script src=\"%s\"></script>\n", html.EscapeString(d.CDN.Babel))
	}
	b.WriteString("</head>\n<body>\n")
	b.WriteString("  <div id=\"root\"></div>\n")
	b.WriteString("  <script>\n")
	fmt.Fprintf(&b, "  var __units = %s;\n", units)
	fmt.Fprintf(&b, "  var __rootName = %s;\n", root)
	fmt.Fprintf(&b, "  var __hooks = %s;\n", hooks)
	b.WriteString(bootstrapScript)
	b.WriteString("  </script>\n")
	b.WriteString("</body>\n</html>\n")
	return b.String(), nil
}

// escapeStyle keeps stylesheet text from closing the enclosing element.
func escapeStyle(css string) string {
	css = strings.ReplaceAll(css, "</style", "<\\/style")
	return strings.ReplaceAll(css, "</STYLE", "<\\/STYLE")
}

const baseStyles = `    * { box-sizing: border-box; }
    body { margin: 0; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; }
    #__preview_error { position: fixed; inset: 0; margin: 0; padding: 24px; overflow: auto; background: #1a1a2e; color: #ff6b6b; font: 13px/1.5 monospace; white-space: pre-wrap; z-index: 2147483647; }
`

// bootstrapScript compiles each unit (Babel in the page unless the unit is
// already compiled), evaluates the concatenated program in a function whose
// outer scope binds the React hooks, and renders the root under an error
// boundary. Runtime failures are shown in a full-page panel.
const bootstrapScript = `  (function () {
    function showError(title, err) {
      var pre = document.getElementById('__preview_error');
      if (!pre) {
        pre = document.createElement('pre');
        pre.id = '__preview_error';
        document.body.appendChild(pre);
      }
      var detail = err && (err.stack || err.message) ? (err.stack || err.message) : String(err);
      pre.textContent = title + '\n\n' + detail;
      if (window.parent && window.parent !== window) {
        window.parent.postMessage({ type: 'preview-error', title: title, message: String(err && err.message || err) }, '*');
      }
    }
    window.addEventListener('error', function (e) { showError('Runtime error', e.error || e.message); });

    var compiled = [];
    for (var i = 0; i < __units.length; i++) {
      var unit = __units[i];
      if (unit.compiled) {
        compiled.push(unit.code);
        continue;
      }
      try {
        compiled.push(Babel.transform(unit.code, {
          filename: unit.path,
          presets: [['typescript', { isTSX: true, allExtensions: true }], 'react']
        }).code);
      } catch (err) {
        var msg = String(err && err.message || err).replace(/\*\//g, '* /');
        console.error('transform failed: ' + unit.path, err);
        compiled.push('/* transform failed: ' + unit.path + ': ' + msg + ' */');
      }
    }

    var prelude = 'var ' + __hooks.map(function (h) { return h + ' = React.' + h; }).join(', ') + ';\n';
    var body = prelude +
      'return (function () {\n' + compiled.join('\n;\n') + '\n;\n' +
      'return typeof ' + __rootName + ' !== "undefined" ? ' + __rootName + ' : null;\n})();';

    var Root;
    try {
      Root = new Function('React', 'ReactDOM', body)(React, ReactDOM);
    } catch (err) {
      showError('Failed to evaluate components', err);
      return;
    }
    if (!Root) {
      showError('Root component not found', __rootName + ' is not defined');
      return;
    }

    class ErrorBoundary extends React.Component {
      constructor(props) {
        super(props);
        this.state = { error: null };
      }
      static getDerivedStateFromError(error) {
        return { error: error };
      }
      componentDidCatch(error) {
        showError('Render error', error);
      }
      render() {
        if (this.state.error) {
          return null;
        }
        return this.props.children;
      }
    }

    ReactDOM.createRoot(document.getElementById('root')).render(
      React.createElement(ErrorBoundary, null, React.createElement(Root))
    );
  })();
`

// ErrorHTML renders a standalone page listing synthesis failures. It stands
// in for the document when a build produced none.
func ErrorHTML(errs []error) string {
	var list strings.Builder
	for _, err := range errs {
		list.WriteString("<div class='error'>")
		var te TransformError
		if errors.As(err, &te) {
			fmt.Fprintf(&list, "<span class='file'>%s", html.EscapeString(te.File))
			if te.Line > 0 {
				fmt.Fprintf(&list, ":%d:%d", te.Line, te.Column)
			}
			list.WriteString("</span><br>")
			fmt.Fprintf(&list, "<span class='message'>%s</span>", html.EscapeString(te.Message))
			if te.Text != "" {
				fmt.Fprintf(&list, "<pre class='code'>%s</pre>", html.EscapeString(te.Text))
			}
		} else {
			fmt.Fprintf(&list, "<span class='message'>%s</span>", html.EscapeString(err.Error()))
		}
		list.WriteString("</div>")
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
  <title>Preview Error</title>
  <style>
    body {
      font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, monospace;
      background: #1a1a2e;
      color: #eee;
      padding: 40px;
      margin: 0;
    }
    h1 { color: #ff6b6b; margin-bottom: 20px; }
    .error {
      background: #2d2d44;
      border-left: 4px solid #ff6b6b;
      padding: 16px;
      margin: 16px 0;
      border-radius: 4px;
    }
    .file { color: #4ecdc4; font-weight: bold; }
    .message { color: #ff6b6b; }
    .code {
      background: #1a1a2e;
      padding: 12px;
      border-radius: 4px;
      overflow-x: auto;
      color: #94a3b8;
    }
  </style>
</head>
<body>
  <h1>Preview Failed</h1>
  %s
</body>
</html>`, list.String())
}
