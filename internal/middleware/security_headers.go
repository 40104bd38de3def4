package middleware

import (
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

// SecurityHeaders adds the security headers of API responses.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Next()
	}
}

// PreviewHeaders sets the policy of served preview documents. Generated code
// runs inline and is evaluated in the page, so scripts are limited to the
// page itself and the CDN origins of the runtime libraries. Documents may be
// framed by frameAncestors (default 'self'). It replaces the API headers set
// by SecurityHeaders when both are installed.
func PreviewHeaders(cdnURLs []string, frameAncestors ...string) gin.HandlerFunc {
	csp := PreviewCSP(cdnURLs, frameAncestors...)
	return func(c *gin.Context) {
		c.Writer.Header().Del("X-Frame-Options")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Cache-Control", "no-store")
		c.Header("Content-Security-Policy", csp)
		c.Next()
	}
}

// PreviewCSP builds the Content-Security-Policy of preview documents.
func PreviewCSP(cdnURLs []string, frameAncestors ...string) string {
	origins := cdnOrigins(cdnURLs)
	if len(frameAncestors) == 0 {
		frameAncestors = []string{"'self'"}
	}

	scriptSrc := append([]string{"'self'", "'unsafe-inline'", "'unsafe-eval'"}, origins...)
	directives := []string{
		"default-src 'self'",
		"script-src " + strings.Join(scriptSrc, " "),
		"style-src 'self' 'unsafe-inline' https:",
		"img-src 'self' data: blob: https:",
		"font-src 'self' data: https:",
		"connect-src 'self' ws: wss: https:",
		"object-src 'none'",
		"base-uri 'none'",
		"form-action 'none'",
		"frame-ancestors " + strings.Join(frameAncestors, " "),
	}
	return strings.Join(directives, "; ")
}

func cdnOrigins(urls []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			continue
		}
		origin := u.Scheme + "://" + u.Host
		if !seen[origin] {
			seen[origin] = true
			out = append(out, origin)
		}
	}
	return out
}
