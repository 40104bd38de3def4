// Package parser turns a free-form AI response into ordered file steps.
//
// Strategies are tried in order and the first one producing a usable file
// wins:
//
//  1. tagged blocks: <action type="file" path="...">...</action>
//  2. markdown filename headers (bold, heading or bare line), at least two
//  3. fenced code blocks with a body of MinFencedBodyLength or more
//  4. a single fallback component, so non-empty output is always produced
package parser

import (
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"apex-preview/internal/logging"
	"apex-preview/internal/metrics"
)

// Strategy names the cascade stage that produced a result.
type Strategy string

const (
	StrategyTagged   Strategy = "tagged"
	StrategyMarkdown Strategy = "markdown"
	StrategyFenced   Strategy = "fenced"
	StrategyFallback Strategy = "fallback"
)

// StatusComplete is the status tag given to every parsed step.
const StatusComplete = "complete"

// FallbackPath is where the fallback component is placed.
const FallbackPath = SourceDir + "/App.jsx"

// FallbackContent is the sentinel component emitted when nothing usable was
// found. Callers detect an unusable response by comparing against it.
const FallbackContent = `import React from 'react';

// apex-preview: no files could be recovered from the response
function App() {
  return (
    <div style={{ fontFamily: 'sans-serif', padding: '2rem' }}>
      <h1>Nothing to preview yet</h1>
      <p>The response did not contain any recognizable files.</p>
    </div>
  );
}

export default App;`

// Step is one file produced by a parse, in the shape consumed by the UI.
type Step struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Status  string `json:"status"`
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Result is the outcome of Parse.
type Result struct {
	Steps    []Step   `json:"steps"`
	Strategy Strategy `json:"strategy"`
}

// Fallback reports whether the result is the sentinel fallback.
func (r Result) Fallback() bool {
	return r.Strategy == StrategyFallback
}

// IsFallback reports whether steps consist of the sentinel fallback file only.
func IsFallback(steps []Step) bool {
	return len(steps) == 1 && steps[0].Content == FallbackContent
}

// Parser runs the strategy cascade. The zero value is not usable; use New.
type Parser struct {
	newID func() string
	log   *zap.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithIDGenerator replaces the uuid step ID source, mainly for tests.
func WithIDGenerator(fn func() string) Option {
	return func(p *Parser) {
		p.newID = fn
	}
}

// New returns a Parser.
func New(opts ...Option) *Parser {
	p := &Parser{
		newID: func() string { return uuid.NewString() },
		log:   logging.Named("parser"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var newlineReplacer = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// normalizeNewlines converts CRLF and lone CR line endings to LF.
func normalizeNewlines(s string) string {
	if !strings.Contains(s, "\r") {
		return s
	}
	return newlineReplacer.Replace(s)
}

// Parse is a convenience wrapper using a default Parser.
func Parse(raw string) Result {
	return New().Parse(raw)
}

type stage struct {
	name    Strategy
	find    func(string) ([]Section, bool)
	resolve func(Section) (string, string)
}

var stages = []stage{
	{
		name: StrategyTagged,
		find: ParseTagged,
		resolve: func(s Section) (string, string) {
			return SanitizePath(s.Name), s.Content
		},
	},
	{
		name: StrategyMarkdown,
		find: ParseMarkdownHeaders,
		resolve: func(s Section) (string, string) {
			return ResolvePath(s.Name), CleanContent(s.Content)
		},
	},
	{
		name: StrategyFenced,
		find: ParseFenced,
		resolve: func(s Section) (string, string) {
			return ResolvePath(s.Name), s.Content
		},
	},
}

// Parse extracts file steps from raw. It never returns zero steps and never
// fails.
func (p *Parser) Parse(raw string) Result {
	raw = normalizeNewlines(raw)
	for _, st := range stages {
		sections, ok := st.find(raw)
		if !ok {
			continue
		}
		steps := make([]Step, 0, len(sections))
		for _, s := range sections {
			path, content := st.resolve(s)
			if path == "" {
				p.log.Debug("dropping section with unusable path", zap.String("name", s.Name))
				continue
			}
			steps = append(steps, p.step(path, content))
		}
		if len(steps) == 0 {
			continue
		}
		p.log.Debug("parsed response",
			zap.String("strategy", string(st.name)),
			zap.Int("files", len(steps)))
		metrics.RecordParse(string(st.name), len(steps))
		return Result{Steps: steps, Strategy: st.name}
	}

	if strings.TrimSpace(raw) != "" {
		p.log.Info("no files recognized in response, using fallback", zap.Int("bytes", len(raw)))
	}
	metrics.RecordParse(string(StrategyFallback), 1)
	return Result{
		Steps:    []Step{p.step(FallbackPath, FallbackContent)},
		Strategy: StrategyFallback,
	}
}

func (p *Parser) step(path, content string) Step {
	return Step{
		ID:      p.newID(),
		Title:   "Create " + path,
		Status:  StatusComplete,
		Path:    path,
		Content: content,
	}
}
