package bundler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"apex-preview/internal/logging"
	"apex-preview/internal/metrics"
	"apex-preview/internal/repair"
	"apex-preview/internal/workspace"
)

// Service runs the repair passes and synthesis for one file set, serving
// repeated inputs from a bundle cache when one is configured.
type Service struct {
	synth *Synthesizer
	cache *BundleCache
	log   *zap.Logger
}

// NewService creates a bundler service. cache may be nil.
func NewService(synth *Synthesizer, cache *BundleCache) *Service {
	return &Service{synth: synth, cache: cache, log: logging.Named("bundler-service")}
}

// Build is the outcome of one Service.Build call.
type Build struct {
	Bundle   *Bundle       `json:"bundle"`
	Report   repair.Report `json:"report"`
	Cached   bool          `json:"cached"`
	Duration time.Duration `json:"duration"`
}

// Build repairs a copy of files and synthesizes it. files is not modified.
func (s *Service) Build(ctx context.Context, files *workspace.Files) (*Build, error) {
	if files == nil {
		return nil, ErrNilWorkspace
	}
	start := time.Now()
	work := files.Clone()
	report := repair.Run(work)

	synthesize := func() (*Bundle, error) { return s.synth.Synthesize(work) }

	var (
		b      *Bundle
		cached bool
		err    error
	)
	if s.cache != nil {
		key := ComputeCacheKey(work.Hash(), s.synth.Options())
		b, cached, err = s.cache.GetOrBuild(ctx, key, synthesize)
	} else {
		b, err = synthesize()
	}
	metrics.RecordSynthesis(string(s.synth.Options().Transpile), cached, warningCount(b), documentSize(b), time.Since(start), err)
	if err != nil {
		return nil, err
	}
	for _, a := range report.Actions {
		metrics.RecordRepair(string(a.Kind))
	}

	out := &Build{Bundle: b, Report: report, Cached: cached, Duration: time.Since(start)}
	s.log.Info("bundle built",
		zap.Int("files", files.Len()),
		zap.Int("repairs", len(report.Actions)),
		zap.String("root", b.RootComponent),
		zap.Bool("cached", cached),
		zap.Duration("duration", out.Duration))
	return out, nil
}

// Options returns the synthesizer options.
func (s *Service) Options() Options {
	return s.synth.Options()
}

func warningCount(b *Bundle) int {
	if b == nil {
		return 0
	}
	return len(b.Warnings)
}

func documentSize(b *Bundle) int {
	if b == nil {
		return 0
	}
	return len(b.HTML)
}
