package metrics

import (
	"regexp"
	"strings"
	"time"
)

var labelSanitizer = regexp.MustCompile(`[^a-z0-9_]+`)

// RecordParse records one parsed response.
func RecordParse(strategy string, files int) {
	m := Get()
	m.ParsesTotal.WithLabelValues(sanitizeLabel(strategy, "unknown")).Inc()
	m.ParsedFiles.Observe(float64(files))
}

// RecordRepair records one applied repair action.
func RecordRepair(kind string) {
	Get().RepairsTotal.WithLabelValues(sanitizeLabel(kind, "unknown")).Inc()
}

// RecordSynthesis records one bundle synthesis.
func RecordSynthesis(mode string, cached bool, warnings, size int, duration time.Duration, err error) {
	m := Get()
	mode = sanitizeLabel(mode, "unknown")
	result := "built"
	switch {
	case err != nil:
		result = "error"
	case cached:
		result = "cached"
	}
	m.SynthesesTotal.WithLabelValues(mode, result).Inc()
	if err != nil {
		return
	}
	m.SynthesisDuration.WithLabelValues(mode).Observe(duration.Seconds())
	m.SynthesisWarnings.Add(float64(warnings))
	m.BundleSize.Observe(float64(size))
	m.RecordCacheOperation("bundle", cached)
}

// RecordPreview records the outcome of one preview update.
func RecordPreview(strategy, outcome string, duration time.Duration) {
	m := Get()
	strategy = sanitizeLabel(strategy, "unknown")
	m.PreviewsTotal.WithLabelValues(strategy, sanitizeLabel(outcome, "unknown")).Inc()
	m.PreviewDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

// SetLiveSurfaces sets the current number of preview surfaces.
func SetLiveSurfaces(n int) {
	Get().LiveSurfaces.Set(float64(n))
}

// RecordRuntimeBoot records a sandbox runtime boot attempt.
func RecordRuntimeBoot(err error) {
	result := "ready"
	if err != nil {
		result = "failed"
	}
	Get().RuntimeBootsTotal.WithLabelValues(result).Inc()
}

// RecordPublish records a publish attempt.
func RecordPublish(target string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	Get().PublishesTotal.WithLabelValues(sanitizeLabel(target, "unknown"), result).Inc()
}

// RecordRateLimited counts a rejected request.
func RecordRateLimited() {
	Get().RateLimitedTotal.Inc()
}

// WebSocketConnected adjusts the live reload connection gauge.
func WebSocketConnected(delta int) {
	Get().WebSocketConnections.Add(float64(delta))
}

func sanitizeLabel(raw, fallback string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return fallback
	}
	s = labelSanitizer.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return fallback
	}
	if len(s) > 63 {
		s = s[:63]
	}
	return s
}
