// Package logging provides structured logging for the preview service.
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger *zap.Logger
	once   sync.Once
)

// Options controls logger construction.
type Options struct {
	// Environment selects the encoder: "production" logs JSON, anything else
	// logs colored console output.
	Environment string
	// Level is a zap level name ("debug", "info", "warn", "error").
	Level string
}

// Init initializes the global logger from the ENVIRONMENT variable.
// Safe to call multiple times.
func Init() {
	once.Do(func() {
		build(Options{Environment: os.Getenv("ENVIRONMENT"), Level: os.Getenv("LOG_LEVEL")})
	})
}

// Configure replaces the global logger. It is called once from main after
// configuration is loaded.
func Configure(opts Options) {
	once.Do(func() {})
	build(opts)
}

func build(opts Options) {
	var cfg zap.Config
	if opts.Environment == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	if opts.Level != "" {
		if lvl, err := zapcore.ParseLevel(opts.Level); err == nil {
			cfg.Level = zap.NewAtomicLevelAt(lvl)
		}
	}

	l, err := cfg.Build()
	if err != nil {
		l = zap.NewNop()
	}

	mu.Lock()
	logger = l
	mu.Unlock()
}

// SetLogger installs l as the global logger. Tests use it with zaptest or
// observer loggers.
func SetLogger(l *zap.Logger) {
	once.Do(func() {})
	mu.Lock()
	logger = l
	mu.Unlock()
}

// L returns the global structured logger
func L() *zap.Logger {
	Init()
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Named returns a child of the global logger for one component.
func Named(component string) *zap.Logger {
	return L().Named(component)
}

// Sync flushes any buffered log entries. Call before app exit.
func Sync() {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		_ = l.Sync()
	}
}

// WithContext returns a logger with additional structured fields
func WithContext(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}
