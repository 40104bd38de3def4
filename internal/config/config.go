// Package config loads preview service configuration from .env, an optional
// YAML file and environment variables, in that order of precedence (lowest
// first).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	StrategyInline    = "inline"
	StrategyDevServer = "devserver"

	TranspileBrowser = "browser"
	TranspileServer  = "server"
)

// Config is the complete service configuration.
type Config struct {
	Port        string `yaml:"port"`
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`

	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`

	// AllowedOrigins lists CORS origins; "*" allows any.
	AllowedOrigins []string `yaml:"allowed_origins"`

	Preview  PreviewConfig  `yaml:"preview"`
	Bundle   BundleConfig   `yaml:"bundle"`
	Cache    CacheConfig    `yaml:"cache"`
	Publish  PublishConfig  `yaml:"publish"`
	Limits   LimitsConfig   `yaml:"limits"`
	DevServe DevServeConfig `yaml:"devserver"`
}

// PreviewConfig controls the preview host.
type PreviewConfig struct {
	Strategy string `yaml:"strategy"`
	Secret   string `yaml:"secret"`
	// PreviousSecret still verifies links during a key rotation.
	PreviousSecret string        `yaml:"previous_secret"`
	BaseURL        string        `yaml:"base_url"`
	LinkTTL        time.Duration `yaml:"link_ttl"`
}

// BundleConfig controls bundle synthesis.
type BundleConfig struct {
	TranspileMode string `yaml:"transpile_mode"`
	Minify        bool   `yaml:"minify"`
	ReactURL      string `yaml:"react_url"`
	ReactDOMURL   string `yaml:"react_dom_url"`
	BabelURL      string `yaml:"babel_url"`
}

// CacheConfig controls the bundle cache.
type CacheConfig struct {
	Size int           `yaml:"size"`
	TTL  time.Duration `yaml:"ttl"`
}

// PublishConfig selects where published bundles go. A bucket selects S3,
// otherwise Dir is used.
type PublishConfig struct {
	S3Bucket string `yaml:"s3_bucket"`
	S3Region string `yaml:"s3_region"`
	S3Prefix string `yaml:"s3_prefix"`
	Dir      string `yaml:"dir"`

	// Static credentials and a custom endpoint are optional; the default AWS
	// credential chain is used otherwise.
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3AccessKey string `yaml:"s3_access_key"`
	S3SecretKey string `yaml:"s3_secret_key"`
	PublicURL   string `yaml:"public_url"`
}

// LimitsConfig holds per-IP request limits.
type LimitsConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// DevServeConfig configures the install + dev-server preview strategy.
type DevServeConfig struct {
	WorkDir    string        `yaml:"workdir"`
	InstallCmd string        `yaml:"install_cmd"`
	DevCmd     string        `yaml:"dev_cmd"`
	ReadyWait  time.Duration `yaml:"ready_wait"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:        "8080",
		Environment: EnvDevelopment,
		LogLevel:    "info",
		DatabaseURL: "file:apex-preview.db?cache=shared",
		AllowedOrigins: []string{
			"http://localhost:3000",
			"http://localhost:5173",
		},
		Preview: PreviewConfig{
			Strategy: StrategyInline,
			BaseURL:  "",
			LinkTTL:  time.Hour,
		},
		Bundle: BundleConfig{
			TranspileMode: TranspileBrowser,
			ReactURL:      "https://unpkg.com/react@18/umd/react.development.js",
			ReactDOMURL:   "https://unpkg.com/react-dom@18/umd/react-dom.development.js",
			BabelURL:      "https://unpkg.com/@babel/standalone/babel.min.js",
		},
		Cache: CacheConfig{
			Size: 100,
			TTL:  10 * time.Minute,
		},
		Publish: PublishConfig{
			S3Prefix: "previews",
			Dir:      "published",
		},
		Limits: LimitsConfig{
			RequestsPerMinute: 600,
			Burst:             30,
		},
		DevServe: DevServeConfig{
			WorkDir:    os.TempDir() + "/apex-preview-devserver",
			InstallCmd: "npm install --no-audit --no-fund",
			DevCmd:     "npm run dev -- --host 127.0.0.1",
			ReadyWait:  2 * time.Minute,
		},
	}
}

// Load builds the configuration. path may be empty; APEX_PREVIEW_CONFIG is
// consulted in that case.
func Load(path string) (*Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = os.Getenv("APEX_PREVIEW_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Environment = getEnvAny([]string{"ENVIRONMENT", "APEX_ENV", "ENV"}, cfg.Environment)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitList(origins)
	}

	cfg.Preview.Strategy = strings.ToLower(getEnv("PREVIEW_STRATEGY", cfg.Preview.Strategy))
	cfg.Preview.Secret = getEnv("PREVIEW_SECRET", cfg.Preview.Secret)
	cfg.Preview.PreviousSecret = getEnv("PREVIEW_SECRET_PREVIOUS", cfg.Preview.PreviousSecret)
	cfg.Preview.BaseURL = getEnv("PREVIEW_BASE_URL", cfg.Preview.BaseURL)
	cfg.Preview.LinkTTL = getEnvDuration("LINK_TTL", cfg.Preview.LinkTTL)

	cfg.Bundle.TranspileMode = strings.ToLower(getEnv("TRANSPILE_MODE", cfg.Bundle.TranspileMode))
	cfg.Bundle.Minify = getEnvBool("BUNDLE_MINIFY", cfg.Bundle.Minify)
	cfg.Bundle.ReactURL = getEnv("REACT_CDN_URL", cfg.Bundle.ReactURL)
	cfg.Bundle.ReactDOMURL = getEnv("REACT_DOM_CDN_URL", cfg.Bundle.ReactDOMURL)
	cfg.Bundle.BabelURL = getEnv("BABEL_CDN_URL", cfg.Bundle.BabelURL)

	cfg.Cache.Size = getEnvInt("CACHE_SIZE", cfg.Cache.Size)
	cfg.Cache.TTL = getEnvDuration("CACHE_TTL", cfg.Cache.TTL)

	cfg.Publish.S3Bucket = getEnv("S3_BUCKET", cfg.Publish.S3Bucket)
	cfg.Publish.S3Region = getEnvAny([]string{"S3_REGION", "AWS_REGION"}, cfg.Publish.S3Region)
	cfg.Publish.S3Prefix = getEnv("S3_PREFIX", cfg.Publish.S3Prefix)
	cfg.Publish.Dir = getEnv("PUBLISH_DIR", cfg.Publish.Dir)
	cfg.Publish.S3Endpoint = getEnv("S3_ENDPOINT", cfg.Publish.S3Endpoint)
	cfg.Publish.S3AccessKey = getEnvAny([]string{"S3_ACCESS_KEY", "AWS_ACCESS_KEY_ID"}, cfg.Publish.S3AccessKey)
	cfg.Publish.S3SecretKey = getEnvAny([]string{"S3_SECRET_KEY", "AWS_SECRET_ACCESS_KEY"}, cfg.Publish.S3SecretKey)
	cfg.Publish.PublicURL = getEnv("PUBLISH_PUBLIC_URL", cfg.Publish.PublicURL)

	cfg.Limits.RequestsPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", cfg.Limits.RequestsPerMinute)
	cfg.Limits.Burst = getEnvInt("RATE_LIMIT_BURST", cfg.Limits.Burst)

	cfg.DevServe.WorkDir = getEnv("DEVSERVER_WORKDIR", cfg.DevServe.WorkDir)
	cfg.DevServe.InstallCmd = getEnv("DEVSERVER_INSTALL_CMD", cfg.DevServe.InstallCmd)
	cfg.DevServe.DevCmd = getEnv("DEVSERVER_DEV_CMD", cfg.DevServe.DevCmd)
	cfg.DevServe.ReadyWait = getEnvDuration("DEVSERVER_READY_WAIT", cfg.DevServe.ReadyWait)
}

// Validate rejects unknown enumerations, nonsensical limits and, in
// production, weak link signing keys.
func (c *Config) Validate() error {
	switch c.Preview.Strategy {
	case StrategyInline, StrategyDevServer:
	default:
		return fmt.Errorf("unknown preview strategy %q (want %s or %s)", c.Preview.Strategy, StrategyInline, StrategyDevServer)
	}
	switch c.Bundle.TranspileMode {
	case TranspileBrowser, TranspileServer:
	default:
		return fmt.Errorf("unknown transpile mode %q (want %s or %s)", c.Bundle.TranspileMode, TranspileBrowser, TranspileServer)
	}
	if c.Cache.Size < 0 {
		return fmt.Errorf("cache size must not be negative")
	}
	if c.Limits.RequestsPerMinute <= 0 || c.Limits.Burst <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	return c.validateSecrets()
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction || c.Environment == "prod"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAny(keys []string, defaultValue string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
