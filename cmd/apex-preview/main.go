package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"apex-preview/internal/bundler"
	"apex-preview/internal/cache"
	"apex-preview/internal/config"
	"apex-preview/internal/logging"
)

// Set at build time with -ldflags.
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "apex-preview",
	Short: "Turn AI code responses into runnable previews",
	Long: `apex-preview parses free-form AI responses into project files, repairs
common generation mistakes and synthesizes a self-contained HTML preview.

It runs as an HTTP service with live reload, as a one-shot CLI, as a file
watcher or as an MCP tool server over stdio.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		logging.Configure(logging.Options{Environment: cfg.Environment, Level: cfg.LogLevel})
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "apex-preview %s (commit %s, built %s)\n", version, commit, buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.AddCommand(serveCmd, parseCmd, bundleCmd, watchCmd, mcpCmd, publishCmd, versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// bundleOptions maps configuration onto synthesizer options.
func bundleOptions(c *config.Config) bundler.Options {
	opts := bundler.DefaultOptions()
	opts.Transpile = bundler.TranspileMode(c.Bundle.TranspileMode)
	opts.Minify = c.Bundle.Minify
	if c.Bundle.ReactURL != "" {
		opts.CDN.React = c.Bundle.ReactURL
	}
	if c.Bundle.ReactDOMURL != "" {
		opts.CDN.ReactDOM = c.Bundle.ReactDOMURL
	}
	if c.Bundle.BabelURL != "" {
		opts.CDN.Babel = c.Bundle.BabelURL
	}
	return opts
}

// newService builds the bundler service. tiered may be nil for one-shot
// commands that do not cache.
func newService(c *config.Config, tiered *cache.Tiered) *bundler.Service {
	var bc *bundler.BundleCache
	if tiered != nil {
		bc = bundler.NewBundleCache(tiered, c.Cache.TTL)
	}
	return bundler.NewService(bundler.New(bundleOptions(c)), bc)
}

func cacheConfig(c *config.Config) cache.Config {
	cc := cache.DefaultConfig()
	cc.RedisURL = c.RedisURL
	if c.Cache.Size > 0 {
		cc.MaxItems = c.Cache.Size
	}
	if c.Cache.TTL > 0 {
		cc.DefaultTTL = c.Cache.TTL
	}
	return cc
}

// readInput reads the named file, or stdin when name is "-".
func readInput(cmd *cobra.Command, name string) (string, error) {
	var (
		data []byte
		err  error
	)
	if name == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return string(data), nil
}

// projectName derives a surface or project name from an input path.
func projectName(input string) string {
	if input == "-" || input == "" {
		return "stdin"
	}
	base := filepath.Base(input)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
