package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"apex-preview/internal/bundler"
	"apex-preview/internal/logging"
	"apex-preview/internal/parser"
	"apex-preview/internal/toolserver"
	"apex-preview/internal/watch"
)

var (
	watchOutput   string
	watchDebounce time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch <file>",
	Short: "Re-synthesize the preview whenever the response file changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := watchOutput
		if out == "" {
			out = defaultWatchOutput(args[0])
		}
		service := newService(cfg, nil)
		w, err := watch.New(args[0], watchDebounce, rebuildTo(service, out))
		if err != nil {
			return err
		}
		return w.Run(cmd.Context())
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the parse and synthesize tools over MCP stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		ts := toolserver.New(parser.New(), newService(cfg, nil))
		return ts.ServeStdio(version)
	},
}

func init() {
	watchCmd.Flags().StringVarP(&watchOutput, "output", "o", "", "output file (defaults to <input>.html)")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "quiet period before rebuilding")
}

func defaultWatchOutput(input string) string {
	ext := filepath.Ext(input)
	if ext == ".html" {
		return input + ".preview.html"
	}
	return strings.TrimSuffix(input, ext) + ".html"
}

// rebuildTo returns a watch handler that synthesizes each new content and
// writes the document to out.
func rebuildTo(service *bundler.Service, out string) watch.Handler {
	log := logging.Named("watch")
	return func(ctx context.Context, content []byte) error {
		build, err := synthesize(ctx, service, string(content))
		if err != nil {
			writeErrorDocument(out, err)
			return err
		}
		if err := os.WriteFile(out, []byte(build.Bundle.HTML), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		log.Info("preview rebuilt",
			zap.String("output", out),
			zap.String("root", build.Bundle.RootPath),
			zap.Int("repairs", len(build.Report.Actions)),
			zap.Int("warnings", len(build.Bundle.Warnings)),
			zap.Duration("duration", build.Duration))
		return nil
	}
}
