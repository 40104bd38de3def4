package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"apex-preview/internal/bundler"
	"apex-preview/internal/filetree"
	"apex-preview/internal/logging"
	"apex-preview/internal/parser"
	"apex-preview/internal/pipeline"
	"apex-preview/internal/publish"
)

var (
	bundleOutput string
	publishName  string
)

var parseCmd = &cobra.Command{
	Use:   "parse <file|->",
	Short: "Parse an AI response and print the recovered files as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(cmd, args[0])
		if err != nil {
			return err
		}
		parsed, err := pipeline.Parse(parser.New(), raw)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), parseReport{
			Strategy: parsed.Result.Strategy,
			Fallback: parsed.Result.Fallback(),
			Steps:    parsed.Result.Steps,
			Tree:     parsed.Tree.Nodes(),
		})
	},
}

type parseReport struct {
	Strategy parser.Strategy  `json:"strategy"`
	Fallback bool             `json:"fallback"`
	Steps    []parser.Step    `json:"steps"`
	Tree     []*filetree.Node `json:"tree"`
}

var bundleCmd = &cobra.Command{
	Use:   "bundle <file|->",
	Short: "Parse, repair and synthesize a preview document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(cmd, args[0])
		if err != nil {
			return err
		}
		toFile := bundleOutput != "" && bundleOutput != "-"
		build, err := synthesize(cmd.Context(), newService(cfg, nil), raw)
		if err != nil {
			if toFile {
				writeErrorDocument(bundleOutput, err)
			}
			return err
		}
		if !toFile {
			_, err = io.WriteString(cmd.OutOrStdout(), build.Bundle.HTML)
			return err
		}
		if err := os.WriteFile(bundleOutput, []byte(build.Bundle.HTML), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", bundleOutput, err)
		}
		logging.Named("cli").Info("bundle written",
			zap.String("output", bundleOutput),
			zap.String("root", build.Bundle.RootPath),
			zap.Int("repairs", len(build.Report.Actions)),
			zap.Strings("warnings", build.Bundle.Warnings))
		return nil
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish <file|->",
	Short: "Synthesize a preview and publish it to S3 or a local directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(cmd, args[0])
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		build, err := synthesize(ctx, newService(cfg, nil), raw)
		if err != nil {
			return err
		}
		pub, err := publish.New(ctx, cfg.Publish)
		if err != nil {
			return err
		}
		name := publishName
		if name == "" {
			name = projectName(args[0])
		}
		res, err := publish.Publish(ctx, pub, name, build.Bundle)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	bundleCmd.Flags().StringVarP(&bundleOutput, "output", "o", "", "write the document to this file instead of stdout")
	publishCmd.Flags().StringVarP(&publishName, "name", "n", "", "publication name (defaults to the input file name)")
}

// synthesize runs the full pipeline on one raw response.
func synthesize(ctx context.Context, service *bundler.Service, raw string) (*bundler.Build, error) {
	parsed, err := pipeline.Parse(parser.New(), raw)
	if err != nil {
		return nil, err
	}
	if parsed.Result.Fallback() {
		logging.Named("cli").Warn("no files recognized, using the placeholder app")
	}
	return service.Build(ctx, parsed.Files)
}

// writeErrorDocument replaces path with a page describing err so a browser
// pointed at it shows why there is no preview.
func writeErrorDocument(path string, err error) {
	if werr := os.WriteFile(path, []byte(bundler.ErrorHTML([]error{err})), 0o644); werr != nil {
		logging.Named("cli").Warn("failed to write error document", zap.String("output", path), zap.Error(werr))
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
