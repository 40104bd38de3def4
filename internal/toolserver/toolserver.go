// Package toolserver exposes the parse and synthesize pipeline as MCP tools
// over stdio.
package toolserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"apex-preview/internal/bundler"
	"apex-preview/internal/logging"
	"apex-preview/internal/parser"
	"apex-preview/internal/pipeline"
	"apex-preview/internal/workspace"
)

const (
	toolParseResponse     = "parse_response"
	toolSynthesizePreview = "synthesize_preview"
)

// ToolServer holds the pipeline the tools run.
type ToolServer struct {
	parser  *parser.Parser
	service *bundler.Service
	log     *zap.Logger
}

// New creates a tool server.
func New(p *parser.Parser, service *bundler.Service) *ToolServer {
	if p == nil {
		p = parser.New()
	}
	return &ToolServer{parser: p, service: service, log: logging.Named("toolserver")}
}

// MCPServer builds the MCP server with every tool registered.
func (ts *ToolServer) MCPServer(version string) *server.MCPServer {
	s := server.NewMCPServer(
		"apex-preview",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(mcp.Tool{
		Name:        toolParseResponse,
		Description: "Extract the files of a generated-app response (tagged blocks, markdown filename headers or fenced code blocks)",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"response": map[string]interface{}{
					"type":        "string",
					"description": "The full response text",
				},
			},
			Required: []string{"response"},
		},
	}, ts.handleParse)

	s.AddTool(mcp.Tool{
		Name:        toolSynthesizePreview,
		Description: "Repair the files of a response and synthesize a single self-contained HTML preview document",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"response": map[string]interface{}{
					"type":        "string",
					"description": "The full response text; ignored when files_json is set",
				},
				"files_json": map[string]interface{}{
					"type":        "string",
					"description": "Optional JSON array of {\"path\",\"content\"} objects",
				},
			},
		},
	}, ts.handleSynthesize)

	return s
}

// ServeStdio runs the tool server on stdin/stdout until it is closed.
func (ts *ToolServer) ServeStdio(version string) error {
	return server.ServeStdio(ts.MCPServer(version))
}

type parseOutput struct {
	Strategy parser.Strategy      `json:"strategy"`
	Fallback bool                 `json:"fallback"`
	Steps    []parser.Step        `json:"steps"`
	Files    []workspace.FlatFile `json:"files"`
}

func (ts *ToolServer) handleParse(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := request.GetString("response", "")
	parsed, err := pipeline.Parse(ts.parser, raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := json.MarshalIndent(parseOutput{
		Strategy: parsed.Result.Strategy,
		Fallback: parsed.Result.Fallback(),
		Steps:    parsed.Result.Steps,
		Files:    parsed.Files.List(),
	}, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

type synthesizeOutput struct {
	Root     string   `json:"root"`
	Repairs  int      `json:"repairs"`
	Warnings []string `json:"warnings,omitempty"`
	Cached   bool     `json:"cached"`
	HTML     string   `json:"html"`
}

func (ts *ToolServer) handleSynthesize(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var files *workspace.Files
	if filesJSON := request.GetString("files_json", ""); filesJSON != "" {
		var list []workspace.FlatFile
		if err := json.Unmarshal([]byte(filesJSON), &list); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid files_json: %v", err)), nil
		}
		var err error
		if files, _, err = pipeline.FromFlat(list); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	} else {
		parsed, err := pipeline.Parse(ts.parser, request.GetString("response", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		files = parsed.Files
	}

	build, err := ts.service.Build(ctx, files)
	if err != nil {
		ts.log.Warn("synthesis failed", zap.Error(err))
		return mcp.NewToolResultError(fmt.Sprintf("synthesis failed: %v", err)), nil
	}
	out, err := json.MarshalIndent(synthesizeOutput{
		Root:     build.Bundle.RootComponent,
		Repairs:  len(build.Report.Actions),
		Warnings: build.Bundle.Warnings,
		Cached:   build.Cached,
		HTML:     build.Bundle.HTML,
	}, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
