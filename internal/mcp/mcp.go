// Package mcp implements the Model Context Protocol server for Jikan.
//
// The MCP server exposes the SLA metrics engine as tools and resources,
// allowing MCP-compatible AI agents to compute issue timeline metrics
// against the connected tracker.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/jikanhq/jikan/internal/sla"
)

// maxBatchKeys bounds a single batch request.
const maxBatchKeys = 100

// Server wraps the MCP server with Jikan's SLA engine.
type Server struct {
	mcpServer *mcpserver.MCPServer
	engine    *sla.Engine
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all resources and tools.
func New(engine *sla.Engine, logger *slog.Logger, version string) *Server {
	s := &Server{
		engine: engine,
		logger: logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"jikan",
		version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
	)

	s.registerResources()
	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerResources() {
	// jikan://metrics/catalog: the metrics the engine can calculate.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"jikan://metrics/catalog",
			"Metric Catalog",
			mcplib.WithResourceDescription("SLA metrics available for calculation"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleMetricCatalog,
	)
}

func (s *Server) registerTools() {
	// jikan_issue_sla: SLA metrics for a single issue.
	s.mcpServer.AddTool(
		mcplib.NewTool("jikan_issue_sla",
			mcplib.WithDescription("Calculate SLA metrics (cycle time, lead time, time in status, due date compliance, resolution time, first response time) for a single issue"),
			mcplib.WithString("issue_key", mcplib.Description("Issue key, e.g. PROJECT-123"), mcplib.Required()),
			mcplib.WithString("metrics", mcplib.Description("Comma-separated metric names; empty runs the configured defaults")),
			mcplib.WithBoolean("working_hours_only", mcplib.Description("Count only configured business hours")),
			mcplib.WithBoolean("include_raw_dates", mcplib.Description("Echo raw timestamps and the status-change log")),
		),
		s.handleIssueSLA,
	)

	// jikan_batch_issue_sla: SLA metrics for many issues with per-issue
	// error isolation.
	s.mcpServer.AddTool(
		mcplib.NewTool("jikan_batch_issue_sla",
			mcplib.WithDescription("Calculate SLA metrics for multiple issues. Failures are isolated per issue and reported alongside successful results."),
			mcplib.WithString("issue_keys", mcplib.Description("Comma-separated issue keys"), mcplib.Required()),
			mcplib.WithString("metrics", mcplib.Description("Comma-separated metric names; empty runs the configured defaults")),
			mcplib.WithBoolean("working_hours_only", mcplib.Description("Count only configured business hours")),
			mcplib.WithBoolean("include_raw_dates", mcplib.Description("Echo raw timestamps and the status-change log")),
			mcplib.WithNumber("concurrency", mcplib.Description("Parallel evaluations, 1-16 (default sequential)")),
		),
		s.handleBatchIssueSLA,
	)
}

func (s *Server) handleMetricCatalog(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(map[string]any{
		"metrics": s.engine.AvailableMetrics(),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal catalog: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      "jikan://metrics/catalog",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleIssueSLA(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	issueKey := strings.TrimSpace(request.GetString("issue_key", ""))
	if issueKey == "" {
		return errorResult("issue_key is required"), nil
	}

	result, err := s.engine.Compute(ctx, issueKey, splitCSV(request.GetString("metrics", "")), optionsFromRequest(request))
	if err != nil {
		return errorResult(fmt.Sprintf("sla calculation failed: %v", err)), nil
	}

	return jsonResult(result)
}

func (s *Server) handleBatchIssueSLA(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	keys := splitCSV(request.GetString("issue_keys", ""))
	if len(keys) == 0 {
		return errorResult("issue_keys is required"), nil
	}
	if len(keys) > maxBatchKeys {
		return errorResult(fmt.Sprintf("too many issue keys: %d (max %d)", len(keys), maxBatchKeys)), nil
	}

	opts := optionsFromRequest(request)
	if n := request.GetInt("concurrency", 0); n > 1 {
		if n > 16 {
			n = 16
		}
		opts.Concurrency = n
	}

	result, err := s.engine.ComputeBatch(ctx, keys, splitCSV(request.GetString("metrics", "")), opts)
	if err != nil {
		return errorResult(fmt.Sprintf("batch sla calculation failed: %v", err)), nil
	}

	return jsonResult(result)
}

// optionsFromRequest maps shared tool arguments onto engine options.
// working_hours_only only overrides the configured default when the
// caller actually passed it.
func optionsFromRequest(request mcplib.CallToolRequest) sla.Options {
	opts := sla.Options{
		IncludeRawDates: request.GetBool("include_raw_dates", false),
	}
	args := request.GetArguments()
	if raw, ok := args["working_hours_only"]; ok {
		switch v := raw.(type) {
		case bool:
			opts.WorkingHoursOnly = &v
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				opts.WorkingHoursOnly = &b
			}
		}
	}
	return opts
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}, nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
