package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/joescharf/exgate/internal/discovery"
	"github.com/joescharf/exgate/internal/git"
	"github.com/joescharf/exgate/internal/runner"
	"github.com/joescharf/exgate/internal/store"
	"github.com/joescharf/exgate/internal/suite"
)

// Server exposes example discovery, generator runs and run history as MCP tools.
type Server struct {
	discoverer *discovery.Discoverer
	runner     *runner.Runner
	store      store.Store
	git        git.Client
	scratchDir string
	env        []string
	version    string
	logger     *zap.Logger
}

// Options configures a Server. Store, Git and Logger may be nil.
type Options struct {
	Discoverer *discovery.Discoverer
	Runner     *runner.Runner
	Store      store.Store
	Git        git.Client
	ScratchDir string
	Env        []string
	Version    string
	// Logger receives tool diagnostics; stdout belongs to the protocol.
	Logger *zap.Logger
}

// NewServer creates the MCP server wrapper.
func NewServer(opts Options) *Server {
	v := opts.Version
	if v == "" {
		v = "dev"
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		discoverer: opts.Discoverer,
		runner:     opts.Runner,
		store:      opts.Store,
		git:        opts.Git,
		scratchDir: opts.ScratchDir,
		env:        opts.Env,
		version:    v,
		logger:     logger,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("exgate", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.listExamplesTool())
	srv.AddTool(s.runExampleTool())
	srv.AddTool(s.listRunsTool())
	srv.AddTool(s.runResultsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	s.logger.Info("Serving MCP on stdio", zap.String("version", s.version))
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

func jsonResult(v any, what string) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal %s: %v", what, err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// exgate_list_examples
func (s *Server) listExamplesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("exgate_list_examples",
		mcp.WithDescription("List example projects under the configured root. By default only examples the generator is gated on; set all=true to include excluded (war-packaged) candidates with the exclusion reason."),
		mcp.WithString("all", mcp.Description("\"true\" to include excluded candidates")),
	)
	return tool, s.handleListExamples
}

func (s *Server) handleListExamples(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	all, _ := strconv.ParseBool(request.GetString("all", "false"))

	candidates, err := s.discoverer.Survey()
	if err != nil {
		s.logger.Warn("Discovery failed", zap.Error(err))
		return mcp.NewToolResultError(fmt.Sprintf("failed to discover examples: %v", err)), nil
	}

	out := make([]discovery.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Excluded && !all {
			continue
		}
		out = append(out, c)
	}
	return jsonResult(out, "examples")
}

// exgate_run_example
func (s *Server) runExampleTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("exgate_run_example",
		mcp.WithDescription("Run the generator against one or more examples and record the run. Returns pass/fail per example; failed examples include the full captured generator log."),
		mcp.WithString("example", mcp.Required(), mcp.Description("Example name, or comma-separated names")),
	)
	return tool, s.handleRunExample
}

type outcomeOut struct {
	Example  string `json:"example"`
	Passed   bool   `json:"passed"`
	ExitCode int    `json:"exit_code"`
	LogPath  string `json:"log_path,omitempty"`
	Error    string `json:"error,omitempty"`
	Log      string `json:"log,omitempty"`
}

func (s *Server) handleRunExample(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := request.RequireString("example")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: example"), nil
	}

	var names []string
	for name := range strings.SplitSeq(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return mcp.NewToolResultError("missing required parameter: example"), nil
	}

	su := &suite.Suite{
		Discoverer: s.discoverer,
		Runner:     s.runner,
		ScratchDir: s.scratchDir,
		Env:        s.env,
		Store:      s.store,
		Git:        s.git,
	}
	s.logger.Info("Running examples", zap.Strings("examples", names))
	report, err := su.Run(ctx, names)
	if report == nil {
		s.logger.Warn("Run failed", zap.Strings("examples", names), zap.Error(err))
		return mcp.NewToolResultError(fmt.Sprintf("run failed: %v", err)), nil
	}

	out := struct {
		RunID        string       `json:"run_id,omitempty"`
		Status       string       `json:"status"`
		Excluded     []string     `json:"excluded,omitempty"`
		Skipped      []string     `json:"skipped,omitempty"`
		HistoryError string       `json:"history_error,omitempty"`
		Results      []outcomeOut `json:"results"`
	}{
		RunID:  report.Run.ID,
		Status: string(report.Run.Status),
	}
	if err != nil {
		s.logger.Warn("Run history incomplete", zap.String("run_id", out.RunID), zap.Error(err))
		out.HistoryError = err.Error()
	}
	for _, ex := range report.Skipped {
		out.Skipped = append(out.Skipped, ex.Name)
	}
	for _, c := range report.Excluded {
		out.Excluded = append(out.Excluded, c.Name)
	}
	for _, o := range report.Outcomes {
		r := outcomeOut{Example: o.Example.Name, Passed: o.Passed(), Log: o.Log}
		if o.Result != nil {
			r.ExitCode = o.Result.ExitCode
			r.LogPath = o.Result.LogPath
		}
		if o.Err != nil {
			r.Error = o.Err.Error()
		}
		out.Results = append(out.Results, r)
		s.logger.Debug("Example finished", zap.String("example", r.Example), zap.Bool("passed", r.Passed),
			zap.Int("exit_code", r.ExitCode))
	}
	s.logger.Info("Run finished", zap.String("run_id", out.RunID), zap.String("status", out.Status))
	return jsonResult(out, "run")
}

// exgate_list_runs
func (s *Server) listRunsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("exgate_list_runs",
		mcp.WithDescription("List recorded gate runs, newest first, with pass/fail counts and the generator revision."),
		mcp.WithString("limit", mcp.Description("Maximum number of runs (default 20)")),
	)
	return tool, s.handleListRuns
}

func (s *Server) handleListRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("run history is disabled"), nil
	}
	limit := 20
	if v := request.GetString("limit", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return mcp.NewToolResultError(fmt.Sprintf("invalid limit: %s", v)), nil
		}
		limit = n
	}

	runs, err := s.store.ListRuns(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list runs: %v", err)), nil
	}
	return jsonResult(runs, "runs")
}

// exgate_run_results
func (s *Server) runResultsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("exgate_run_results",
		mcp.WithDescription("Get per-example results of a recorded run, including captured logs of failed examples."),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("Run ID (full ULID or unique prefix)")),
	)
	return tool, s.handleRunResults
}

func (s *Server) handleRunResults(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("run history is disabled"), nil
	}
	runID, err := request.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: run_id"), nil
	}

	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.store.ListResults(ctx, run.ID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list results: %v", err)), nil
	}

	return jsonResult(map[string]any{"run": run, "results": results}, "results")
}
