// Package mcp provides the lsdiff MCP server, registering all tools
// and publishing model instructions.
package mcp

import (
	"context"
	_ "embed"
	"log/slog"
	"net/url"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/lsdiff"
	"github.com/deixis/lsdiff/internal/config"
	"github.com/deixis/lsdiff/internal/report"
	"github.com/deixis/lsdiff/internal/runner"
	"github.com/deixis/lsdiff/internal/workflow"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	engine *workflow.Engine
	runner *runner.Runner // retained for updateWorkspaceFromRoots
	build  *runner.Runner
	store  report.History
}

// NewServer creates an MCP server with all lsdiff tools registered.
// Runs are saved to store and can be inspected in later sessions. r runs
// the cases; the build gets its own runner with the build limits from cfg.
func NewServer(cfg *config.Config, r *runner.Runner, store report.History, root, workDir string, logger *slog.Logger) *mcp.Server {
	build := &runner.Runner{
		Workspace: r.Workspace,
		Timeout:   cfg.BuildTimeout(),
		MaxOutput: cfg.BuildMaxOutputBytes(),
	}
	h := &handler{
		engine: &workflow.Engine{
			Config:      cfg,
			Runner:      r,
			BuildRunner: build,
			ProjectRoot: root,
			WorkDir:     workDir, // MCP defaults to the launch directory; updated via roots
			History:     store,
			Logger:      logger,
		},
		runner: r,
		build:  build,
		store:  store,
	}

	mcpOpts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			h.updateWorkspaceFromRoots(ctx, req.Session)
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "lsdiff", Version: lsdiff.Version}, mcpOpts)

	mcp.AddTool(s, &mcp.Tool{
		Name: "lsdiff_run",
		Description: `Build the listing tool and compare it against the reference ls for every configured case.

Use this after changing the tool. Builds with the configured command (unless artifact is given),
runs each case against both executables and reports every discrepancy.
Results are stored for drill-down via lsdiff_inspect.`,
	}, h.runHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "lsdiff_inspect",
		Description: `Show the full comparison of one case from an lsdiff_run result.

Use the run_id from lsdiff_run and the case's switches exactly as reported (e.g. "-rt").
Strict cases include the lines both outputs agree on for context.`,
	}, h.inspectHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "lsdiff_matrix",
		Description: "List the configured cases: family, comparison mode and the exact arguments passed to both executables.",
	}, h.matrixHandler)

	return s
}

// updateWorkspaceFromRoots queries the client for MCP roots and updates the
// handler's engine, runner, and config if a valid root is returned.
// This is called during session initialization, before any tool calls.
func (h *handler) updateWorkspaceFromRoots(ctx context.Context, session *mcp.ServerSession) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil {
		return
	}
	if len(roots.Roots) == 0 {
		return
	}

	u, err := url.Parse(roots.Roots[0].URI)
	if err != nil || u.Scheme != "file" {
		return
	}
	workspace := u.Path

	loaded, err := config.Load(workspace)
	if err != nil {
		return
	}

	// Update runner.
	h.runner.Workspace = loaded.ProjectRoot
	h.runner.Timeout = loaded.Config.Timeout()
	h.runner.MaxOutput = loaded.Config.MaxOutputBytes()
	h.build.Workspace = loaded.ProjectRoot
	h.build.Timeout = loaded.Config.BuildTimeout()
	h.build.MaxOutput = loaded.Config.BuildMaxOutputBytes()

	// Update engine.
	h.engine.Config = loaded.Config
	h.engine.ProjectRoot = loaded.ProjectRoot
	h.engine.WorkDir = workspace
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
