// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Git activity tools for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/gitsee/internal/ledger"
	"github.com/starford/gitsee/internal/stats"
)

// Server wraps the MCP server with GitSee tools.
type Server struct {
	mcp   *server.MCPServer
	db    ledger.Store
	stats *stats.Service
}

// New creates a new MCP server with all GitSee tools registered.
func New(db ledger.Store, st *stats.Service) *Server {
	s := &Server{db: db, stats: st}

	s.mcp = server.NewMCPServer(
		"GitSee",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_statistics",
		mcp.WithDescription("Aggregate Git activity statistics: commit/push totals, "+
			"per-date, per-repository and per-branch breakdowns."),
		mcp.WithString("repo_path", mcp.Description("Optional repository path filter")),
		mcp.WithString("days", mcp.Description("Optional window size in days (e.g. 30)")),
	), s.getStatistics)

	s.mcp.AddTool(mcp.NewTool("list_activities",
		mcp.WithDescription("List recent Git activities (commits and pushes), newest first."),
		mcp.WithString("repo_path", mcp.Description("Optional repository path filter")),
		mcp.WithString("activity_type", mcp.Description("Optional filter: commit or push")),
		mcp.WithString("limit", mcp.Description("Max records to return (default 20)")),
	), s.listActivities)

	s.mcp.AddTool(mcp.NewTool("today_summary",
		mcp.WithDescription("Commit and push tallies for today's UTC calendar date."),
	), s.todaySummary)

	s.mcp.AddTool(mcp.NewTool("list_repos",
		mcp.WithDescription("List repositories registered for monitoring."),
	), s.listRepos)

	s.mcp.AddTool(mcp.NewTool("top_repos",
		mcp.WithDescription("Most active repositories over a recent window."),
		mcp.WithString("limit", mcp.Description("Max repositories (default 10)")),
		mcp.WithString("days", mcp.Description("Window size in days (default 30)")),
	), s.topRepos)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func intArg(req mcp.CallToolRequest, name string) int {
	v, err := req.RequireString(name)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func stringArg(req mcp.CallToolRequest, name string) string {
	v, err := req.RequireString(name)
	if err != nil {
		return ""
	}
	return v
}

func (s *Server) getStatistics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f := ledger.Filter{RepoPath: stringArg(req, "repo_path")}
	if days := intArg(req, "days"); days > 0 {
		f.Since = time.Now().UTC().AddDate(0, 0, -days)
	}

	ov, err := s.stats.Overview(f)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(ov, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listActivities(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f := ledger.Filter{
		RepoPath: stringArg(req, "repo_path"),
		Type:     stringArg(req, "activity_type"),
	}
	limit := intArg(req, "limit")
	if limit < 1 {
		limit = 20
	}

	records, total, err := s.db.ListActivities(f, 1, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(map[string]any{
		"activities": records,
		"total":      total,
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) todaySummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sum, err := s.stats.TodaySummary()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"%s: %d commits, %d pushes (%d activities total)",
		sum.Date, sum.CommitCount, sum.PushCount, sum.TotalCount)), nil
}

func (s *Server) listRepos(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repos, err := s.db.ListRepos(false)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(repos, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) topRepos(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repos, err := s.stats.TopRepos(intArg(req, "limit"), intArg(req, "days"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(repos, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}
