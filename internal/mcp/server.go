// Package mcp provides a Model Context Protocol server for Chronicle.
//
// It exposes timeline retrieval (full-text search, grounded question
// answering, index rebuild, event creation) as MCP tools over stdio
// transport, for use from Claude Desktop and similar clients.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/chronicle-app/chronicle/internal/ask"
	"github.com/chronicle-app/chronicle/internal/index"
	"github.com/chronicle-app/chronicle/internal/llm"
	"github.com/chronicle-app/chronicle/internal/search"
	"github.com/chronicle-app/chronicle/internal/store"
	"github.com/chronicle-app/chronicle/internal/timeline"
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Store    store.Store
	Timeline *timeline.Service
	Search   *search.Service
	Engine   *ask.Engine
	Version  string
}

// dbMu serializes all MCP tool calls that touch the database.
// The mcp-go library dispatches handlers concurrently via goroutines.
// SQLite (even with WAL) supports only one writer at a time, and a search
// racing a rebuild could observe a half-replaced index.
var dbMu sync.Mutex

// NewServer creates a configured MCP server with all Chronicle tools.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"Chronicle",
		ver,
		server.WithToolCapabilities(false),
	)

	registerSearchTool(s, cfg.Search)
	registerAskTool(s, cfg.Engine)
	registerRebuildTool(s, cfg.Search)
	registerAddEventTool(s, cfg.Timeline)
	registerTimelinesTool(s, cfg.Store)

	return s
}

// ServeStdio runs the server on stdin/stdout until the client disconnects.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func registerSearchTool(s *server.MCPServer, svc *search.Service) {
	tool := mcp.NewTool("chronicle_search",
		mcp.WithDescription("Full-text search over timeline events and attached documents. Returns ranked results with highlighted snippets."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query string"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum number of results (default: %d, max: %d)", search.DefaultLimit, search.MaxLimit)),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		query, err := req.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError("query is required"), nil
		}

		limit := 0
		if limitVal, err := req.RequireFloat("limit"); err == nil {
			limit = int(limitVal)
		}

		results, err := svc.Search(ctx, query, limit)
		if err != nil {
			var qerr *index.QueryError
			if errors.As(err, &qerr) {
				return mcp.NewToolResultError(fmt.Sprintf("invalid query: %v", qerr)), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("search error: %v", err)), nil
		}
		if len(results) == 0 {
			return mcp.NewToolResultText("No matching events found."), nil
		}

		data, _ := json.MarshalIndent(results, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerAskTool(s *server.MCPServer, engine *ask.Engine) {
	tool := mcp.NewTool("chronicle_ask",
		mcp.WithDescription("Ask a natural-language question about the timeline. The answer is grounded in matching events and cites its sources."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The question to answer"),
		),
		mcp.WithString("timeline",
			mcp.Description("Timeline to search. Required when more than one timeline exists."),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		question, err := req.RequireString("question")
		if err != nil || strings.TrimSpace(question) == "" {
			return mcp.NewToolResultError("question is required"), nil
		}

		askReq := ask.Request{Question: question}
		if tl, err := req.RequireString("timeline"); err == nil {
			askReq.Timeline = tl
		}

		resp, err := engine.Ask(ctx, askReq)
		if err != nil {
			if errors.Is(err, llm.ErrUnavailable) {
				return mcp.NewToolResultError("AI service is not available; is Ollama running?"), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("ask error: %v", err)), nil
		}

		data, _ := json.MarshalIndent(resp, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerRebuildTool(s *server.MCPServer, svc *search.Service) {
	tool := mcp.NewTool("chronicle_rebuild",
		mcp.WithDescription("Rebuild the search index from scratch from all stored events and attachments. Repairs any drift between storage and search."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		count, err := svc.Rebuild(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("rebuild error: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Index rebuilt: %d entries indexed.", count)), nil
	})
}

func registerAddEventTool(s *server.MCPServer, svc *timeline.Service) {
	tool := mcp.NewTool("chronicle_add_event",
		mcp.WithDescription("Add a new event to the timeline. The event becomes searchable immediately."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Short event title"),
		),
		mcp.WithString("description",
			mcp.Description("Longer description of what happened"),
		),
		mcp.WithString("date",
			mcp.Description("Event date as YYYY-MM-DD (default: today)"),
		),
		mcp.WithString("timeline",
			mcp.Description("Timeline name this event belongs to"),
		),
		mcp.WithString("tags",
			mcp.Description("Comma-separated tags"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		title, err := req.RequireString("title")
		if err != nil || strings.TrimSpace(title) == "" {
			return mcp.NewToolResultError("title is required"), nil
		}

		e := &store.Event{Title: title}
		if v, err := req.RequireString("description"); err == nil {
			e.Description = v
		}
		if v, err := req.RequireString("timeline"); err == nil {
			e.Timeline = v
		}
		if v, err := req.RequireString("tags"); err == nil {
			e.Tags = v
		}
		if v, err := req.RequireString("date"); err == nil && v != "" {
			date, err := time.Parse("2006-01-02", v)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid date %q (want YYYY-MM-DD)", v)), nil
			}
			e.Date = date
		}

		if err := svc.CreateEvent(ctx, e); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("create error: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Event created: %s (%s)", e.ID, e.Title)), nil
	})
}

func registerTimelinesTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("chronicle_timelines",
		mcp.WithDescription("List the timeline names in use."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		timelines, err := st.Timelines(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("listing timelines: %v", err)), nil
		}
		if len(timelines) == 0 {
			return mcp.NewToolResultText("No timelines yet."), nil
		}
		return mcp.NewToolResultText(strings.Join(timelines, "\n")), nil
	})
}
