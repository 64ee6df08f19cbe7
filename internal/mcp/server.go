package mcp

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/editalindex/internal/indexer"
	"github.com/dshills/editalindex/internal/notice"
	"github.com/dshills/editalindex/internal/searcher"
	"github.com/dshills/editalindex/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "editalindex"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Deps are the application components exposed as tools. Notices may be nil,
// in which case the notice tools report that processing is unavailable.
type Deps struct {
	Store     storage.Storage
	Indexer   *indexer.Indexer
	Searcher  *searcher.Searcher
	Notices   *notice.Service
	BankRoots []string // Used by index_bank when the call names no roots
	Logger    *slog.Logger
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp    *server.MCPServer
	deps   Deps
	logger *slog.Logger
}

// NewServer creates a new MCP server instance
func NewServer(deps Deps) (*Server, error) {
	if deps.Store == nil || deps.Indexer == nil || deps.Searcher == nil {
		return nil, errors.New("mcp: store, indexer and searcher are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Server{
		mcp:    server.NewMCPServer(ServerName, ServerVersion),
		deps:   deps,
		logger: logger,
	}
	s.registerTools()
	return s, nil
}

// Serve starts the MCP server on stdio and blocks until the client
// disconnects. The caller owns the store.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(indexBankTool(), s.handleIndexBank)
	s.mcp.AddTool(searchContentTool(), s.handleSearchContent)
	s.mcp.AddTool(indexStatsTool(), s.handleIndexStats)
	s.mcp.AddTool(submitNoticeTool(), s.handleSubmitNotice)
	s.mcp.AddTool(noticeStatusTool(), s.handleNoticeStatus)
}
