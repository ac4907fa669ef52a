// Package mcp exposes the debugging backend over the Model Context Protocol.
//
// Every tool is a mechanical wrapper: decode parameters, call one backend
// operation, encode the result. The debugging logic lives in the backend;
// this layer only adapts its contract to MCP tool calls served over stdio.
package mcp

import (
	"github.com/go-logr/logr"
	"github.com/mark3labs/mcp-go/server"

	"github.com/debugmcp/debugmcp/internal/backend"
	"github.com/debugmcp/debugmcp/internal/config"
	"github.com/debugmcp/debugmcp/internal/version"
)

// Server wraps the MCP server with the debugging backend.
type Server struct {
	mcpServer *server.MCPServer
	backend   backend.Backend
	provider  config.Provider
	log       logr.Logger
}

// NewServer creates an MCP server over the given backend and configuration
// provider.
func NewServer(b backend.Backend, provider config.Provider, log logr.Logger) *Server {
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	mcpServer := server.NewMCPServer(
		"debugmcp",
		version.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s := &Server{
		mcpServer: mcpServer,
		backend:   b,
		provider:  provider,
		log:       log,
	}
	s.registerTools()
	return s
}

// ServeStdio starts the server using stdio transport and blocks until the
// client disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// Close tears down any active debug session.
func (s *Server) Close() {
	s.backend.Dispose()
}
