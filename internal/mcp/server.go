// Package mcp implements the MCP (Model Context Protocol) surface for
// sourcectl. Agents get a read-only view of the registry: source inventory,
// statuses, masked one-time-code descriptors and search results. Archive
// content and code secrets are never exposed.
package mcp

import (
	"context"
	"log"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/forest6511/sourcectl/pkg/search"
	"github.com/forest6511/sourcectl/pkg/sources"
)

// Server is the MCP server over a live source registry.
type Server struct {
	server   *mcp.Server
	registry *sources.Registry
	index    *search.Index
	policy   *Policy
}

// ServerOptions configures a Server.
type ServerOptions struct {
	// Registry is the source registry to expose. Required.
	Registry *sources.Registry

	// Index serves the search tool. Optional; without it the tool is not
	// registered.
	Index *search.Index

	// DataDir locates the policy file. A missing or unreadable policy is
	// not fatal: the server runs with only the always-safe tools.
	DataDir string
}

// NewServer creates an MCP server instance and registers its tools.
func NewServer(opts ServerOptions) *Server {
	policy, err := LoadPolicy(opts.DataDir)
	if err != nil {
		if err != ErrPolicyNotFound {
			log.Printf("warning: failed to load MCP policy: %v", err)
		}
		policy = nil
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "sourcectl",
			Version: "0.1.0",
		},
		nil,
	)

	s := &Server{
		server:   mcpServer,
		registry: opts.Registry,
		index:    opts.Index,
		policy:   policy,
	}
	s.registerTools()
	return s
}

// registerTools registers the tool set. Inventory tools are always exposed;
// code_list and search need a policy that allows them.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "source_list",
		Description: "List all registered vault sources with their ID, name, backend type and lock status. Does NOT return vault content.",
	}, s.handleSourceList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "source_status",
		Description: "Return the lock status of a single source by ID.",
	}, s.handleSourceStatus)

	if s.toolAllowed("code_list") {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "code_list",
			Description: "List one-time-code descriptors of unlocked sources. Enrollment URIs are masked; secrets are never returned.",
		}, s.handleCodeList)
	}

	if s.index != nil && s.toolAllowed("search") {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "search",
			Description: "Search entry titles and non-secret property values across unlocked sources. Returns entry locations, never values.",
		}, s.handleSearch)
	}
}

func (s *Server) toolAllowed(name string) bool {
	if s.policy == nil {
		return false
	}
	return s.policy.IsToolAllowed(name)
}

// Run starts the server on the stdio transport and blocks until the context
// is cancelled or the transport closes.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}
