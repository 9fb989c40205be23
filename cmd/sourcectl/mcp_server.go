package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forest6511/sourcectl/internal/mcp"
)

func init() {
	rootCmd.AddCommand(mcpServerCmd)
}

// mcpServerCmd starts the MCP server for AI coding assistant integration.
var mcpServerCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Start the MCP server for AI coding assistant integration",
	Long: `Start the MCP server that gives AI coding assistants a read-only view of
your vault sources over stdio transport. Archive content and one-time-code
secrets are never exposed.

Available tools:
  - source_list:   List sources with ID, name, type and lock status
  - source_status: Return the lock status of one source
  - code_list:     List masked one-time-code descriptors (policy-gated)
  - search:        Search entry titles across unlocked sources (policy-gated)

Policy:
  Create ~/.sourcectl/mcp-policy.yaml to expose code_list and search.
  Without a policy file only the inventory tools are available.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCPServer()
	},
}

func runMCPServer() error {
	server := mcp.NewServer(mcp.ServerOptions{
		Registry: registry,
		Index:    index,
		DataDir:  dataDir,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := server.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
