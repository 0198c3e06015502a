package main

import (
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"coai-backend/container"
)

func mcpCmd() *cobra.Command {
	var httpAddr string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve marketplace tools over MCP",
		Long: `Serve marketplace tools to AI agents over the Model Context Protocol.

Uses stdio by default. With --http the streamable HTTP transport is used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c, err := container.NewContainer(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to build container: %w", err)
			}
			defer c.Close()

			mcpServer := c.MCPServer()
			if httpAddr != "" {
				log.Printf("MCP streamable HTTP server listening on %s", httpAddr)
				return server.NewStreamableHTTPServer(mcpServer.GetMCPServer()).Start(httpAddr)
			}
			log.Printf("Starting MCP server on stdio (store: %s)", cfg.Store.Driver)
			if err := server.ServeStdio(mcpServer.GetMCPServer()); err != nil {
				return fmt.Errorf("mcp server error: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http", "", "serve over streamable HTTP on this address instead of stdio")
	return cmd
}
