package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Bobbins228/codeflare/internal/logging"
	mcpserver "github.com/Bobbins228/codeflare/internal/mcp"
	"github.com/Bobbins228/codeflare/internal/telemetry"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

var serveFlags struct {
	metricsAddr string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server over stdio",
	Long: `Starts an MCP server over stdin/stdout exposing the plan_pipeline,
render_pipeline and run_pipeline tools.

The server monitors its parent process and shuts down when the parent exits.
With --metrics-addr it also serves Prometheus metrics for the runs it executes.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.metricsAddr, "metrics-addr", "", "Serve /metrics on this address (e.g. :9090)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	srv := mcpserver.NewServer(version)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	mcpserver.WatchParent(ctx, cancel)

	if serveFlags.metricsAddr != "" {
		go func() {
			if err := telemetry.ServeMetrics(ctx, serveFlags.metricsAddr); err != nil {
				logging.New("mcp").Error("metrics server stopped", "error", err)
			}
		}()
	}

	logging.New("mcp").Info("starting codeflare MCP server over stdio (parent watchdog active)")
	return srv.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}
