package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/honganh1206/mcpkit/internal/mlog"
	"github.com/honganh1206/mcpkit/mcp"
	"github.com/honganh1206/mcpkit/transport"
	"github.com/honganh1206/mcpkit/transport/httptransport"
	"github.com/honganh1206/mcpkit/transport/stdio"
	"github.com/honganh1206/mcpkit/utils"
)

func newClientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Dial a demo MCP server and run initialize, tools/list, tools/call",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := mlog.Setup(mlog.ParseLevel(logLevelFlag))
			switch transportFlag {
			case "stdio":
				return runStdioClient(cmd.Context(), logger)
			case "http":
				return runHTTPClient(cmd.Context(), logger)
			default:
				return fmt.Errorf("unknown transport %q (want stdio or http)", transportFlag)
			}
		},
	}
	cmd.Flags().StringVar(&commandFlag, "command", "", "stdio transport only: subprocess command to spawn as the server instead of a self-exec demo child")
	return cmd
}

// demoSequence drives the same handshake/tools/list/tools/call sequence
// the teacher's mcp/tester/main.go runs against a spawned fetch server,
// generalized to the echo tool this module ships for demo purposes.
func demoSequence(ctx context.Context, session *mcp.Session, logger *slog.Logger) error {
	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := session.Initialize(initCtx, mcp.ClientConfig{
		ClientInfo: mcp.ClientInfo{Name: "mcpecho-client", Version: "0.1.0"},
	})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	logger.Info("initialized", "protocolVersion", result.ProtocolVersion, "server", result.ServerInfo.Name)

	listCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	tools, err := session.ListTools(listCtx)
	if err != nil {
		return fmt.Errorf("tools/list: %w", err)
	}

	headers := []string{"Name", "Title", "Description"}
	var rows [][]string
	for _, t := range tools {
		rows = append(rows, []string{t.Name, t.Title, t.Description})
	}
	utils.RenderTable(headers, rows)

	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	callResult, err := session.CallTool(callCtx, "echo", map[string]any{"message": "hello from mcpecho"})
	if err != nil {
		return fmt.Errorf("tools/call: %w", err)
	}
	if callResult.IsError {
		return fmt.Errorf("tool reported failure: %+v", callResult.Content)
	}
	for _, part := range callResult.Content {
		logger.Info("echo result", "text", part.Text)
	}
	return nil
}

func runStdioClient(ctx context.Context, logger *slog.Logger) error {
	command, args := commandFlag, []string{}
	if command == "" {
		self, err := exec.LookPath("mcpecho")
		if err != nil {
			return fmt.Errorf("resolve mcpecho for self-exec demo child (pass --command to use a different server): %w", err)
		}
		command, args = self, []string{"serve", "--transport", "stdio"}
	}

	t, err := stdio.Spawn(ctx, stdio.Config{Command: command, Args: args}, logger)
	if err != nil {
		return fmt.Errorf("spawn %s: %w", command, err)
	}
	return runClientSession(ctx, t, logger)
}

func runHTTPClient(ctx context.Context, logger *slog.Logger) error {
	t := httptransport.NewClient(httptransport.ClientConfig{
		BaseURL: "http://" + addrFlag + httptransport.DefaultEndpointPath,
	}, logger)
	return runClientSession(ctx, t, logger)
}

func runClientSession(ctx context.Context, t transport.Transport, logger *slog.Logger) error {
	session := mcp.NewClientSession(t, logger)
	session.Run(ctx)
	defer session.Close()

	if err := demoSequence(ctx, session, logger); err != nil {
		return err
	}
	return nil
}
