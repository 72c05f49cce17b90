package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"github.com/honganh1206/mcpkit/internal/mlog"
	"github.com/honganh1206/mcpkit/mcp"
	"github.com/honganh1206/mcpkit/transport"
	"github.com/honganh1206/mcpkit/transport/httptransport"
	"github.com/honganh1206/mcpkit/transport/stdio"
)

// EchoInput is the demo tool's argument shape, reflected into a JSON
// Schema fragment the same way the teacher's schema.Generate[T] builds
// ToolDefinition.InputSchema from a plain Go struct.
type EchoInput struct {
	Message string `json:"message" jsonschema_description:"Text to echo back in the tool result."`
}

func echoInputSchema() json.RawMessage {
	reflector := jsonschema.Reflector{AllowAdditionalProperties: false, DoNotReference: true}
	raw, err := json.Marshal(reflector.Reflect(&EchoInput{}))
	if err != nil {
		// Reflection over a fixed, local struct cannot fail at runtime;
		// a failure here means the struct itself is broken.
		panic(fmt.Sprintf("mcpecho: reflect EchoInput schema: %v", err))
	}
	return raw
}

func echoTool() mcp.Tool {
	return mcp.Tool{
		Name:        "echo",
		Title:       "Echo",
		Description: "Echoes the given message back as a text content part.",
		InputSchema: echoInputSchema(),
		Call: func(cc *mcp.CallContext, arguments map[string]any) ([]mcp.ContentPart, error) {
			message, _ := arguments["message"].(string)
			if message == "" {
				return nil, errors.New("message must be a non-empty string")
			}
			return []mcp.ContentPart{{Type: "text", Text: message}}, nil
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run a demo MCP server exposing a single echo tool",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := mlog.Setup(mlog.ParseLevel(logLevelFlag))
			switch transportFlag {
			case "stdio":
				return serveStdio(cmd.Context(), logger)
			case "http":
				return serveHTTP(cmd.Context(), logger)
			default:
				return fmt.Errorf("unknown transport %q (want stdio or http)", transportFlag)
			}
		},
	}
}

func buildServer(t transport.Transport, logger *slog.Logger) *mcp.Session {
	session := mcp.NewServerSession(t, mcp.ServerConfig{
		ServerInfo: mcp.ServerInfo{Name: "mcpecho", Version: "0.1.0"},
		Capabilities: mcp.Capabilities{
			Tools: &mcp.ToolsCapability{ListChanged: true},
		},
		Instructions: "Demo server exposing one echo tool for exercising the wire protocol.",
	}, logger)
	session.RegisterTool(echoTool())
	return session
}

func serveStdio(ctx context.Context, logger *slog.Logger) error {
	t := stdio.NewStd(os.Stdin, os.Stdout, logger)
	session := buildServer(t, logger)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	session.Run(runCtx)
	<-runCtx.Done()
	return session.Close()
}

func serveHTTP(ctx context.Context, logger *slog.Logger) error {
	hub := httptransport.NewHub(logger)
	hub.NewSession = func(st *httptransport.ServerTransport) {
		session := buildServer(st, logger)
		session.Run(ctx)
	}

	mux := http.NewServeMux()
	mux.Handle(httptransport.DefaultEndpointPath, hub)
	srv := &http.Server{Addr: addrFlag, Handler: mux}
	logger.Info("mcpecho: serving MCP over HTTP", "addr", addrFlag)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-runCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httptransport.WaiterTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
