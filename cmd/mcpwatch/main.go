// Command mcpwatch is a live viewer for a running MCP session: it
// dials a server the same way mcpecho's client does, then renders
// state transitions, capability change notifications, and
// notifications/message logging events as they arrive.
//
// Grounded on tui/tui.go in the teacher repo (tview.Flex layout, a
// scrolling, color-tagged tview.TextView driven by SetChangedFunc
// calling app.Draw, tcell key capture for focus switching), generalized
// from a single hardcoded echo interaction to a feed fan-in from a
// session's notification subscriptions. Diagnostic tooling, not domain
// code: it renders engine activity, it does not implement any tool,
// prompt, or resource itself.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/spf13/cobra"

	"github.com/honganh1206/mcpkit/internal/mlog"
	"github.com/honganh1206/mcpkit/mcp"
	"github.com/honganh1206/mcpkit/transport"
	"github.com/honganh1206/mcpkit/transport/httptransport"
	"github.com/honganh1206/mcpkit/transport/stdio"
)

var (
	transportFlag string
	addrFlag      string
	commandFlag   string
	logLevelFlag  string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mcpwatch",
		Short: "Live viewer for a connected MCP session's state and notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	root.Flags().StringVar(&transportFlag, "transport", "stdio", "transport to use: stdio or http")
	root.Flags().StringVar(&addrFlag, "addr", "127.0.0.1:8642", "HTTP dial address (http transport only)")
	root.Flags().StringVar(&commandFlag, "command", "", "stdio transport only: subprocess command to spawn as the server instead of a self-exec demo child")
	root.Flags().StringVar(&logLevelFlag, "log-level", "warning", "log level: debug, info, notice, warning, error, critical, alert, emergency")
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Println(err)
	}
}

func dial(ctx context.Context, logger *slog.Logger) (transport.Transport, error) {
	switch transportFlag {
	case "http":
		return httptransport.NewClient(httptransport.ClientConfig{
			BaseURL: "http://" + addrFlag + httptransport.DefaultEndpointPath,
		}, logger), nil
	case "stdio":
		command, args := commandFlag, []string{}
		if command == "" {
			self, err := exec.LookPath("mcpecho")
			if err != nil {
				return nil, fmt.Errorf("resolve mcpecho for self-exec demo child (pass --command to watch a different server): %w", err)
			}
			command, args = self, []string{"serve", "--transport", "stdio"}
		}
		return stdio.Spawn(ctx, stdio.Config{Command: command, Args: args}, logger)
	default:
		return nil, fmt.Errorf("unknown transport %q (want stdio or http)", transportFlag)
	}
}

func run(ctx context.Context) error {
	logger := mlog.Setup(mlog.ParseLevel(logLevelFlag))

	t, err := dial(ctx, logger)
	if err != nil {
		return err
	}
	session := mcp.NewClientSession(t, logger)
	session.Run(ctx)
	defer session.Close()

	app := tview.NewApplication()

	feed := tview.NewTextView().
		SetDynamicColors(true).
		SetWordWrap(true).
		SetChangedFunc(func() { app.Draw() })
	feed.SetTitle("Notifications").SetTitleAlign(tview.AlignLeft).SetBorder(true)

	status := tview.NewTextView().
		SetDynamicColors(true).
		SetChangedFunc(func() { app.Draw() })
	status.SetTitle("Session").SetTitleAlign(tview.AlignLeft).SetBorder(true)

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(status, 3, 0, false).
		AddItem(feed, 0, 1, true)

	feed.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyCtrlC {
			app.Stop()
			return nil
		}
		return event
	})

	emit := func(color, label, detail string) {
		app.QueueUpdateDraw(func() {
			fmt.Fprintf(feed, "[%s::]%s[-] %s\n", color, label, detail)
			feed.ScrollToEnd()
		})
	}

	session.OnToolsListChanged(func() { emit("yellow", "tools/list_changed", "") })
	session.OnPromptsListChanged(func() { emit("yellow", "prompts/list_changed", "") })
	session.OnResourcesListChanged(func() { emit("yellow", "resources/list_changed", "") })
	session.OnLogMessage(func(p mcp.LoggingMessageParams) {
		emit("cyan", "message["+string(p.Level)+"]", fmt.Sprintf("%v", p.Data))
	})

	go func() {
		initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		result, err := session.Initialize(initCtx, mcp.ClientConfig{
			ClientInfo: mcp.ClientInfo{Name: "mcpwatch", Version: "0.1.0"},
		})
		if err != nil {
			emit("red", "initialize failed", err.Error())
			return
		}
		emit("green", "initialized", fmt.Sprintf("protocolVersion=%s server=%s", result.ProtocolVersion, result.ServerInfo.Name))
	}()

	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				app.QueueUpdateDraw(func() {
					status.Clear()
					fmt.Fprintf(status, "state=%s protocolVersion=%s", session.State(), session.ProtocolVersion())
				})
			}
		}
	}()

	return app.SetRoot(layout, true).SetFocus(feed).Run()
}
