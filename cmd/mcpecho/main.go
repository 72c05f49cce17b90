// Command mcpecho is a small harness for exercising the engine: it can
// run as an MCP server exposing one demo tool, or as a client that
// drives that server through initialize, tools/list and tools/call. It exists to
// prove the wire framing end to end, not to ship a useful tool.
//
// Grounded on mcp/tester/main.go and mcp/testjsonrpc/main.go in the
// teacher repo (a subprocess-driven stdio client that calls initialize,
// tools/list, and tools/call against a real child process) and on
// cmd/cmd.go's cobra wiring.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	transportFlag string
	addrFlag      string
	commandFlag   string
	logLevelFlag  string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mcpecho",
		Short: "Demo MCP server and client for exercising the engine",
	}
	root.PersistentFlags().StringVar(&transportFlag, "transport", "stdio", "transport to use: stdio or http")
	root.PersistentFlags().StringVar(&addrFlag, "addr", "127.0.0.1:8642", "HTTP listen/dial address (http transport only)")
	root.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info", "log level: debug, info, notice, warning, error, critical, alert, emergency")

	root.AddCommand(newServeCmd())
	root.AddCommand(newClientCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
