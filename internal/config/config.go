// Package config resolves the session configuration spec §6
// enumerates: protocol version ceiling, client/server identity,
// capability options, request timeout, and transport selection.
//
// Grounded on the teacher's cmd/tui/main.go home-directory resolution
// (homedir.Dir() then a dotfile under it) for LoadDefault, generalized
// from that file's hardcoded ".claude"/history.db path to a
// servers.json manifest describing one or more stdio MCP servers to
// launch.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"

	"github.com/honganh1206/mcpkit/mcp"
)

// TransportKind selects which of the three transport shapes a Config
// describes.
type TransportKind string

const (
	TransportStdio    TransportKind = "stdio"
	TransportHTTP     TransportKind = "http"
	TransportInMemory TransportKind = "in-memory"
)

// StdioTransportConfig holds the subprocess launch parameters for
// TransportStdio.
type StdioTransportConfig struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	Env     []string `json:"env,omitempty"`
}

// HTTPTransportConfig holds the dial parameters for TransportHTTP.
type HTTPTransportConfig struct {
	BaseURL       string            `json:"baseUrl"`
	Headers       map[string]string `json:"headers,omitempty"`
	AuthToken     string            `json:"authToken,omitempty"`
	AllowInsecure bool              `json:"allowInsecure,omitempty"`
}

// InMemoryTransportConfig names a shared transport handle constructed
// elsewhere in-process (there is nothing to serialize: the handle
// itself is passed programmatically, not read from a manifest).
type InMemoryTransportConfig struct {
	Handle string `json:"handle,omitempty"`
}

// TransportConfig is the sum type over the three transport shapes;
// exactly one of Stdio/HTTP/InMemory is meaningful, selected by Kind.
type TransportConfig struct {
	Kind     TransportKind            `json:"type"`
	Stdio    *StdioTransportConfig    `json:"stdio,omitempty"`
	HTTP     *HTTPTransportConfig     `json:"http,omitempty"`
	InMemory *InMemoryTransportConfig `json:"inMemory,omitempty"`
}

// Config is the full set of session configuration keys spec §6
// enumerates.
type Config struct {
	ProtocolVersion mcp.ProtocolVersion `json:"protocolVersion,omitempty"`
	ClientInfo      mcp.ClientInfo      `json:"clientInfo,omitempty"`
	ServerInfo      mcp.ServerInfo      `json:"serverInfo,omitempty"`
	Capabilities    mcp.Capabilities    `json:"capabilities,omitempty"`
	RequestTimeout  time.Duration       `json:"requestTimeout,omitempty"`
	Transport       TransportConfig     `json:"transport"`
}

// Manifest is the servers.json shape LoadDefault reads: a named list of
// stdio server launch configs a CLI harness can offer the user a choice
// among.
type Manifest struct {
	Servers map[string]StdioTransportConfig `json:"servers"`
}

// defaultDir returns $HOME/.local/.mcpkit, creating it if necessary.
func defaultDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".local", ".mcpkit")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("config: create config directory: %w", err)
	}
	return dir, nil
}

// LoadDefault reads $HOME/.local/.mcpkit/servers.json and returns the
// Manifest of named stdio server configs within it. A missing manifest file is not
// an error: it returns an empty Manifest so first-run tooling can offer
// to create one.
func LoadDefault() (Manifest, error) {
	dir, err := defaultDir()
	if err != nil {
		return Manifest{}, err
	}
	path := filepath.Join(dir, "servers.json")

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Manifest{Servers: map[string]StdioTransportConfig{}}, nil
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if m.Servers == nil {
		m.Servers = map[string]StdioTransportConfig{}
	}
	return m, nil
}

// Save writes m to $HOME/.local/.mcpkit/servers.json, overwriting any
// existing manifest.
func Save(m Manifest) error {
	dir, err := defaultDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal manifest: %w", err)
	}
	path := filepath.Join(dir, "servers.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
