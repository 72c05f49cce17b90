package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/honganh1206/mcpkit/transport/inmemory"
)

func newTestPair(t *testing.T, serverCfg ServerConfig) (*Session, *Session) {
	t.Helper()
	clientT, serverT := inmemory.NewPair()

	client := NewClientSession(clientT, nil)
	server := NewServerSession(serverT, serverCfg, nil)

	ctx := context.Background()
	client.Run(ctx)
	server.Run(ctx)

	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func pingTool() Tool {
	return Tool{
		Name:        "ping",
		Description: "returns pong",
		InputSchema: []byte(`{"type":"object"}`),
		Call: func(cc *CallContext, arguments map[string]any) ([]ContentPart, error) {
			return []ContentPart{{Type: "text", Text: "pong"}}, nil
		},
	}
}

func failingTool() Tool {
	return Tool{
		Name:        "boom",
		Description: "always fails",
		InputSchema: []byte(`{"type":"object"}`),
		Call: func(cc *CallContext, arguments map[string]any) ([]ContentPart, error) {
			return nil, errors.New("kaboom")
		},
	}
}

// Scenario 1 (spec §8): initialize at the latest version reaches Ready.
func TestInitialize_LatestVersion_ReachesReady(t *testing.T) {
	client, server := newTestPair(t, ServerConfig{ServerInfo: ServerInfo{Name: "srv", Version: "1.0"}})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := client.Initialize(ctx, ClientConfig{ClientInfo: ClientInfo{Name: "cli", Version: "1.0"}})
	require.NoError(t, err)
	assert.Equal(t, Latest(), result.ProtocolVersion)
	assert.Equal(t, StateReady, client.State())
	// The server reaches Ready when it processes notifications/initialized,
	// which can land just after the client's Initialize returns.
	assert.Eventually(t, func() bool { return server.State() == StateReady }, time.Second, 5*time.Millisecond)
	assert.Equal(t, Latest(), server.ProtocolVersion())
}

// Scenario 2: a client proposing an unsupported future version is
// negotiated down to the highest version the server supports.
func TestInitialize_VersionDowngrade(t *testing.T) {
	client, server := newTestPair(t, ServerConfig{ServerInfo: ServerInfo{Name: "srv", Version: "1.0"}})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := client.Initialize(ctx, ClientConfig{
		ProtocolVersion: "2099-01-01",
		ClientInfo:      ClientInfo{Name: "cli", Version: "1.0"},
	})
	require.NoError(t, err)
	assert.Equal(t, Version20250618, result.ProtocolVersion)
	assert.Equal(t, Version20250618, server.ProtocolVersion())
}

// Scenario 3 & 4: tool call success and tool call failure.
func TestToolCall_SuccessAndFailure(t *testing.T) {
	client, server := newTestPair(t, ServerConfig{ServerInfo: ServerInfo{Name: "srv", Version: "1.0"}})
	server.RegisterTool(pingTool())
	server.RegisterTool(failingTool())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := client.Initialize(ctx, ClientConfig{ClientInfo: ClientInfo{Name: "cli", Version: "1.0"}})
	require.NoError(t, err)

	result, err := client.CallTool(ctx, "ping", nil)
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "pong", result.Content[0].Text)

	failResult, err := client.CallTool(ctx, "boom", nil)
	require.NoError(t, err) // a tool failure is a result, not a transport/RPC error
	assert.True(t, failResult.IsError)
	require.Len(t, failResult.Content, 1)
	assert.Equal(t, "kaboom", failResult.Content[0].Text)
}

// Scenario 5: an unknown method returns -32601 and leaves session state
// unchanged.
func TestUnknownMethod_MethodNotFound(t *testing.T) {
	client, _ := newTestPair(t, ServerConfig{ServerInfo: ServerInfo{Name: "srv", Version: "1.0"}})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := client.Initialize(ctx, ClientConfig{ClientInfo: ClientInfo{Name: "cli", Version: "1.0"}})
	require.NoError(t, err)

	stateBefore := client.State()
	err = client.call(ctx, "foo/bar", struct{}{}, nil)
	require.Error(t, err)

	var mcpErr *Error
	require.True(t, errors.As(err, &mcpErr))
	require.NotNil(t, mcpErr.Wire)
	assert.Equal(t, -32601, mcpErr.Wire.Code)
	assert.Equal(t, stateBefore, client.State())
}

// Scenario 6: a resource subscription delivers exactly one
// notifications/resources/updated per NotifyResourceUpdated call, in
// emission order, only to the subscribed URI.
func TestResourceSubscription_DeliversInOrder(t *testing.T) {
	client, server := newTestPair(t, ServerConfig{
		ServerInfo:   ServerInfo{Name: "srv", Version: "1.0"},
		Capabilities: Capabilities{Resources: &ResourcesCapability{Subscribe: true}},
	})
	server.RegisterResource(Resource{
		URI:  "file:///a.txt",
		Name: "a",
		Read: func() ([]ContentPart, error) { return []ContentPart{{Type: "text", Text: "a"}}, nil },
	})
	server.RegisterResource(Resource{
		URI:  "file:///b.txt",
		Name: "b",
		Read: func() ([]ContentPart, error) { return []ContentPart{{Type: "text", Text: "b"}}, nil },
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := client.Initialize(ctx, ClientConfig{ClientInfo: ClientInfo{Name: "cli", Version: "1.0"}})
	require.NoError(t, err)

	updates := make(chan string, 8)
	client.OnResourceUpdated("file:///a.txt", func() { updates <- "a" })

	require.NoError(t, client.SubscribeResource(ctx, "file:///a.txt"))

	// An update to the unsubscribed URI must never be delivered.
	server.NotifyResourceUpdated("file:///b.txt")
	server.NotifyResourceUpdated("file:///a.txt")
	server.NotifyResourceUpdated("file:///a.txt")

	var received []string
	for len(received) < 2 {
		select {
		case u := <-updates:
			received = append(received, u)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for updates, got %v so far", received)
		}
	}
	assert.Equal(t, []string{"a", "a"}, received)

	select {
	case u := <-updates:
		t.Fatalf("unexpected extra delivery: %v", u)
	case <-time.After(100 * time.Millisecond):
	}
}

// Invariant: no capability operation may reach the transport before the
// session is Ready.
func TestNotReady_RejectsBeforeInitialize(t *testing.T) {
	client, _ := newTestPair(t, ServerConfig{ServerInfo: ServerInfo{Name: "srv", Version: "1.0"}})

	_, err := client.ListTools(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotReady)
}

// Invariant: Close is idempotent and safe to call more than once.
func TestClose_Idempotent(t *testing.T) {
	client, _ := newTestPair(t, ServerConfig{ServerInfo: ServerInfo{Name: "srv", Version: "1.0"}})

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
	assert.Equal(t, StateClosed, client.State())
}
