package httptransport

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/honganh1206/mcpkit/jsonrpc"
)

// newPair spins up an httptest.Server fronted by a Hub and a
// ClientTransport pointed at it, with both sides wired into a
// jsonrpc.Engine so tests exercise the same path a real mcp.Session
// would.
func newPair(t *testing.T) (clientEngine *jsonrpc.Engine, client *ClientTransport, cleanup func()) {
	t.Helper()

	hub := NewHub(nil)
	var serverEngine *jsonrpc.Engine
	ready := make(chan struct{})
	hub.NewSession = func(st *ServerTransport) {
		serverEngine = jsonrpc.New(st, nil)
		serverEngine.HandleFunc("echo", func(ctx context.Context, params json.RawMessage) (any, *jsonrpc.Error) {
			return map[string]string{"echoed": string(params)}, nil
		})
		serverEngine.Run(context.Background())
		close(ready)
	}

	srv := httptest.NewServer(hub)

	client = NewClient(ClientConfig{BaseURL: srv.URL}, nil)
	clientEngine = jsonrpc.New(client, nil)
	clientEngine.Run(context.Background())

	cleanup = func() {
		clientEngine.Close()
		client.Close()
		if serverEngine != nil {
			serverEngine.Close()
		}
		srv.Close()
	}

	// Force session creation via an initial notification the server
	// ignores (no handler registered), just to populate ready/session.
	require.NoError(t, clientEngine.SendNotification(context.Background(), "initialize", map[string]any{}))
	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("server session was never created")
	}

	return clientEngine, client, cleanup
}

func TestClientServer_RequestReplyRoundTrip(t *testing.T) {
	clientEngine, _, cleanup := newPair(t)
	defer cleanup()

	result, err := clientEngine.SendRequest(context.Background(), "echo", map[string]string{"hello": "world"}, 5*time.Second)
	require.NoError(t, err)
	assert.Contains(t, string(result), "echoed")
}

func TestClientServer_UnknownMethodReturnsMethodNotFound(t *testing.T) {
	clientEngine, _, cleanup := newPair(t)
	defer cleanup()

	_, err := clientEngine.SendRequest(context.Background(), "does-not-exist", nil, 5*time.Second)
	require.Error(t, err)

	var rpcErr *jsonrpc.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, jsonrpc.CodeMethodNotFound, rpcErr.Code)
}

func TestSessionIDIsAssignedAndReused(t *testing.T) {
	clientEngine, client, cleanup := newPair(t)
	defer cleanup()

	require.NotEmpty(t, client.SessionID())

	first := client.SessionID()
	_, err := clientEngine.SendRequest(context.Background(), "echo", "x", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, first, client.SessionID())
}
