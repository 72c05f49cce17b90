package jsonrpc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/honganh1206/mcpkit/transport"
)

// pairTransport is a loopback fake: what is sent on one side appears on
// the other's ReceiveStream, each frame already "wire-encoded" bytes.
// Mirrors the style of mcp/jsonrpc2_test.go's mockTransport in the
// teacher repo but without the stdio-specific line buffering, since the
// engine operates above framing here.
type pairTransport struct {
	out    chan transport.Frame
	peerIn chan []byte
	alive  bool
	closed chan struct{}
}

func newPair() (*pairTransport, *pairTransport) {
	ab := make(chan []byte, 16)
	ba := make(chan []byte, 16)

	a := &pairTransport{out: make(chan transport.Frame, 16), peerIn: ba, alive: true, closed: make(chan struct{})}
	b := &pairTransport{out: make(chan transport.Frame, 16), peerIn: ab, alive: true, closed: make(chan struct{})}

	go pump(ab, a.out, a.closed)
	go pump(ba, b.out, b.closed)

	return a, b
}

func pump(in chan []byte, out chan transport.Frame, closed chan struct{}) {
	for {
		select {
		case data := <-in:
			out <- transport.Frame{Data: data}
		case <-closed:
			close(out)
			return
		}
	}
}

func (p *pairTransport) SendRequest(ctx context.Context, frame []byte) error {
	return p.SendNotification(ctx, frame)
}

func (p *pairTransport) SendNotification(ctx context.Context, frame []byte) error {
	if !p.alive {
		return transport.ErrTransportClosed
	}
	select {
	case p.peerIn <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pairTransport) ReceiveStream() <-chan transport.Frame { return p.out }

func (p *pairTransport) Close() error {
	p.alive = false
	close(p.closed)
	return nil
}

func (p *pairTransport) Alive() bool { return p.alive }

func TestSendRequest_SuccessRoundTrip(t *testing.T) {
	client, server := newPair()

	clientEngine := New(client, nil)
	serverEngine := New(server, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clientEngine.Run(ctx)
	serverEngine.Run(ctx)

	serverEngine.HandleFunc("add", func(ctx context.Context, params json.RawMessage) (any, *Error) {
		var p struct{ A, B int }
		_ = json.Unmarshal(params, &p)
		return map[string]int{"sum": p.A + p.B}, nil
	})

	result, err := clientEngine.SendRequest(ctx, "add", map[string]int{"A": 2, "B": 3}, time.Second)
	require.NoError(t, err)

	var out struct{ Sum int }
	require.NoError(t, json.Unmarshal(result, &out))
	assert.Equal(t, 5, out.Sum)
}

func TestSendRequest_UnknownMethod(t *testing.T) {
	client, server := newPair()
	clientEngine := New(client, nil)
	serverEngine := New(server, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clientEngine.Run(ctx)
	serverEngine.Run(ctx)

	_, err := clientEngine.SendRequest(ctx, "foo/bar", nil, time.Second)
	require.Error(t, err)

	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, CodeMethodNotFound, rpcErr.Code)
}

func TestSendRequest_Timeout(t *testing.T) {
	client, server := newPair()
	clientEngine := New(client, nil)
	serverEngine := New(server, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clientEngine.Run(ctx)
	serverEngine.Run(ctx)

	serverEngine.HandleFunc("hang", func(ctx context.Context, params json.RawMessage) (any, *Error) {
		select {} // never responds within the test's timeout
	})

	_, err := clientEngine.SendRequest(ctx, "hang", nil, 20*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)

	clientEngine.pendingMu.Lock()
	_, stillPending := clientEngine.pending["1"]
	clientEngine.pendingMu.Unlock()
	assert.False(t, stillPending, "pending entry must be removed on timeout")
}

func TestSendNotification_NoReplyExpected(t *testing.T) {
	client, server := newPair()
	clientEngine := New(client, nil)
	serverEngine := New(server, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clientEngine.Run(ctx)
	serverEngine.Run(ctx)

	received := make(chan string, 1)
	serverEngine.HandleFunc("notifications/ping", func(ctx context.Context, params json.RawMessage) (any, *Error) {
		received <- "got it"
		return nil, nil
	})

	require.NoError(t, clientEngine.SendNotification(ctx, "notifications/ping", nil))

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("notification was never dispatched")
	}
}

func TestIDsAreMonotonicAndNeverReused(t *testing.T) {
	client, server := newPair()
	clientEngine := New(client, nil)
	serverEngine := New(server, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clientEngine.Run(ctx)
	serverEngine.Run(ctx)

	serverEngine.HandleFunc("ping", func(ctx context.Context, params json.RawMessage) (any, *Error) {
		return "pong", nil
	})

	for i := 0; i < 5; i++ {
		_, err := clientEngine.SendRequest(ctx, "ping", nil, time.Second)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(5), clientEngine.nextID)
}

func TestClose_IsIdempotentAndFailsPending(t *testing.T) {
	client, server := newPair()
	clientEngine := New(client, nil)
	serverEngine := New(server, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clientEngine.Run(ctx)
	serverEngine.Run(ctx)

	serverEngine.HandleFunc("hang", func(ctx context.Context, params json.RawMessage) (any, *Error) {
		select {}
	})

	done := make(chan error, 1)
	go func() {
		_, err := clientEngine.SendRequest(context.Background(), "hang", nil, time.Minute)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	clientEngine.Close()
	clientEngine.Close() // idempotent

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrTransportClosed)
	case <-time.After(time.Second):
		t.Fatal("pending request was never failed by Close")
	}

	_, err := clientEngine.SendRequest(context.Background(), "ping", nil, time.Second)
	require.ErrorIs(t, err, ErrEngineClosed)
}
