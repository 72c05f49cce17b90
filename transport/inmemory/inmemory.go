// Package inmemory implements the in-process loopback transport: two
// bounded FIFO queues connecting a client and server with no I/O at
// all, sharing a liveness flag and a synthetic session identifier so
// code that only knows how to key off a session id (the HTTP feature
// parity spec §4.6 asks for) still works against it.
package inmemory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/honganh1206/mcpkit/transport"
)

// QueueDepth bounds each direction's FIFO; a send blocks (respecting
// ctx) once the peer has fallen this far behind draining it.
const QueueDepth = 64

// pair is the shared state both halves of an in-memory connection hold.
type pair struct {
	mu        sync.Mutex
	alive     bool
	closed    chan struct{}
	closeOnce sync.Once

	sessionID string
}

// Transport is one endpoint of a paired in-memory connection. Two
// Transports sharing a *pair, with each one's outbound queue being the
// other's inbound queue, form a full-duplex loopback.
type Transport struct {
	p *pair

	send chan []byte // this endpoint writes here
	recv chan []byte // this endpoint reads here

	out chan transport.Frame
}

// NewPair builds two connected Transports: sends on one surface as
// receives on the other, and vice versa.
func NewPair() (client *Transport, server *Transport) {
	p := &pair{alive: true, closed: make(chan struct{}), sessionID: uuid.NewString()}

	clientToServer := make(chan []byte, QueueDepth)
	serverToClient := make(chan []byte, QueueDepth)

	client = &Transport{p: p, send: clientToServer, recv: serverToClient, out: make(chan transport.Frame, QueueDepth)}
	server = &Transport{p: p, send: serverToClient, recv: clientToServer, out: make(chan transport.Frame, QueueDepth)}

	go client.pump()
	go server.pump()

	return client, server
}

// SessionID returns the synthetic identifier shared by both ends of the
// pair, standing in for the Mcp-Session-Id the HTTP transport assigns.
func (t *Transport) SessionID() string { return t.p.sessionID }

func (t *Transport) pump() {
	for {
		select {
		case data, ok := <-t.recv:
			if !ok {
				t.deliverClosed()
				return
			}
			t.out <- transport.Frame{Data: data}
		case <-t.p.closed:
			t.deliverClosed()
			return
		}
	}
}

func (t *Transport) deliverClosed() {
	select {
	case t.out <- transport.Frame{Err: transport.ErrTransportClosed}:
	default:
	}
	close(t.out)
}

func (t *Transport) SendRequest(ctx context.Context, frame []byte) error {
	return t.send0(ctx, frame)
}

func (t *Transport) SendNotification(ctx context.Context, frame []byte) error {
	return t.send0(ctx, frame)
}

func (t *Transport) send0(ctx context.Context, frame []byte) error {
	if !t.Alive() {
		return transport.ErrTransportClosed
	}
	select {
	case t.send <- frame:
		return nil
	case <-t.p.closed:
		return transport.ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transport) ReceiveStream() <-chan transport.Frame { return t.out }

func (t *Transport) Alive() bool {
	t.p.mu.Lock()
	defer t.p.mu.Unlock()
	return t.p.alive
}

// Close is idempotent and, because both endpoints share one *pair,
// closing either end tears down the whole connection: the other side's
// pump observes p.closed and delivers ErrTransportClosed too.
func (t *Transport) Close() error {
	t.p.closeOnce.Do(func() {
		t.p.mu.Lock()
		t.p.alive = false
		t.p.mu.Unlock()
		close(t.p.closed)
	})
	return nil
}
