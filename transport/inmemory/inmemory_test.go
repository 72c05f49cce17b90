package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/honganh1206/mcpkit/transport"
)

func TestNewPair_DeliversFIFO(t *testing.T) {
	client, server := NewPair()
	defer client.Close()
	defer server.Close()

	ctx := context.Background()
	require.NoError(t, client.SendRequest(ctx, []byte(`{"id":1}`)))
	require.NoError(t, client.SendRequest(ctx, []byte(`{"id":2}`)))

	first := <-server.ReceiveStream()
	second := <-server.ReceiveStream()

	assert.JSONEq(t, `{"id":1}`, string(first.Data))
	assert.JSONEq(t, `{"id":2}`, string(second.Data))
}

func TestSharedSessionID(t *testing.T) {
	client, server := NewPair()
	defer client.Close()
	defer server.Close()

	assert.NotEmpty(t, client.SessionID())
	assert.Equal(t, client.SessionID(), server.SessionID())
}

func TestClose_IsIdempotentAndSharedAcrossBothEnds(t *testing.T) {
	client, server := NewPair()

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	assert.False(t, client.Alive())
	assert.False(t, server.Alive())

	select {
	case fr, ok := <-server.ReceiveStream():
		require.True(t, ok)
		assert.ErrorIs(t, fr.Err, transport.ErrTransportClosed)
	case <-time.After(time.Second):
		t.Fatal("peer never observed the shared close")
	}
}
