package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopback_SendDeliversToOtherPeers(t *testing.T) {
	hub := NewLoopbackHub()
	a := NewLoopback(hub)
	b := NewLoopback(hub)

	require.NoError(t, a.Send([]byte("hello")))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := b.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestLoopback_SendDoesNotDeliverToSelf(t *testing.T) {
	hub := NewLoopbackHub()
	a := NewLoopback(hub)

	require.NoError(t, a.Send([]byte("hello")))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := a.Recv(ctx)
	assert.Error(t, err)
}

func TestLoopback_RecvRespectsContextCancellation(t *testing.T) {
	hub := NewLoopbackHub()
	a := NewLoopback(hub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Recv(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoopback_BroadcastsToAllOtherPeers(t *testing.T) {
	hub := NewLoopbackHub()
	a := NewLoopback(hub)
	b := NewLoopback(hub)
	c := NewLoopback(hub)

	require.NoError(t, a.Send([]byte("x")))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	gotB, err := b.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), gotB)

	gotC, err := c.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), gotC)
}
