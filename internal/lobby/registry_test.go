package lobby

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockduel/backend/internal/protocol"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	near, far := net.Pipe()
	t.Cleanup(func() {
		_ = near.Close()
		_ = far.Close()
	})
	return NewClient(protocol.NewChannel(near))
}

func TestRegistryBindAndLookup(t *testing.T) {
	reg := NewRegistry()
	client := newTestClient(t)

	reg.Add(client)
	assert.Equal(t, 1, reg.Count())

	_, ok := reg.Lookup("alice")
	assert.False(t, ok)

	reg.Bind(client, "alice")
	found, ok := reg.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, client, found)
	assert.Equal(t, "alice", client.Username())
}

func TestRegistryUnbindClearsLookup(t *testing.T) {
	reg := NewRegistry()
	client := newTestClient(t)
	reg.Add(client)
	reg.Bind(client, "alice")

	reg.Unbind(client)
	_, ok := reg.Lookup("alice")
	assert.False(t, ok)
	assert.Empty(t, client.Username())
	assert.Equal(t, 1, reg.Count(), "unbind keeps the connection registered")
}

func TestRegistryRemoveDropsBinding(t *testing.T) {
	reg := NewRegistry()
	client := newTestClient(t)
	reg.Add(client)
	reg.Bind(client, "alice")

	reg.Remove(client)
	assert.Zero(t, reg.Count())
	_, ok := reg.Lookup("alice")
	assert.False(t, ok)
}

func TestClientRoomState(t *testing.T) {
	client := newTestClient(t)

	assert.Empty(t, client.RoomID())
	assert.False(t, client.IsOwner())

	client.setRoom("0", true)
	assert.Equal(t, "0", client.RoomID())
	assert.True(t, client.IsOwner())

	client.setRoom("0", false)
	assert.False(t, client.IsOwner(), "ownership can be revoked in place")

	client.clearRoom()
	assert.Empty(t, client.RoomID())
	assert.False(t, client.IsOwner())
}
