package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_BroadcastReachesAllActiveConnections(t *testing.T) {
	registry := NewRegistry(nil)
	hub := NewHub(registry, nil)

	clients := []*Client{
		newTestClient("conn-1", 1, "ana"),
		newTestClient("conn-2", 2, "bogdan"),
		newTestClient("conn-3", 3, "carmen"),
	}
	for _, c := range clients {
		registry.Register(c)
	}

	hub.Broadcast(NewUserJoinedEvent(1, "ana"))

	for _, c := range clients {
		event := recvEvent(t, c)
		assert.Equal(t, "user_joined", event.Type)
		assertNoEvent(t, c)
	}
}

func TestHub_OneFailingRecipientDoesNotBlockTheRest(t *testing.T) {
	registry := NewRegistry(nil)
	hub := NewHub(registry, nil)

	stuck := newTestClient("conn-stuck", 1, "ana")
	healthy := newTestClient("conn-ok", 2, "bogdan")
	registry.Register(stuck)
	registry.Register(healthy)

	// jam the slow client's buffer
	for {
		if err := stuck.Send([]byte("x")); err != nil {
			require.ErrorIs(t, err, ErrSendBufferFull)
			break
		}
	}

	hub.Broadcast(NewUserLeftEvent(3, "carmen"))

	event := recvEvent(t, healthy)
	assert.Equal(t, "user_left", event.Type)
}

func TestHub_ClosedRecipientIsSkipped(t *testing.T) {
	registry := NewRegistry(nil)
	hub := NewHub(registry, nil)

	closed := newTestClient("conn-closed", 1, "ana")
	healthy := newTestClient("conn-ok", 2, "bogdan")
	registry.Register(closed)
	registry.Register(healthy)
	closed.Close()

	hub.Broadcast(NewUserJoinedEvent(2, "bogdan"))

	event := recvEvent(t, healthy)
	assert.Equal(t, "user_joined", event.Type)
}
