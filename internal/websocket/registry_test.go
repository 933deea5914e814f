package websocket

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestClient(id string, userID int64, username string) *Client {
	c := NewClient(id, userID, username, nil, nil)
	c.bind(userID, username)
	return c
}

func TestRegistry_RegisterReplacesExistingEntry(t *testing.T) {
	registry := NewRegistry(nil)

	first := newTestClient("conn-1", 1, "ana")
	second := newTestClient("conn-2", 1, "ana")

	replaced := registry.Register(first)
	assert.Nil(t, replaced)

	replaced = registry.Register(second)
	assert.Same(t, first, replaced)

	// at most one entry per user, and it is the newest connection
	active := registry.ListActive()
	assert.Len(t, active, 1)
	assert.Same(t, second, active[0])
}

func TestRegistry_UnregisterIsIdempotent(t *testing.T) {
	registry := NewRegistry(nil)
	client := newTestClient("conn-1", 1, "ana")

	// unregistering an absent entry is a no-op, not an error
	assert.False(t, registry.Unregister(client))
	assert.Equal(t, 0, registry.Count())

	registry.Register(client)
	assert.True(t, registry.Unregister(client))
	assert.False(t, registry.Unregister(client))
	assert.Equal(t, 0, registry.Count())
}

func TestRegistry_StaleUnregisterCannotEvictReplacement(t *testing.T) {
	registry := NewRegistry(nil)

	old := newTestClient("conn-1", 1, "ana")
	replacement := newTestClient("conn-2", 1, "ana")

	registry.Register(old)
	registry.Register(replacement)

	// the displaced connection closing late must not remove its successor
	assert.False(t, registry.Unregister(old))

	current, ok := registry.Get(1)
	assert.True(t, ok)
	assert.Same(t, replacement, current)
}

func TestRegistry_ListActiveReturnsSnapshot(t *testing.T) {
	registry := NewRegistry(nil)
	a := newTestClient("conn-a", 1, "ana")
	b := newTestClient("conn-b", 2, "bogdan")
	registry.Register(a)
	registry.Register(b)

	snapshot := registry.ListActive()
	assert.Len(t, snapshot, 2)

	// mutating the registry afterwards does not touch the snapshot
	registry.Unregister(a)
	assert.Len(t, snapshot, 2)
	assert.Equal(t, 1, registry.Count())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	registry := NewRegistry(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			c := newTestClient("conn", userID, "user")
			registry.Register(c)
			registry.ListActive()
			registry.ActiveUserIDs()
			registry.Unregister(c)
		}(int64(i))
	}
	wg.Wait()

	assert.Equal(t, 0, registry.Count())
}
