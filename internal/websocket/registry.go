package websocket

import (
	"log/slog"
	"sync"
)

// Registry tracks which users currently hold an open, authenticated socket.
// It is pure state: presence announcements are the relay's responsibility.
// Scope is a single server process; a restart loses all entries by design.
type Registry struct {
	clients map[int64]*Client // userID -> live connection, at most one per user
	mu      sync.RWMutex
	logger  *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		clients: make(map[int64]*Client),
		logger:  logger,
	}
}

// Register inserts the entry for the client's userID, replacing any existing
// one. The displaced client (if any) is returned so the caller can close it;
// the registry itself never touches sockets.
func (r *Registry) Register(c *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	replaced := r.clients[c.UserID]
	r.clients[c.UserID] = c
	if replaced != nil {
		r.logger.Info("client replaced in registry", "user_id", c.UserID, "old_client", replaced.ID, "new_client", c.ID)
	} else {
		r.logger.Info("client registered", "user_id", c.UserID, "client_id", c.ID)
	}
	return replaced
}

// Unregister removes the client's entry and reports whether it did. It is a
// no-op both when no entry exists and when the entry belongs to a different
// connection — a replaced socket closing late must not evict its successor.
func (r *Registry) Unregister(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.clients[c.UserID]
	if !ok || current != c {
		return false
	}
	delete(r.clients, c.UserID)
	r.logger.Info("client unregistered", "user_id", c.UserID, "client_id", c.ID)
	return true
}

// Get returns the live connection for a user, if any.
func (r *Registry) Get(userID int64) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[userID]
	return c, ok
}

// ListActive returns a point-in-time snapshot of all current entries.
// Callers iterate the copy, so an unregister mid-broadcast cannot corrupt
// the fan-out.
func (r *Registry) ListActive() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	return clients
}

// ActiveUserIDs returns the userIDs with a live connection, for the
// online-users query surface.
func (r *Registry) ActiveUserIDs() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int64, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of active connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
