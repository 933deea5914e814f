package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"diasporahub/internal/httpapi/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeMessageStore implements repository.ChatMessageRepository with
// monotonically increasing ids and timestamps.
type fakeMessageStore struct {
	mu      sync.Mutex
	created []models.ChatMessage
	err     error
	nextID  int64
	base    time.Time
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{base: time.Now().UTC()}
}

func (s *fakeMessageStore) Create(ctx context.Context, message *models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.nextID++
	message.ID = s.nextID
	message.CreatedAt = s.base.Add(time.Duration(s.nextID) * time.Millisecond)
	s.created = append(s.created, *message)
	return nil
}

func (s *fakeMessageStore) GetByRoomID(ctx context.Context, roomID string) ([]models.ChatMessage, error) {
	return nil, nil
}

func (s *fakeMessageStore) GetByUserID(ctx context.Context, userID int64, limit int) ([]models.ChatMessage, error) {
	return nil, nil
}

func (s *fakeMessageStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.created)
}

// fakeDirectory implements service.UserDirectory from a fixed user set.
type fakeDirectory struct {
	users map[int64]*models.User
}

func (d *fakeDirectory) Lookup(ctx context.Context, userID int64) (*models.User, error) {
	user, ok := d.users[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return user, nil
}

func (d *fakeDirectory) LookupAll(ctx context.Context, userIDs []int64) ([]models.User, error) {
	users := make([]models.User, 0, len(userIDs))
	for _, id := range userIDs {
		if user, ok := d.users[id]; ok {
			users = append(users, *user)
		}
	}
	return users, nil
}

type wireEvent struct {
	Type     string          `json:"type"`
	UserID   int64           `json:"userId"`
	Username string          `json:"username"`
	Message  json.RawMessage `json:"message"`
}

func recvEvent(t *testing.T, c *Client) wireEvent {
	t.Helper()
	select {
	case data := <-c.SendChannel:
		var event wireEvent
		require.NoError(t, json.Unmarshal(data, &event))
		return event
	case <-time.After(time.Second):
		t.Fatal("expected an event but none arrived")
		return wireEvent{}
	}
}

func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.SendChannel:
		t.Fatalf("expected no event, got %s", data)
	default:
	}
}

func newTestRelay(users ...*models.User) (*Relay, *fakeMessageStore, *Registry) {
	store := newFakeMessageStore()
	directory := &fakeDirectory{users: make(map[int64]*models.User)}
	for _, user := range users {
		directory.users[user.ID] = user
	}
	registry := NewRegistry(nil)
	hub := NewHub(registry, nil)
	return NewRelay(registry, hub, store, directory, nil), store, registry
}

// authClient runs the handshake for a connection whose session matches the
// given user and drains the resulting auth_success/user_joined events.
func authClient(t *testing.T, relay *Relay, user *models.User) *Client {
	t.Helper()
	c := NewClient("conn-"+user.Username, user.ID, user.Username, nil, nil)
	frame, _ := json.Marshal(map[string]any{"type": "auth", "userId": user.ID, "username": user.Username})
	relay.HandleFrame(c, frame)

	success := recvEvent(t, c)
	require.Equal(t, "auth_success", success.Type)
	joined := recvEvent(t, c)
	require.Equal(t, "user_joined", joined.Type)
	return c
}

var (
	ana    = &models.User{ID: 1, Username: "ana", FullName: "Ana Popescu"}
	bogdan = &models.User{ID: 2, Username: "bogdan"}
)

func TestRelay_AuthSuccess(t *testing.T) {
	relay, _, registry := newTestRelay(ana)

	c := NewClient("conn-1", 1, "ana", nil, nil)
	relay.HandleFrame(c, []byte(`{"type":"auth","userId":1,"username":"ana"}`))

	success := recvEvent(t, c)
	assert.Equal(t, "auth_success", success.Type)
	assert.Equal(t, int64(1), success.UserID)
	assert.Equal(t, "ana", success.Username)

	// the broadcast reaches the new connection too
	joined := recvEvent(t, c)
	assert.Equal(t, "user_joined", joined.Type)
	assert.Equal(t, int64(1), joined.UserID)

	assert.True(t, c.Authenticated())
	_, ok := registry.Get(1)
	assert.True(t, ok)
}

func TestRelay_AuthRejectsMissingFields(t *testing.T) {
	relay, _, registry := newTestRelay(ana)

	c := NewClient("conn-1", 1, "ana", nil, nil)
	relay.HandleFrame(c, []byte(`{"type":"auth","username":"ana"}`))

	event := recvEvent(t, c)
	assert.Equal(t, "error", event.Type)
	assert.False(t, c.Authenticated())
	assert.Equal(t, 0, registry.Count())
}

func TestRelay_AuthRejectsSessionMismatch(t *testing.T) {
	relay, _, registry := newTestRelay(ana, bogdan)

	// session belongs to ana, frame claims bogdan
	c := NewClient("conn-1", 1, "ana", nil, nil)
	relay.HandleFrame(c, []byte(`{"type":"auth","userId":2,"username":"bogdan"}`))

	event := recvEvent(t, c)
	assert.Equal(t, "error", event.Type)
	assert.False(t, c.Authenticated())
	assert.Equal(t, 0, registry.Count())
}

func TestRelay_AuthUsernameComesFromDirectory(t *testing.T) {
	relay, _, _ := newTestRelay(ana)

	c := NewClient("conn-1", 1, "ana", nil, nil)
	relay.HandleFrame(c, []byte(`{"type":"auth","userId":1,"username":"totally-someone-else"}`))

	success := recvEvent(t, c)
	assert.Equal(t, "auth_success", success.Type)
	assert.Equal(t, "ana", success.Username)
	assert.Equal(t, "ana", c.Username)
}

func TestRelay_ChatBeforeAuthIsRejected(t *testing.T) {
	relay, store, _ := newTestRelay(ana)
	listener := authClient(t, relay, ana)

	c := NewClient("conn-unauth", 2, "bogdan", nil, nil)
	relay.HandleFrame(c, []byte(`{"type":"chat","roomId":"general","message":"salut"}`))

	event := recvEvent(t, c)
	assert.Equal(t, "error", event.Type)

	// nothing persisted, nothing broadcast
	assert.Equal(t, 0, store.count())
	assertNoEvent(t, listener)
}

func TestRelay_ChatPersistsAndBroadcastsToAll(t *testing.T) {
	relay, store, _ := newTestRelay(ana, bogdan)
	a := authClient(t, relay, ana)
	b := authClient(t, relay, bogdan)
	recvEvent(t, a) // b's user_joined seen by a

	relay.HandleFrame(a, []byte(`{"type":"chat","roomId":"general","message":"salut"}`))

	require.Equal(t, 1, store.count())
	assert.Equal(t, int64(1), store.created[0].UserID)
	assert.Equal(t, "general", store.created[0].RoomID)
	assert.Equal(t, "salut", store.created[0].Message)

	// every active connection gets exactly one chat event
	for _, c := range []*Client{a, b} {
		event := recvEvent(t, c)
		require.Equal(t, "chat", event.Type)

		var message models.ChatMessage
		require.NoError(t, json.Unmarshal(event.Message, &message))
		assert.Equal(t, int64(1), message.UserID)
		assert.Equal(t, "salut", message.Message)
		require.NotNil(t, message.User)
		assert.Equal(t, "ana", message.User.Username)
		assertNoEvent(t, c)
	}
}

func TestRelay_ChatIdentityIsBoundToConnection(t *testing.T) {
	relay, store, _ := newTestRelay(ana)
	a := authClient(t, relay, ana)

	// the spoofed userId on the chat frame is ignored
	relay.HandleFrame(a, []byte(`{"type":"chat","roomId":"general","message":"salut","userId":999}`))

	require.Equal(t, 1, store.count())
	assert.Equal(t, int64(1), store.created[0].UserID)
}

func TestRelay_ChatRejectsEmptyFields(t *testing.T) {
	relay, store, _ := newTestRelay(ana)
	a := authClient(t, relay, ana)

	relay.HandleFrame(a, []byte(`{"type":"chat","roomId":"general","message":""}`))
	event := recvEvent(t, a)
	assert.Equal(t, "error", event.Type)

	relay.HandleFrame(a, []byte(`{"type":"chat","roomId":"","message":"salut"}`))
	event = recvEvent(t, a)
	assert.Equal(t, "error", event.Type)

	assert.Equal(t, 0, store.count())
}

func TestRelay_PersistenceFailureIsReportedToSenderOnly(t *testing.T) {
	relay, store, _ := newTestRelay(ana, bogdan)
	a := authClient(t, relay, ana)
	b := authClient(t, relay, bogdan)
	recvEvent(t, a) // b's user_joined

	store.err = errors.New("database unreachable")
	relay.HandleFrame(a, []byte(`{"type":"chat","roomId":"general","message":"salut"}`))

	event := recvEvent(t, a)
	assert.Equal(t, "error", event.Type)

	// not retried, not broadcast
	assertNoEvent(t, a)
	assertNoEvent(t, b)
}

func TestRelay_SingleSenderOrderingIsPreserved(t *testing.T) {
	relay, store, _ := newTestRelay(ana)
	a := authClient(t, relay, ana)

	relay.HandleFrame(a, []byte(`{"type":"chat","roomId":"general","message":"first"}`))
	relay.HandleFrame(a, []byte(`{"type":"chat","roomId":"general","message":"second"}`))

	require.Equal(t, 2, store.count())
	assert.Equal(t, "first", store.created[0].Message)
	assert.Equal(t, "second", store.created[1].Message)
	assert.True(t, !store.created[1].CreatedAt.Before(store.created[0].CreatedAt))
}

func TestRelay_DisconnectAnnouncesDeparture(t *testing.T) {
	relay, _, registry := newTestRelay(ana, bogdan)
	a := authClient(t, relay, ana)
	b := authClient(t, relay, bogdan)
	recvEvent(t, a) // b's user_joined

	relay.HandleDisconnect(a)

	_, ok := registry.Get(1)
	assert.False(t, ok)

	left := recvEvent(t, b)
	assert.Equal(t, "user_left", left.Type)
	assert.Equal(t, int64(1), left.UserID)
	assert.Equal(t, "ana", left.Username)

	// a second disconnect for the same connection announces nothing
	relay.HandleDisconnect(a)
	assertNoEvent(t, b)
}

func TestRelay_UnauthenticatedDisconnectIsSilent(t *testing.T) {
	relay, _, _ := newTestRelay(ana, bogdan)
	listener := authClient(t, relay, bogdan)

	c := NewClient("conn-1", 1, "ana", nil, nil)
	relay.HandleDisconnect(c)

	assertNoEvent(t, listener)
}

func TestRelay_DuplicateAuthReplacesOldConnection(t *testing.T) {
	relay, _, registry := newTestRelay(ana, bogdan)
	old := authClient(t, relay, ana)
	listener := authClient(t, relay, bogdan)
	recvEvent(t, old) // bogdan's user_joined

	// same user authenticates on a fresh socket
	replacement := NewClient("conn-new", 1, "ana", nil, nil)
	relay.HandleFrame(replacement, []byte(`{"type":"auth","userId":1,"username":"ana"}`))

	success := recvEvent(t, replacement)
	assert.Equal(t, "auth_success", success.Type)

	current, ok := registry.Get(1)
	require.True(t, ok)
	assert.Same(t, replacement, current)

	// the displaced connection is closed and cannot be written to
	assert.ErrorIs(t, old.Send([]byte("x")), ErrClientClosed)

	// the old socket closing late neither evicts nor announces anything
	relay.HandleDisconnect(old)
	_, ok = registry.Get(1)
	assert.True(t, ok)

	joined := recvEvent(t, listener)
	assert.Equal(t, "user_joined", joined.Type)
	assertNoEvent(t, listener)
}

func TestRelay_UnknownFrameTypeIsIgnored(t *testing.T) {
	relay, store, _ := newTestRelay(ana)
	a := authClient(t, relay, ana)

	relay.HandleFrame(a, []byte(`{"type":"typing","roomId":"general"}`))

	assertNoEvent(t, a)
	assert.Equal(t, 0, store.count())
}

func TestRelay_MalformedFrameKeepsConnectionOpen(t *testing.T) {
	relay, _, _ := newTestRelay(ana)

	c := NewClient("conn-1", 1, "ana", nil, nil)
	relay.HandleFrame(c, []byte(`{broken`))

	event := recvEvent(t, c)
	assert.Equal(t, "error", event.Type)

	// the same connection can still authenticate afterwards
	relay.HandleFrame(c, []byte(`{"type":"auth","userId":1,"username":"ana"}`))
	success := recvEvent(t, c)
	assert.Equal(t, "auth_success", success.Type)
}

func TestRelay_AuthWithinWindowKeepsConnectionOpen(t *testing.T) {
	relay, _, registry := newTestRelay(ana)

	c := NewClient("conn-1", 1, "ana", nil, nil)
	c.StartAuthTimer(20 * time.Millisecond)
	relay.HandleFrame(c, []byte(`{"type":"auth","userId":1,"username":"ana"}`))

	success := recvEvent(t, c)
	require.Equal(t, "auth_success", success.Type)
	recvEvent(t, c) // user_joined

	// the handshake cancelled the window; the connection survives it
	time.Sleep(60 * time.Millisecond)
	assert.NoError(t, c.Send([]byte("x")))
	require.Equal(t, 1, registry.Count())
}

func TestRelay_RateLimitedChatIsNotPersisted(t *testing.T) {
	relay, store, registry := newTestRelay(ana)

	c := NewClient("conn-1", 1, "ana", nil, newChatLimiter(1, 1))
	relay.HandleFrame(c, []byte(`{"type":"auth","userId":1,"username":"ana"}`))
	recvEvent(t, c) // auth_success
	recvEvent(t, c) // user_joined
	require.Equal(t, 1, registry.Count())

	relay.HandleFrame(c, []byte(`{"type":"chat","roomId":"general","message":"one"}`))
	recvEvent(t, c) // chat broadcast for the first message

	relay.HandleFrame(c, []byte(`{"type":"chat","roomId":"general","message":"two"}`))
	event := recvEvent(t, c)
	assert.Equal(t, "error", event.Type)

	assert.Equal(t, 1, store.count())
}
