package websocket

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const ( // ping pong (2-way heartbeat) to keep connection alive
	WriteWait      = 10 * time.Second    // max time to write a message to the peer
	PongWait       = 60 * time.Second    // max time to wait for pong from peer => no pong = no connection
	PingPeriod     = (PongWait * 9) / 10 // send pings before the pong wait expires, 10% slack for jitter
	MaxMessageSize = 4096                // maximum frame size allowed from peer

	sendBufferSize = 64
)

var (
	ErrClientClosed   = errors.New("client connection closed")
	ErrSendBufferFull = errors.New("client send buffer full")
)

// Client is one websocket connection's handle. SessionUserID/SessionUsername
// come from the web session validated at upgrade time; UserID/Username are
// bound on a successful auth frame and are what the relay trusts afterwards.
type Client struct {
	ID              string // unique connection ID
	SessionUserID   int64
	SessionUsername string

	UserID   int64
	Username string

	Conn        *websocket.Conn
	SendChannel chan []byte

	limiter       *rate.Limiter
	authenticated atomic.Bool
	authTimer     *time.Timer
	done          chan struct{}
	closeOnce     sync.Once
}

// NewClient wraps an upgraded connection. conn may be nil in tests that only
// exercise the frame logic.
func NewClient(id string, sessionUserID int64, sessionUsername string, conn *websocket.Conn, limiter *rate.Limiter) *Client {
	return &Client{
		ID:              id,
		SessionUserID:   sessionUserID,
		SessionUsername: sessionUsername,
		Conn:            conn,
		SendChannel:     make(chan []byte, sendBufferSize),
		limiter:         limiter,
		done:            make(chan struct{}),
	}
}

// Authenticated reports whether the auth handshake completed.
func (c *Client) Authenticated() bool {
	return c.authenticated.Load()
}

// bind fixes the connection's identity after a successful handshake.
func (c *Client) bind(userID int64, username string) {
	c.UserID = userID
	c.Username = username
	c.authenticated.Store(true)
	if c.authTimer != nil {
		c.authTimer.Stop()
	}
}

// StartAuthTimer closes the connection if no valid auth frame arrives within
// the window, so an unauthenticated socket cannot be held open indefinitely.
func (c *Client) StartAuthTimer(window time.Duration) {
	c.authTimer = time.AfterFunc(window, func() {
		if !c.Authenticated() {
			c.Close()
		}
	})
}

// Send enqueues one outbound frame without blocking. A full buffer means the
// peer is too slow to keep up; the frame is dropped and the caller decides
// whether that matters.
func (c *Client) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.SendChannel <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close tears the connection down. Safe to call from any goroutine, any
// number of times.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.authTimer != nil {
			c.authTimer.Stop()
		}
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}

// ReadPump reads frames off the socket and hands them to the relay, one at a
// time: a connection's own frames are always processed in receipt order.
func (c *Client) ReadPump(relay *Relay) {
	defer relay.HandleDisconnect(c)

	c.Conn.SetReadLimit(MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			return
		}
		relay.HandleFrame(c, data)
	}
}

// WritePump drains the send channel to the socket and keeps the connection
// alive with pings. Runs until Close or a write failure.
func (c *Client) WritePump() {
	ticker := time.NewTicker(PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case payload := <-c.SendChannel:
			c.Conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(WriteWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// allowChat applies the per-connection chat rate limit. A nil limiter means
// unlimited (tests).
func (c *Client) allowChat() bool {
	if c.limiter == nil {
		return true
	}
	return c.limiter.Allow()
}

// newChatLimiter builds the per-connection chat frame limiter.
func newChatLimiter(perSecond float64, burst int) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}
