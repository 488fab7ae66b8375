// Package realtime maintains the persistent push notification channel.
//
// One Client owns one websocket lifetime: Disconnected -> Connecting ->
// AwaitingAuth -> Authenticated -> Disconnected. It never reconnects on its
// own; that policy belongs to the surrounding application.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/chronoplan/chronoplan/pkg/logging"
	"github.com/chronoplan/chronoplan/pkg/metrics"
	"github.com/chronoplan/chronoplan/pkg/protocol"
)

// State is the connection state of the push channel.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingAuth
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingAuth:
		return "awaiting-auth"
	case StateAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config holds push channel configuration.
type Config struct {
	URL             string
	AuthToken       string        // may be empty; see SetAuthToken
	HeartbeatDelay  time.Duration // default 30s
	HeartbeatPeriod time.Duration // default 60s
	OnFailure       func(error)   // observes socket failures; never retried here
}

type structureListener struct {
	id int
	fn func()
}

type lockListener struct {
	id int
	fn func(json.RawMessage)
}

// Client is the push notification client. Events are advisory invalidation
// signals: listeners should re-fetch authoritative state, not trust payloads.
type Client struct {
	cfg Config

	mu         sync.Mutex
	state      State
	conn       *websocket.Conn
	token      string
	tokenSent  bool
	started    bool
	closed     bool
	hbOn       bool
	hbStop     chan struct{}
	readCancel context.CancelFunc

	lmu        sync.Mutex
	nextID     int
	structure  []structureListener
	lockStatus []lockListener
}

// New creates a push client for one socket lifetime.
func New(cfg Config) *Client {
	if cfg.HeartbeatDelay == 0 {
		cfg.HeartbeatDelay = 30 * time.Second
	}
	if cfg.HeartbeatPeriod == 0 {
		cfg.HeartbeatPeriod = 60 * time.Second
	}
	return &Client{cfg: cfg, token: cfg.AuthToken}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start opens the persistent socket. No-op after the first successful start;
// a failed dial may be retried by calling Start again. If an auth token is
// already available the auth frame is sent immediately on open, otherwise
// the client waits in AwaitingAuth until SetAuthToken delivers one.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.state = StateConnecting
	c.mu.Unlock()

	conn, _, err := websocket.Dial(ctx, c.cfg.URL, nil)
	if err != nil {
		c.mu.Lock()
		c.started = false
		c.state = StateDisconnected
		c.mu.Unlock()
		return fmt.Errorf("push channel dial: %w", err)
	}

	readCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	// Close may have run while the dial was in flight; drop the socket
	// instead of resurrecting a torn-down client.
	if c.closed {
		c.mu.Unlock()
		cancel()
		conn.Close(websocket.StatusNormalClosure, "")
		return nil
	}
	c.conn = conn
	c.readCancel = cancel
	c.state = StateAwaitingAuth
	token := c.token
	authConn := c.armAuthLocked()
	c.mu.Unlock()

	metrics.SetPushConnected(true)
	if authConn != nil {
		c.writeText(authConn, protocol.FrameAuthPrefix+token)
	}
	go c.readLoop(readCtx, conn)

	logging.Info("push channel connected", logging.String("url", c.cfg.URL))
	return nil
}

// SetAuthToken stores the token and, if the socket is open and still
// awaiting auth, sends the auth frame. The tokenSent guard ensures the
// token goes out at most once per socket lifetime.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	c.token = token
	authConn := c.armAuthLocked()
	c.mu.Unlock()

	if authConn != nil {
		c.writeText(authConn, protocol.FrameAuthPrefix+token)
	}
}

// armAuthLocked transitions to Authenticated and schedules the heartbeat
// when an un-sent token meets an open socket. Returns the connection the
// caller must write the auth frame to, or nil. mu must be held.
func (c *Client) armAuthLocked() *websocket.Conn {
	if c.conn == nil || c.tokenSent || c.token == "" {
		return nil
	}
	c.tokenSent = true
	c.state = StateAuthenticated
	c.startHeartbeatLocked()
	return c.conn
}

// Close tears the socket down. The client stays terminal: a new Client is
// needed for a new socket lifetime.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	cancel := c.readCancel
	c.readCancel = nil
	c.stopHeartbeatLocked()
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "")
	}
	if cancel != nil {
		cancel()
	}
	metrics.SetPushConnected(false)
}

// OnStructureChange registers a listener for catalog invalidation signals.
// Listeners run in registration order. The returned function unsubscribes.
func (c *Client) OnStructureChange(fn func()) func() {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	c.nextID++
	id := c.nextID
	c.structure = append(c.structure, structureListener{id: id, fn: fn})
	return func() {
		c.lmu.Lock()
		defer c.lmu.Unlock()
		for i, e := range c.structure {
			if e.id == id {
				c.structure = append(c.structure[:i], c.structure[i+1:]...)
				return
			}
		}
	}
}

// OnLockStatusChange registers a listener for lock status events. The raw
// frame payload is passed through untouched.
func (c *Client) OnLockStatusChange(fn func(json.RawMessage)) func() {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	c.nextID++
	id := c.nextID
	c.lockStatus = append(c.lockStatus, lockListener{id: id, fn: fn})
	return func() {
		c.lmu.Lock()
		defer c.lmu.Unlock()
		for i, e := range c.lockStatus {
			if e.id == id {
				c.lockStatus = append(c.lockStatus[:i], c.lockStatus[i+1:]...)
				return
			}
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.mu.Lock()
			c.stopHeartbeatLocked()
			if c.conn == conn {
				c.conn = nil
				c.state = StateDisconnected
			}
			c.mu.Unlock()
			metrics.SetPushConnected(false)

			if ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				logging.Warn("push channel closed", logging.Err(err))
				if c.cfg.OnFailure != nil {
					c.cfg.OnFailure(err)
				}
			}
			return
		}
		c.dispatch(data)
	}
}

// dispatch routes one inbound frame. Malformed frames are dropped, logged
// and counted so one bad frame cannot bring the channel down.
func (c *Client) dispatch(data []byte) {
	var frame protocol.PushFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		metrics.RecordPushFrameDropped()
		logging.Warn("dropping malformed push frame",
			logging.Err(err), logging.String("payload", truncate(data, 128)))
		return
	}

	if frame.Type == protocol.PushTypeLockStatusChange {
		metrics.RecordPushEvent(frame.Type)
		for _, e := range c.lockSnapshot() {
			e.fn(json.RawMessage(data))
		}
		return
	}

	metrics.RecordPushEvent("structure")
	for _, e := range c.structureSnapshot() {
		e.fn()
	}
}

// structureSnapshot copies the listener list so unsubscribing during
// dispatch cannot skip or double-deliver.
func (c *Client) structureSnapshot() []structureListener {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	out := make([]structureListener, len(c.structure))
	copy(out, c.structure)
	return out
}

func (c *Client) lockSnapshot() []lockListener {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	out := make([]lockListener, len(c.lockStatus))
	copy(out, c.lockStatus)
	return out
}

// startHeartbeatLocked schedules the keepalive frames once per socket
// lifetime. mu must be held.
func (c *Client) startHeartbeatLocked() {
	if c.hbOn || c.conn == nil {
		return
	}
	c.hbOn = true
	c.hbStop = make(chan struct{})
	go c.heartbeatLoop(c.conn, c.hbStop)
}

func (c *Client) stopHeartbeatLocked() {
	if c.hbOn {
		close(c.hbStop)
		c.hbOn = false
	}
}

func (c *Client) heartbeatLoop(conn *websocket.Conn, stop chan struct{}) {
	timer := time.NewTimer(c.cfg.HeartbeatDelay)
	defer timer.Stop()

	select {
	case <-stop:
		return
	case <-timer.C:
	}
	c.writeText(conn, protocol.FrameHeartbeat)

	ticker := time.NewTicker(c.cfg.HeartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.writeText(conn, protocol.FrameHeartbeat)
		}
	}
}

func (c *Client) writeText(conn *websocket.Conn, s string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(s)); err != nil {
		logging.Warn("push channel write failed", logging.Err(err))
	}
}

func truncate(data []byte, n int) string {
	if len(data) > n {
		return string(data[:n]) + "..."
	}
	return string(data)
}
