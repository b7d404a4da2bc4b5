// Package stream maintains the live websocket connection to the backend's
// reservation event channel and delivers normalized events to the
// reservation coordinator.
package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/class-reserve/client/internal/metrics"
)

// State is the lifecycle of the event channel connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Credentials carries the connect-time identity for the event channel.
// The coordinator tears the connection down and reconnects whenever the
// current user or the channel key changes.
type Credentials struct {
	// AuthToken is the bearer token supplied by the auth collaborator.
	AuthToken string

	// ChannelKey discriminates the organization/tenant channel.
	ChannelKey string
}

// Handler receives normalized events in arrival order. Events are
// delivered serially from a single goroutine per connection.
type Handler func(LiveEvent)

const (
	initialRedialDelay = time.Second
	maxRedialDelay     = 30 * time.Second
	readLimit          = 65536
)

// Client maintains exactly one live connection to the reservation event
// channel. Transport failures are never fatal: they are logged and retried
// with capped backoff, and the worst outcome for the caller is a missing
// live update until the next catalog refetch.
type Client struct {
	url    string
	log    *zap.Logger
	dialer *websocket.Dialer

	mu      sync.Mutex
	state   State
	handler Handler
	conn    *websocket.Conn
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewClient builds a client for the event channel at rawURL. An empty URL
// means the hosting environment has no streaming transport configured; the
// client then reports IsSupported() == false and Connect is a logged no-op.
func NewClient(rawURL string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		url:    rawURL,
		log:    log,
		dialer: websocket.DefaultDialer,
		state:  StateDisconnected,
	}
}

// IsSupported reports whether a streaming transport is available. When
// false the coordinator degrades to catalog-snapshot-only resolution.
func (c *Client) IsSupported() bool {
	return c.url != ""
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnEvent registers the event handler. Exactly one handler is active at a
// time; the last registration wins. Registration is synchronous and
// independent of connection status.
func (c *Client) OnEvent(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// Connect starts the connection loop. It is a no-op when a connection is
// already open or a connect attempt is in flight.
func (c *Client) Connect(creds Credentials) {
	if !c.IsSupported() {
		c.log.Warn("streaming transport not configured; live updates disabled")
		return
	}

	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.state = StateConnecting
	c.mu.Unlock()

	go c.run(ctx, creds, done)
}

// Disconnect tears down the active connection and stops the connection
// loop. Safe to call repeatedly and before any Connect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	conn := c.conn
	c.cancel = nil
	c.done = nil
	c.conn = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	if done != nil {
		<-done
	}

	c.mu.Lock()
	c.state = StateDisconnected
	c.mu.Unlock()
}

// run dials, reads until failure, and redials with capped backoff until
// the context is cancelled. The backoff pattern mirrors a broker consumer
// reconnect loop: reset to the initial delay after every successful dial.
func (c *Client) run(ctx context.Context, creds Credentials, done chan struct{}) {
	defer close(done)

	delay := initialRedialDelay
	for {
		conn, err := c.dial(ctx, creds)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("event channel connect failed",
				zap.Error(err),
				zap.Duration("retry_in", delay))
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			if delay < maxRedialDelay {
				delay *= 2
			}
			continue
		}
		delay = initialRedialDelay

		c.mu.Lock()
		if ctx.Err() != nil {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.conn = conn
		c.state = StateConnected
		c.mu.Unlock()

		metrics.StreamConnectsTotal.Inc()
		c.log.Info("event channel connected", zap.String("url", c.url))

		c.readLoop(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		c.mu.Lock()
		c.conn = nil
		c.state = StateConnecting
		c.mu.Unlock()
	}
}

// dial opens the websocket with the bearer token, the remote-client marker
// and the channel key attached.
func (c *Client) dial(ctx context.Context, creds Credentials) (*websocket.Conn, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("parsing stream url: %w", err)
	}
	q := u.Query()
	q.Set("channel", creds.ChannelKey)
	u.RawQuery = q.Encode()

	header := http.Header{}
	if creds.AuthToken != "" {
		header.Set("Authorization", "Bearer "+creds.AuthToken)
	}
	header.Set("X-Remote-Client", "storefront")

	conn, _, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// readLoop delivers normalized frames to the registered handler until the
// connection dies. Malformed and unrecognized frames are dropped; they must
// not break the handler chain.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(readLimit)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("event channel read error", zap.Error(err))
			}
			return
		}

		ev, ok := normalize(raw)
		if !ok {
			metrics.StreamEventsDroppedTotal.Inc()
			continue
		}
		metrics.StreamEventsReceivedTotal.Inc()

		c.mu.Lock()
		h := c.handler
		c.mu.Unlock()
		if h != nil {
			h(ev)
		}
	}
}
