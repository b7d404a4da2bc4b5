package stream

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// pushServer upgrades each connection, writes the given frames, then holds
// the connection open until the client goes away.
func pushServer(t *testing.T, frames [][]byte, upgrades *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if upgrades != nil {
			upgrades.Add(1)
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, f); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func reservedFrame(t *testing.T, serviceID int64) []byte {
	t.Helper()
	f, err := MarshalFrame(LiveEvent{
		ServiceID: serviceID,
		Date:      "2025-01-10",
		FromTime:  "10:00",
		ToTime:    "11:00",
		Status:    StatusReserved,
	})
	require.NoError(t, err)
	return f
}

func waitEvent(t *testing.T, ch <-chan LiveEvent) LiveEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return LiveEvent{}
	}
}

func TestClientDeliversEventsInOrder(t *testing.T) {
	frames := [][]byte{
		reservedFrame(t, 1),
		reservedFrame(t, 2),
		reservedFrame(t, 3),
	}
	srv := pushServer(t, frames, nil)

	got := make(chan LiveEvent, 8)
	c := NewClient(wsURL(srv), nil)
	c.OnEvent(func(ev LiveEvent) { got <- ev })
	c.Connect(Credentials{AuthToken: "tok", ChannelKey: "org-1"})
	defer c.Disconnect()

	for want := int64(1); want <= 3; want++ {
		assert.Equal(t, want, waitEvent(t, got).ServiceID)
	}
}

func TestClientSendsHandshakeIdentity(t *testing.T) {
	frame := reservedFrame(t, 1)

	var gotAuth, gotMarker, gotChannel atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		gotMarker.Store(r.Header.Get("X-Remote-Client"))
		gotChannel.Store(r.URL.Query().Get("channel"))
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, frame)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	got := make(chan LiveEvent, 1)
	c := NewClient(wsURL(srv), nil)
	c.OnEvent(func(ev LiveEvent) { got <- ev })
	c.Connect(Credentials{AuthToken: "tok", ChannelKey: "org-1"})
	defer c.Disconnect()

	waitEvent(t, got)
	assert.Equal(t, "Bearer tok", gotAuth.Load())
	assert.Equal(t, "storefront", gotMarker.Load())
	assert.Equal(t, "org-1", gotChannel.Load())
}

func TestClientSkipsUnrecognizedFrames(t *testing.T) {
	frames := [][]byte{
		[]byte(`not even json`),
		[]byte(`{"event":"wallet.updated","payload":{}}`),
		reservedFrame(t, 9),
	}
	srv := pushServer(t, frames, nil)

	got := make(chan LiveEvent, 8)
	c := NewClient(wsURL(srv), nil)
	c.OnEvent(func(ev LiveEvent) { got <- ev })
	c.Connect(Credentials{})
	defer c.Disconnect()

	// Only the recognized frame survives, and the bad ones did not kill
	// the handler chain.
	assert.Equal(t, int64(9), waitEvent(t, got).ServiceID)
}

func TestClientLastHandlerWins(t *testing.T) {
	srv := pushServer(t, [][]byte{reservedFrame(t, 1)}, nil)

	first := make(chan LiveEvent, 1)
	second := make(chan LiveEvent, 1)
	c := NewClient(wsURL(srv), nil)
	c.OnEvent(func(ev LiveEvent) { first <- ev })
	c.OnEvent(func(ev LiveEvent) { second <- ev })
	c.Connect(Credentials{})
	defer c.Disconnect()

	waitEvent(t, second)
	assert.Empty(t, first)
}

func TestClientConnectIsIdempotent(t *testing.T) {
	var upgrades atomic.Int32
	srv := pushServer(t, [][]byte{reservedFrame(t, 1)}, &upgrades)

	got := make(chan LiveEvent, 1)
	c := NewClient(wsURL(srv), nil)
	c.OnEvent(func(ev LiveEvent) { got <- ev })
	c.Connect(Credentials{})
	c.Connect(Credentials{})
	defer c.Disconnect()

	waitEvent(t, got)
	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, int32(1), upgrades.Load())
}

func TestClientDisconnectIsIdempotent(t *testing.T) {
	// Before any connect.
	c := NewClient("ws://127.0.0.1:1/ws", nil)
	assert.NotPanics(t, func() {
		c.Disconnect()
		c.Disconnect()
	})
	assert.Equal(t, StateDisconnected, c.State())

	// After a real connection.
	srv := pushServer(t, [][]byte{reservedFrame(t, 1)}, nil)
	got := make(chan LiveEvent, 1)
	c = NewClient(wsURL(srv), nil)
	c.OnEvent(func(ev LiveEvent) { got <- ev })
	c.Connect(Credentials{})
	waitEvent(t, got)

	c.Disconnect()
	c.Disconnect()
	assert.Equal(t, StateDisconnected, c.State())
}

func TestClientUnsupportedTransport(t *testing.T) {
	c := NewClient("", nil)
	assert.False(t, c.IsSupported())

	// Connect degrades to a logged no-op.
	c.Connect(Credentials{})
	assert.Equal(t, StateDisconnected, c.State())
	c.Disconnect()
}

func TestClientStaysConnectingOnDialFailure(t *testing.T) {
	// Nothing listens on this port; the client must keep retrying, not
	// fail or panic.
	c := NewClient("ws://127.0.0.1:1/ws", nil)
	c.Connect(Credentials{})

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, StateConnecting, c.State())

	c.Disconnect()
	assert.Equal(t, StateDisconnected, c.State())
}
