package feeds

import (
	"context"
	"errors"
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

// fakeVenue echoes every frame; dropFirst closes the first connection
// right after the handshake
func fakeVenue(t *testing.T, dropFirst bool) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var conns atomic.Int32
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		if n := conns.Add(1); dropFirst && n == 1 {
			time.Sleep(20 * time.Millisecond)
			return
		}

		for {
			mt, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			if err := c.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &conns
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testConfig(url string) TransportConfig {
	cfg := DefaultTransportConfig(url)
	cfg.BaseDelay = 10 * time.Millisecond
	cfg.MaxDelay = 50 * time.Millisecond
	cfg.MaxRetries = 2
	cfg.SendRate = 0
	return cfg
}

func TestTransportSendAndReceive(t *testing.T) {
	srv, _ := fakeVenue(t, false)
	tr := NewTransport(testConfig(wsURL(srv)))
	defer tr.Close()

	got := make(chan string, 1)
	tr.OnMessage(func(b []byte) { got <- string(b) })

	require.NoError(t, tr.Connect(context.Background()))
	assert.Equal(t, StateOpen, tr.State())

	require.NoError(t, tr.Send(context.Background(), map[string]any{"ping": 1}))

	select {
	case msg := <-got:
		assert.JSONEq(t, `{"ping":1}`, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("no echo received")
	}
}

func TestTransportSendBeforeConnect(t *testing.T) {
	tr := NewTransport(testConfig("ws://127.0.0.1:1"))
	err := tr.Send(context.Background(), map[string]any{"x": 1})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestTransportGivesUpAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	tr := NewTransport(testConfig(url))
	err := tr.Connect(context.Background())

	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, 3, connErr.Attempts)

	select {
	case <-tr.Done():
	default:
		t.Fatal("transport should be done")
	}
	assert.Equal(t, err, tr.Err())
}

func TestTransportReconnectsAfterDrop(t *testing.T) {
	srv, conns := fakeVenue(t, true)
	tr := NewTransport(testConfig(wsURL(srv)))
	defer tr.Close()

	var opens, closes atomic.Int32
	reopened := make(chan struct{}, 1)
	tr.OnOpen(func() {
		if opens.Add(1) == 2 {
			reopened <- struct{}{}
		}
	})
	tr.OnClose(func(error) { closes.Add(1) })

	require.NoError(t, tr.Connect(context.Background()))

	select {
	case <-reopened:
	case <-time.After(3 * time.Second):
		t.Fatal("transport did not reconnect")
	}

	assert.Equal(t, int32(1), closes.Load())
	assert.GreaterOrEqual(t, conns.Load(), int32(2))
}

func TestTransportCloseStopsForGood(t *testing.T) {
	srv, _ := fakeVenue(t, false)
	tr := NewTransport(testConfig(wsURL(srv)))

	closed := make(chan error, 1)
	tr.OnClose(func(err error) { closed <- err })

	require.NoError(t, tr.Connect(context.Background()))
	require.NoError(t, tr.Close())

	select {
	case <-tr.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("transport not done after Close")
	}
	assert.ErrorIs(t, tr.Err(), ErrTransportClosed)
	assert.ErrorIs(t, <-closed, ErrTransportClosed)
}
