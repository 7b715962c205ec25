package notify

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func TestHubBroadcast(t *testing.T) {
	require := require.New(t)

	hub := NewHub(nil)
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn1 := dialHub(t, srv)
	conn2 := dialHub(t, srv)

	require.Eventually(func() bool { return hub.ClientCount() == 2 },
		2*time.Second, 2*time.Millisecond)

	hub.Publish(Event{ID: "dev-1", Event: EventUpdate, Data: map[string]any{"state": "ready"}})

	for _, conn := range []*websocket.Conn{conn1, conn2} {
		require.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(err)

		var ev Event
		require.NoError(json.Unmarshal(data, &ev))
		require.Equal("dev-1", ev.ID)
		require.Equal(EventUpdate, ev.Event)
	}
}

func TestHubClientDisconnect(t *testing.T) {
	require := require.New(t)

	hub := NewHub(nil)
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)
	require.Eventually(func() bool { return hub.ClientCount() == 1 },
		2*time.Second, 2*time.Millisecond)

	require.NoError(conn.Close())
	require.Eventually(func() bool { return hub.ClientCount() == 0 },
		2*time.Second, 2*time.Millisecond)

	// Publishing into an empty hub is harmless.
	hub.Publish(Event{ID: "dev-1", Event: EventUpdate})
}

func TestHubClose(t *testing.T) {
	require := require.New(t)

	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)
	require.Eventually(func() bool { return hub.ClientCount() == 1 },
		2*time.Second, 2*time.Millisecond)

	hub.Close()
	require.Zero(hub.ClientCount())

	// The server side dropped the connection.
	require.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(err)
}
