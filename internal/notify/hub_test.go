package notify

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func dial(t *testing.T, hub *Hub, username string) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, hub.Serve(w, r, username))
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.Sessions(username) > 0 }, time.Second, 5*time.Millisecond)
	return conn
}

func TestHubDeliversNATSMessagesToSession(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	conn := dial(t, hub, "alice")

	hub.HandleMsg(&nats.Msg{Subject: "wallet.notify.alice", Data: []byte(`{"type":"payment.completed"}`)})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"payment.completed"}`, string(data))
}

func TestHubIgnoresOtherUsers(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	dial(t, hub, "alice")

	assert.Equal(t, 0, hub.Deliver("bob", []byte("{}")))
	assert.Equal(t, 1, hub.Deliver("alice", []byte("{}")))
}

func TestHubDropsClosedSessions(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	conn := dial(t, hub, "alice")

	conn.Close()
	require.Eventually(t, func() bool { return hub.Sessions("alice") == 0 }, time.Second, 5*time.Millisecond)
}
