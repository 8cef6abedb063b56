package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dialTestConn upgrades a real connection through an httptest server and
// returns both ends.
func dialTestConn(t *testing.T) (server, client *websocket.Conn) {
	t.Helper()

	up := websocket.Upgrader{}
	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Error(err)
			return
		}
		connCh <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case server = <-connCh:
	case <-time.After(2 * time.Second):
		t.Fatal("upgrade never completed")
	}
	return server, client
}

func TestSendToUserNotConnected(t *testing.T) {
	hub := NewWSHub()

	err := hub.SendToUser("nobody", WSMessage{Type: "partner_status"})
	assert.Error(t, err)
	assert.False(t, hub.IsOnline("nobody"))
}

func TestRegisterAndSend(t *testing.T) {
	hub := NewWSHub()
	server, client := dialTestConn(t)

	hub.Register("user-1", server)
	defer hub.Unregister("user-1")
	assert.True(t, hub.IsOnline("user-1"))

	online := true
	require.NoError(t, hub.SendToUser("user-1", WSMessage{Type: "partner_status", Online: &online}))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)

	var msg WSMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "partner_status", msg.Type)
	require.NotNil(t, msg.Online)
	assert.True(t, *msg.Online)
}

func TestSendToUserConcurrent(t *testing.T) {
	// A connected user has several concurrent writers: both pollers, the
	// read loop's error replies and handler pushes. Every frame must still
	// arrive intact.
	hub := NewWSHub()
	server, client := dialTestConn(t)

	hub.Register("user-1", server)
	defer hub.Unregister("user-1")

	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				count := j
				if err := hub.SendToUser("user-1", WSMessage{Type: "unread_count", Count: &count}); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}

	for received := 0; received < writers*perWriter; received++ {
		require.NoError(t, client.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, data, err := client.ReadMessage()
		require.NoError(t, err)

		var msg WSMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, "unread_count", msg.Type)
	}

	wg.Wait()
}

func TestRegisterReplacesConnection(t *testing.T) {
	hub := NewWSHub()
	first, _ := dialTestConn(t)
	second, client := dialTestConn(t)

	hub.Register("user-1", first)
	hub.Register("user-1", second)
	defer hub.Unregister("user-1")

	// The first connection was closed on replacement; sends land on the second.
	require.NoError(t, hub.SendToUser("user-1", WSMessage{Type: "couple_unlinked"}))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)

	var msg WSMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "couple_unlinked", msg.Type)
}
