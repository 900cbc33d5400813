package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/compactd/internal/common"
	"github.com/ternarybob/compactd/internal/models"
)

func dialTestClient(t *testing.T, h *WebSocketHandler) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// Registration happens during the upgrade handshake; wait for it.
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, 1, h.ClientCount())

	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) models.LogEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event models.LogEvent
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func TestBroadcastReachesClient(t *testing.T) {
	h := NewWebSocketHandler(&common.WebSocketConfig{MinLevel: "info"}, common.GetLogger())
	conn := dialTestClient(t, h)

	h.Broadcast(models.NewLogEvent(models.LogLevelInfo, "job_1", "Job started"))

	event := readEvent(t, conn)
	assert.Equal(t, "Job started", event.Message)
	assert.Equal(t, "job_1", event.JobID)
}

func TestBroadcastFiltersBelowMinLevel(t *testing.T) {
	h := NewWebSocketHandler(&common.WebSocketConfig{MinLevel: "warn"}, common.GetLogger())
	conn := dialTestClient(t, h)

	h.Broadcast(models.NewLogEvent(models.LogLevelInfo, "", "too quiet"))
	h.Broadcast(models.NewLogEvent(models.LogLevelError, "", "loud enough"))

	event := readEvent(t, conn)
	assert.Equal(t, "loud enough", event.Message)
}

func TestBroadcastDropsOnFullBuffer(t *testing.T) {
	h := NewWebSocketHandler(&common.WebSocketConfig{MinLevel: "info"}, common.GetLogger())
	dialTestClient(t, h)

	// Well past the client buffer; Broadcast must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < clientBufferSize*4; i++ {
			h.Broadcast(models.NewLogEvent(models.LogLevelInfo, "", "flood"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Broadcast blocked on a slow client")
	}
}

func TestClientCountAfterDisconnect(t *testing.T) {
	h := NewWebSocketHandler(nil, common.GetLogger())
	conn := dialTestClient(t, h)

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Zero(t, h.ClientCount())
}
