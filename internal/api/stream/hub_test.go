package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/forecast-ledger/internal/models"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubDeliversResolutionEvents(t *testing.T) {
	hub := NewHub(nil, nil)
	go hub.Run()
	defer hub.Stop()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.ForecastResolved(context.Background(), &models.Forecast{
		MatchID: "m1",
		PHome:   0.7,
		State:   models.StateResolved,
		Resolution: &models.Resolution{
			HomeWon: true,
			Winner:  "Sinner",
		},
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var event struct {
		Type string          `json:"type"`
		Data models.Forecast `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg, &event))
	assert.Equal(t, EventForecastResolved, event.Type)
	assert.Equal(t, "m1", event.Data.MatchID)
	require.NotNil(t, event.Data.Resolution)
	assert.Equal(t, "Sinner", event.Data.Resolution.Winner)
}

func TestHubRejectsUnknownOrigin(t *testing.T) {
	hub := NewHub([]string{"https://ledger.example"}, nil)
	go hub.Run()
	defer hub.Stop()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHubStop(t *testing.T) {
	hub := NewHub([]string{"*"}, nil)
	go hub.Run()

	hub.Stop()
	hub.Stop()
	require.Eventually(t, hub.IsStopped, 2*time.Second, 10*time.Millisecond)
	assert.False(t, hub.Publish(Event{Type: EventScorecard}))

	rec := httptest.NewRecorder()
	hub.ServeWS(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPublishWithoutRunningLoopDoesNotBlock(t *testing.T) {
	hub := NewHub(nil, nil)
	for i := 0; i < sendBuffer; i++ {
		require.True(t, hub.Publish(Event{Type: EventScorecard}))
	}
	assert.False(t, hub.Publish(Event{Type: EventScorecard}), "queue full")
}
