package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/ahmetk3436/duochat/internal/services"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventsEndWhenServerDropsConnection(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.WriteJSON(services.Event{Type: services.EventConversationRenamed, ConversationID: "c1", Title: "Hello"})
		_ = conn.Close()
	}))
	t.Cleanup(srv.Close)

	baseline := runtime.NumGoroutine()

	api := NewAPIClient(srv.URL+"/api", "", 5*time.Second)
	events, err := api.Events(context.Background())
	require.NoError(t, err)

	select {
	case ev, ok := <-events:
		require.True(t, ok)
		assert.Equal(t, "Hello", ev.Title)
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("stream not closed after the server went away")
	}

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= baseline
	}, 5*time.Second, 20*time.Millisecond)
}
