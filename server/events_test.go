package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventHub_StreamsLinkEvents(t *testing.T) {
	hub := NewEventHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.OnConnect("lobby")
	hub.OnDisconnect("lobby", errors.New("connection reset"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var linked, unlinked LinkEvent
	require.NoError(t, conn.ReadJSON(&linked))
	require.NoError(t, conn.ReadJSON(&unlinked))

	assert.Equal(t, EventLinked, linked.Event)
	assert.Equal(t, "lobby", linked.Server)
	assert.Equal(t, EventUnlinked, unlinked.Event)
	assert.Equal(t, "connection reset", unlinked.Error)
}

func TestEventHub_RemovesClosedSubscribers(t *testing.T) {
	hub := NewEventHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
