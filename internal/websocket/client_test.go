package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startClient serves one websocket connection and hands the server side to fn.
func startClient(t *testing.T, fn func(c *Client)) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewClient(conn, 1024)
		go c.WritePump()
		fn(c)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	peer, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { peer.Close() })
	return peer
}

func TestClientSendAndRead(t *testing.T) {
	received := make(chan []byte, 1)
	peer := startClient(t, func(c *Client) {
		assert.NoError(t, c.Send(context.Background(), []byte(`{"type":"user_registered"}`)))
		data, err := c.ReadMessage()
		if err == nil {
			received <- data
		}
		c.Close()
	})

	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := peer.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"user_registered"}`, string(data))

	require.NoError(t, peer.WriteMessage(websocket.TextMessage, []byte(`{"type":"join_room"}`)))
	select {
	case got := <-received:
		assert.Equal(t, `{"type":"join_room"}`, string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("server did not read the frame")
	}
}

func TestClientSendAfterClose(t *testing.T) {
	errs := make(chan error, 1)
	peer := startClient(t, func(c *Client) {
		c.Close()
		c.Close()
		errs <- c.Send(context.Background(), []byte(`{}`))
	})

	assert.ErrorIs(t, <-errs, ErrConnectionClosed)

	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := peer.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestClientReadLimit(t *testing.T) {
	errs := make(chan error, 1)
	peer := startClient(t, func(c *Client) {
		_, err := c.ReadMessage()
		errs <- err
		c.Close()
	})

	require.NoError(t, peer.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", 4096))))
	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("oversized frame was not rejected")
	}
}
