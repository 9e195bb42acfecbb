package testutil

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// WSClient is a websocket test client for event stream servers
type WSClient struct {
	t    *testing.T
	conn *websocket.Conn
}

// DialWS connects to an httptest server URL (http:// is rewritten to ws://)
func DialWS(t *testing.T, url string) *WSClient {
	t.Helper()
	url = "ws" + strings.TrimPrefix(url, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	c := &WSClient{t: t, conn: conn}
	t.Cleanup(c.Close)
	return c
}

// ReadMessage reads the next message or fails the test after timeout
func (c *WSClient) ReadMessage(timeout time.Duration) (int, []byte) {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	kind, data, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("read message: %v", err)
	}
	return kind, data
}

// ReadJSON reads the next message, which must be text, into v
func (c *WSClient) ReadJSON(v interface{}, timeout time.Duration) {
	c.t.Helper()
	kind, data := c.ReadMessage(timeout)
	if kind != websocket.TextMessage {
		c.t.Fatalf("expected a text message, got type %d (%d bytes)", kind, len(data))
	}
	if err := json.Unmarshal(data, v); err != nil {
		c.t.Fatalf("decode %s: %v", data, err)
	}
}

// ReadBinary reads the next message, which must be binary
func (c *WSClient) ReadBinary(timeout time.Duration) []byte {
	c.t.Helper()
	kind, data := c.ReadMessage(timeout)
	if kind != websocket.BinaryMessage {
		c.t.Fatalf("expected a binary message, got type %d: %s", kind, data)
	}
	return data
}

// WriteJSON sends v as a text message
func (c *WSClient) WriteJSON(v interface{}) {
	c.t.Helper()
	if err := c.conn.WriteJSON(v); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

// ExpectClosed waits for the server to close the connection
func (c *WSClient) ExpectClosed(timeout time.Duration) {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		_ = c.conn.SetReadDeadline(deadline)
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
				c.t.Fatalf("connection still open after %v", timeout)
			}
			return
		}
	}
}

// Close closes the connection
func (c *WSClient) Close() {
	_ = c.conn.Close()
}
