package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// streamConn serializes writes to one websocket peer. Gorilla connections
// allow a single concurrent writer, and both the hub broadcast and the
// pinger write to the same peer.
type streamConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func newStreamConn(ws *websocket.Conn) *streamConn { return &streamConn{ws: ws} }

func (c *streamConn) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(messageType, data)
}

func (c *streamConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

func (c *streamConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *streamConn) close() { _ = c.ws.Close() }
