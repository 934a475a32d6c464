// Package wsconn adapts gorilla/websocket into the narrow surface the
// gateway needs: upgrade, a locked binary writer, and close-frame
// encoding. Grounded on the wider example pool's consistent choice of
// gorilla/websocket for exactly this role (see DESIGN.md).
package wsconn

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeWait bounds how long a single outbound frame (including close
// frames) may block, matching the pongWait/writeWait convention used
// throughout the pack's gorilla/websocket handlers.
const writeWait = 10 * time.Second

// Conn wraps a single upgraded WebSocket connection. Reads have a single
// caller (the read loop) and need no locking; writes are serialized
// through mu so that C4, C6, and C7/C2 never interleave frames on the
// wire — the per-connection write mutex called for by spec §4.2/§9.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

// Upgrade upgrades an incoming HTTP request to a WebSocket connection.
func Upgrade(w http.ResponseWriter, r *http.Request, upgrader *websocket.Upgrader) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("wsconn: upgrade: %w", err)
	}
	return &Conn{ws: ws}, nil
}

// SetReadLimit caps the size of a single inbound message (config.MaxFrameBytes).
func (c *Conn) SetReadLimit(limit int64) {
	c.ws.SetReadLimit(limit)
}

// SetReadDeadline forwards to the underlying connection — used by the
// handshake to bound the wait for the init frame (spec §4.3 step 3).
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

// ReadMessage blocks for the next inbound WebSocket message. Only the
// read loop's goroutine may call this.
func (c *Conn) ReadMessage() (messageType int, data []byte, err error) {
	return c.ws.ReadMessage()
}

// WriteBinary sends a single binary frame, serialized against every other
// writer of this connection.
func (c *Conn) WriteBinary(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("wsconn: set write deadline: %w", err)
	}
	if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("wsconn: write binary: %w", err)
	}
	return nil
}

// WriteClose sends a close frame with the given WebSocket close code and
// UTF-8 reason, then closes the underlying connection. Safe to call
// concurrently with WriteBinary (both serialize through mu) and more than
// once (the second close frame write will fail harmlessly once the peer
// or transport has already torn the connection down; callers should
// still only call this once per connection via a sync.Once/atomic guard
// — see registry.Connection.Close).
func (c *Conn) WriteClose(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	msg := websocket.FormatCloseMessage(code, reason)
	writeErr := c.ws.WriteMessage(websocket.CloseMessage, msg)
	closeErr := c.ws.Close()
	if writeErr != nil {
		return fmt.Errorf("wsconn: write close: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("wsconn: close: %w", closeErr)
	}
	return nil
}
