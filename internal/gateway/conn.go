package gateway

import (
	"context"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const writeTimeout = 5 * time.Second

// wsConn wraps a websocket with serialized, deadline-bounded JSON
// writes so a stalled peer cannot block a match session.
type wsConn struct {
	mu sync.Mutex
	c  *websocket.Conn
}

func newWSConn(c *websocket.Conn) *wsConn {
	return &wsConn{c: c}
}

func (w *wsConn) Send(ctx context.Context, v any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, writeTimeout)
		defer cancel()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return wsjson.Write(ctx, w.c, v)
}

func (w *wsConn) Close(code websocket.StatusCode, reason string) {
	_ = w.c.Close(code, reason)
}
