package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const writeTimeout = 10 * time.Second

// conn is one websocket subscriber. Frames are queued by Send and written
// by a single writer goroutine, so a slow client never blocks a channel.
type conn struct {
	id   string
	ws   *websocket.Conn
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func newConn(id string, ws *websocket.Conn, queueSize int) *conn {
	return &conn{
		id:   id,
		ws:   ws,
		out:  make(chan []byte, queueSize),
		done: make(chan struct{}),
	}
}

func (c *conn) ID() string { return c.id }

// Send queues frame for delivery. It reports false when the queue is full
// or the connection is gone.
func (c *conn) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- frame:
		return true
	default:
		return false
	}
}

func (c *conn) close() {
	c.once.Do(func() { close(c.done) })
}

// writeLoop drains the queue until ctx ends or a write fails.
func (c *conn) writeLoop(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case frame := <-c.out:
			writeCtx, writeCancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Write(writeCtx, websocket.MessageText, frame)
			writeCancel()
			if err != nil {
				if ctx.Err() == nil {
					slog.Debug("WebSocket write error", "subscriber", c.id, "error", err)
				}
				return
			}
		}
	}
}
