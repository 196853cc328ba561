// internal/session/connection.go
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// outBuffer is the per-connection outbound queue length.
const outBuffer = 32

// Connection is one live transport slot. It starts anonymous and is bound to
// a player (or subscribed as an observer) by the Manager. Binding fields are
// guarded by the Manager's lock.
type Connection struct {
	ID          uuid.UUID
	Fingerprint string
	SessionID   string
	RemoteAddr  string

	// Out carries encoded frames to the transport's write pump.
	Out chan []byte

	playerID *uuid.UUID
	roomID   *uuid.UUID
	observer bool
	lastSeen time.Time

	closeOnce sync.Once
	closeFn   func(code int, reason string)
	done      chan struct{}
}

// Send queues data without blocking. When the queue is full the oldest frame
// is discarded; every frame is a full snapshot or a disposable event, so the
// newest one is the one worth keeping.
func (c *Connection) Send(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	for attempt := 0; attempt < 2; attempt++ {
		select {
		case c.Out <- data:
			return true
		default:
		}
		select {
		case <-c.Out:
		default:
		}
	}
	return false
}

// Close shuts the connection down once, passing code and reason to the transport.
func (c *Connection) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.closeFn != nil {
			c.closeFn(code, reason)
		}
	})
}

// Done is closed once Close has been called.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}
