// internal/session/manager.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qrfun/qrfun-service/internal/protocol"
	"github.com/qrfun/qrfun-service/internal/store"
	"github.com/sirupsen/logrus"
)

var (
	// ErrRoomNotFound is returned when a join or subscribe names an unknown room.
	ErrRoomNotFound = errors.New("room not found")
	// ErrPlayerNotInRoom is returned when the player is unknown or belongs elsewhere.
	ErrPlayerNotInRoom = errors.New("player not in room")
)

// Binding describes what a connection was attached to when it went away.
type Binding struct {
	PlayerID uuid.UUID
	RoomID   uuid.UUID
	Bound    bool // false for anonymous connections and observers
}

// Manager owns the process-local table of live connections. It resolves
// joins against the store but never owns room or player records.
type Manager struct {
	mu       sync.RWMutex
	conns    map[uuid.UUID]*Connection
	store    store.Store
	log      *logrus.Logger
	liveness time.Duration
	now      func() time.Time
}

// NewManager builds a Manager. liveness is how recently a connection must
// have been seen for its player to count as online.
func NewManager(st store.Store, liveness time.Duration, logger *logrus.Logger) *Manager {
	return &Manager{
		conns:    make(map[uuid.UUID]*Connection),
		store:    st,
		log:      logger,
		liveness: liveness,
		now:      time.Now,
	}
}

// SetClock replaces the time source; tests use it to age connections.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Register adds an anonymous connection. closeFn is invoked once when the
// manager (or anyone else) closes it.
func (m *Manager) Register(fingerprint, sessionID, remoteAddr string, closeFn func(code int, reason string)) *Connection {
	c := &Connection{
		ID:          uuid.New(),
		Fingerprint: fingerprint,
		SessionID:   sessionID,
		RemoteAddr:  remoteAddr,
		Out:         make(chan []byte, outBuffer),
		closeFn:     closeFn,
		done:        make(chan struct{}),
	}
	m.mu.Lock()
	c.lastSeen = m.now()
	m.conns[c.ID] = c
	m.mu.Unlock()
	return c
}

// Join binds conn to playerID in roomID after checking both against the
// store. Any other live connection holding the same player from the same
// device fingerprint is unbound and closed first. The previous binding of
// conn, if it pointed at a different player, is returned so the caller can
// treat it as a departure.
func (m *Manager) Join(ctx context.Context, conn *Connection, playerID, roomID uuid.UUID) (prev Binding, err error) {
	if _, err := m.store.GetRoom(ctx, roomID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return prev, ErrRoomNotFound
		}
		return prev, fmt.Errorf("load room: %w", err)
	}
	p, err := m.store.GetPlayer(ctx, playerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return prev, ErrPlayerNotInRoom
		}
		return prev, fmt.Errorf("load player: %w", err)
	}
	if p.RoomID != roomID {
		return prev, ErrPlayerNotInRoom
	}

	var evicted []*Connection
	m.mu.Lock()
	if conn.playerID != nil && *conn.playerID != playerID {
		prev = Binding{PlayerID: *conn.playerID, RoomID: *conn.roomID, Bound: true}
	}
	pid, rid := playerID, roomID
	conn.playerID = &pid
	conn.roomID = &rid
	conn.observer = false
	conn.lastSeen = m.now()

	if conn.Fingerprint != "" {
		for _, other := range m.conns {
			if other == conn || other.playerID == nil || *other.playerID != playerID {
				continue
			}
			if other.Fingerprint == conn.Fingerprint {
				other.playerID, other.roomID = nil, nil
				evicted = append(evicted, other)
			}
		}
	}
	m.mu.Unlock()

	for _, old := range evicted {
		m.log.WithFields(logrus.Fields{"player": playerID, "room": roomID, "conn": old.ID}).
			Info("evicting older connection from same device")
		old.Send(protocol.Encode(protocol.EventSessionReplaced, map[string]string{"reason": "signed in from the same device"}))
		old.Close(protocol.CloseSessionReplaced, "session replaced")
	}
	return prev, nil
}

// Subscribe attaches conn to roomID as a read-only observer.
func (m *Manager) Subscribe(ctx context.Context, conn *Connection, roomID uuid.UUID) (prev Binding, err error) {
	if _, err := m.store.GetRoom(ctx, roomID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return prev, ErrRoomNotFound
		}
		return prev, fmt.Errorf("load room: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if conn.playerID != nil {
		prev = Binding{PlayerID: *conn.playerID, RoomID: *conn.roomID, Bound: true}
	}
	rid := roomID
	conn.playerID = nil
	conn.roomID = &rid
	conn.observer = true
	conn.lastSeen = m.now()
	return prev, nil
}

// Touch records a heartbeat.
func (m *Manager) Touch(conn *Connection) {
	m.mu.Lock()
	conn.lastSeen = m.now()
	m.mu.Unlock()
}

// Binding reports what conn is attached to.
func (m *Manager) Binding(conn *Connection) (playerID, roomID *uuid.UUID, observer bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if conn.playerID != nil {
		p := *conn.playerID
		playerID = &p
	}
	if conn.roomID != nil {
		r := *conn.roomID
		roomID = &r
	}
	return playerID, roomID, conn.observer
}

// Unbind detaches conn from its player, leaving it registered but anonymous.
func (m *Manager) Unbind(conn *Connection) {
	m.mu.Lock()
	conn.playerID, conn.roomID, conn.observer = nil, nil, false
	m.mu.Unlock()
}

// Unregister removes conn from the table and reports the player binding it held.
func (m *Manager) Unregister(conn *Connection) Binding {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, conn.ID)
	if conn.playerID == nil || conn.roomID == nil {
		return Binding{}
	}
	b := Binding{PlayerID: *conn.playerID, RoomID: *conn.roomID, Bound: true}
	conn.playerID, conn.roomID = nil, nil
	return b
}

// HasConnection reports whether any registered connection is bound to playerID.
func (m *Manager) HasConnection(playerID uuid.UUID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.conns {
		if c.playerID != nil && *c.playerID == playerID {
			return true
		}
	}
	return false
}

// IsOnline reports whether playerID has a connection seen within the liveness window.
func (m *Manager) IsOnline(playerID uuid.UUID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.now()
	for _, c := range m.conns {
		if c.playerID != nil && *c.playerID == playerID && now.Sub(c.lastSeen) <= m.liveness {
			return true
		}
	}
	return false
}

// ObserverCount counts observer connections subscribed to roomID.
func (m *Manager) ObserverCount(roomID uuid.UUID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.conns {
		if c.observer && c.roomID != nil && *c.roomID == roomID {
			n++
		}
	}
	return n
}

// ActiveRooms lists every room with at least one attached connection.
func (m *Manager) ActiveRooms() []uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	for _, c := range m.conns {
		if c.roomID != nil && !seen[*c.roomID] {
			seen[*c.roomID] = true
			out = append(out, *c.roomID)
		}
	}
	return out
}

// roomTargets snapshots the connections attached to roomID with their viewer.
func (m *Manager) roomTargets(roomID uuid.UUID) ([]*Connection, []*uuid.UUID) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var conns []*Connection
	var viewers []*uuid.UUID
	for _, c := range m.conns {
		if c.roomID == nil || *c.roomID != roomID {
			continue
		}
		conns = append(conns, c)
		if c.playerID != nil {
			p := *c.playerID
			viewers = append(viewers, &p)
		} else {
			viewers = append(viewers, nil)
		}
	}
	return conns, viewers
}

// BroadcastRoom renders one frame per distinct viewer and queues it on every
// connection attached to roomID. A nil viewer is an observer.
func (m *Manager) BroadcastRoom(roomID uuid.UUID, render func(viewer *uuid.UUID) ([]byte, error)) {
	conns, viewers := m.roomTargets(roomID)
	cache := make(map[uuid.UUID][]byte)
	var observerFrame []byte
	for i, c := range conns {
		var frame []byte
		if v := viewers[i]; v == nil {
			if observerFrame == nil {
				f, err := render(nil)
				if err != nil {
					m.log.Warnf("room %s: render observer frame: %v", roomID, err)
					continue
				}
				observerFrame = f
			}
			frame = observerFrame
		} else {
			f, ok := cache[*v]
			if !ok {
				var err error
				f, err = render(v)
				if err != nil {
					m.log.Warnf("room %s: render frame for %s: %v", roomID, *v, err)
					continue
				}
				cache[*v] = f
			}
			frame = f
		}
		if !c.Send(frame) {
			m.log.Debugf("room %s: dropped frame for connection %s", roomID, c.ID)
		}
	}
}

// SendRoom queues the same frame on every connection attached to roomID.
func (m *Manager) SendRoom(roomID uuid.UUID, data []byte) {
	conns, _ := m.roomTargets(roomID)
	for _, c := range conns {
		c.Send(data)
	}
}

// SendToPlayer queues data on every connection bound to playerID.
func (m *Manager) SendToPlayer(playerID uuid.UUID, data []byte) {
	m.mu.RLock()
	var targets []*Connection
	for _, c := range m.conns {
		if c.playerID != nil && *c.playerID == playerID {
			targets = append(targets, c)
		}
	}
	m.mu.RUnlock()
	for _, c := range targets {
		c.Send(data)
	}
}

// DisconnectPlayer unbinds and closes every connection of playerID. The
// connections are unbound first so their teardown is not reported as a
// disconnect.
func (m *Manager) DisconnectPlayer(playerID uuid.UUID, code int, reason string) {
	m.mu.Lock()
	var targets []*Connection
	for _, c := range m.conns {
		if c.playerID != nil && *c.playerID == playerID {
			c.playerID, c.roomID = nil, nil
			targets = append(targets, c)
		}
	}
	m.mu.Unlock()
	for _, c := range targets {
		c.Close(code, reason)
	}
}

// Sweep closes connections that have been silent for twice the liveness
// window and returns how many it closed. Their transport teardown then runs
// the normal disconnect path.
func (m *Manager) Sweep() int {
	m.mu.RLock()
	now := m.now()
	var stale []*Connection
	for _, c := range m.conns {
		if now.Sub(c.lastSeen) > 2*m.liveness {
			stale = append(stale, c)
		}
	}
	m.mu.RUnlock()
	for _, c := range stale {
		m.log.WithField("conn", c.ID).Info("closing stale connection")
		c.Close(protocol.CloseStale, "heartbeat timeout")
	}
	return len(stale)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Count returns the number of registered connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}
