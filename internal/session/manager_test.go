// internal/session/manager_test.go
package session

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/qrfun/qrfun-service/internal/models"
	"github.com/qrfun/qrfun-service/internal/protocol"
	"github.com/qrfun/qrfun-service/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closeRecord struct {
	mu    sync.Mutex
	codes []int
}

func (r *closeRecord) fn(code int, _ string) {
	r.mu.Lock()
	r.codes = append(r.codes, code)
	r.mu.Unlock()
}

func (r *closeRecord) get() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.codes...)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fixture struct {
	store  *store.MemoryStore
	mgr    *Manager
	room   *models.Room
	player *models.Player
	clock  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{store: store.NewMemoryStore(), clock: time.Unix(1_700_000_000, 0)}
	f.mgr = NewManager(f.store, 20*time.Second, quietLogger())
	f.mgr.SetClock(func() time.Time { return f.clock })

	f.room = models.NewRoom("SESS01", f.clock)
	require.NoError(t, f.store.CreateRoom(ctx, f.room))
	f.player = models.NewPlayer(f.room.ID, "alice", f.clock)
	require.NoError(t, f.store.CreatePlayer(ctx, f.player))
	return f
}

func drain(c *Connection) [][]byte {
	var out [][]byte
	for {
		select {
		case b := <-c.Out:
			out = append(out, b)
		default:
			return out
		}
	}
}

func TestJoinValidatesAgainstStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.mgr.Register("", "", "test", nil)

	_, err := f.mgr.Join(ctx, c, f.player.ID, uuid.New())
	assert.ErrorIs(t, err, ErrRoomNotFound)

	_, err = f.mgr.Join(ctx, c, uuid.New(), f.room.ID)
	assert.ErrorIs(t, err, ErrPlayerNotInRoom)

	other := models.NewRoom("SESS02", f.clock)
	require.NoError(t, f.store.CreateRoom(ctx, other))
	_, err = f.mgr.Join(ctx, c, f.player.ID, other.ID)
	assert.ErrorIs(t, err, ErrPlayerNotInRoom)

	_, err = f.mgr.Join(ctx, c, f.player.ID, f.room.ID)
	require.NoError(t, err)
	pid, rid, observer := f.mgr.Binding(c)
	require.NotNil(t, pid)
	assert.Equal(t, f.player.ID, *pid)
	assert.Equal(t, f.room.ID, *rid)
	assert.False(t, observer)
}

func TestJoinEvictsSameFingerprint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var oldClose, newClose, otherClose closeRecord
	old := f.mgr.Register("device-a", "", "test", oldClose.fn)
	other := f.mgr.Register("device-b", "", "test", otherClose.fn)
	_, err := f.mgr.Join(ctx, old, f.player.ID, f.room.ID)
	require.NoError(t, err)
	_, err = f.mgr.Join(ctx, other, f.player.ID, f.room.ID)
	require.NoError(t, err)

	fresh := f.mgr.Register("device-a", "", "test", newClose.fn)
	_, err = f.mgr.Join(ctx, fresh, f.player.ID, f.room.ID)
	require.NoError(t, err)

	assert.Equal(t, []int{protocol.CloseSessionReplaced}, oldClose.get())
	assert.Empty(t, newClose.get())
	assert.Empty(t, otherClose.get(), "a different device keeps its connection")

	pid, _, _ := f.mgr.Binding(old)
	assert.Nil(t, pid)
	assert.True(t, f.mgr.HasConnection(f.player.ID))

	frames := drain(old)
	require.NotEmpty(t, frames)
	assert.Contains(t, string(frames[0]), string(protocol.EventSessionReplaced))
}

func TestEmptyFingerprintNeverEvicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var rec closeRecord
	a := f.mgr.Register("", "", "test", rec.fn)
	b := f.mgr.Register("", "", "test", rec.fn)
	_, err := f.mgr.Join(ctx, a, f.player.ID, f.room.ID)
	require.NoError(t, err)
	_, err = f.mgr.Join(ctx, b, f.player.ID, f.room.ID)
	require.NoError(t, err)
	assert.Empty(t, rec.get())
}

func TestLivenessAndSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var rec closeRecord
	c := f.mgr.Register("", "", "test", rec.fn)
	_, err := f.mgr.Join(ctx, c, f.player.ID, f.room.ID)
	require.NoError(t, err)
	assert.True(t, f.mgr.IsOnline(f.player.ID))

	f.clock = f.clock.Add(25 * time.Second)
	assert.False(t, f.mgr.IsOnline(f.player.ID), "silent past the liveness window")
	assert.True(t, f.mgr.HasConnection(f.player.ID))
	assert.Zero(t, f.mgr.Sweep())

	f.mgr.Touch(c)
	assert.True(t, f.mgr.IsOnline(f.player.ID))

	f.clock = f.clock.Add(41 * time.Second)
	assert.Equal(t, 1, f.mgr.Sweep())
	assert.Equal(t, []int{protocol.CloseStale}, rec.get())
}

func TestBroadcastRendersPerViewer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bob := models.NewPlayer(f.room.ID, "bob", f.clock)
	require.NoError(t, f.store.CreatePlayer(ctx, bob))

	a1 := f.mgr.Register("", "", "test", nil)
	a2 := f.mgr.Register("", "", "test", nil)
	b := f.mgr.Register("", "", "test", nil)
	obs := f.mgr.Register("", "", "test", nil)
	_, err := f.mgr.Join(ctx, a1, f.player.ID, f.room.ID)
	require.NoError(t, err)
	_, err = f.mgr.Join(ctx, a2, f.player.ID, f.room.ID)
	require.NoError(t, err)
	_, err = f.mgr.Join(ctx, b, bob.ID, f.room.ID)
	require.NoError(t, err)
	_, err = f.mgr.Subscribe(ctx, obs, f.room.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.mgr.ObserverCount(f.room.ID))

	renders := 0
	f.mgr.BroadcastRoom(f.room.ID, func(viewer *uuid.UUID) ([]byte, error) {
		renders++
		if viewer == nil {
			return []byte("observer"), nil
		}
		return []byte(viewer.String()), nil
	})

	assert.Equal(t, 3, renders, "one render per distinct viewer")
	assert.Equal(t, [][]byte{[]byte(f.player.ID.String())}, drain(a1))
	assert.Equal(t, [][]byte{[]byte(f.player.ID.String())}, drain(a2))
	assert.Equal(t, [][]byte{[]byte(bob.ID.String())}, drain(b))
	assert.Equal(t, [][]byte{[]byte("observer")}, drain(obs))
}

func TestUnregisterReportsBinding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.mgr.Register("", "", "test", nil)
	assert.False(t, f.mgr.Unregister(f.mgr.Register("", "", "test", nil)).Bound)

	_, err := f.mgr.Join(ctx, c, f.player.ID, f.room.ID)
	require.NoError(t, err)
	b := f.mgr.Unregister(c)
	assert.True(t, b.Bound)
	assert.Equal(t, f.player.ID, b.PlayerID)
	assert.False(t, f.mgr.HasConnection(f.player.ID))
	assert.Zero(t, f.mgr.Count())
}

func TestDisconnectPlayerUnbindsBeforeClosing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var rec closeRecord
	c := f.mgr.Register("", "", "test", rec.fn)
	_, err := f.mgr.Join(ctx, c, f.player.ID, f.room.ID)
	require.NoError(t, err)

	f.mgr.DisconnectPlayer(f.player.ID, protocol.CloseKicked, "kicked")
	assert.Equal(t, []int{protocol.CloseKicked}, rec.get())
	assert.False(t, f.mgr.Unregister(c).Bound)
}

func TestSendKeepsNewestWhenFull(t *testing.T) {
	f := newFixture(t)
	c := f.mgr.Register("", "", "test", nil)
	for i := 0; i < outBuffer+5; i++ {
		assert.True(t, c.Send([]byte{byte(i)}))
	}
	frames := drain(c)
	require.Len(t, frames, outBuffer)
	assert.Equal(t, []byte{byte(outBuffer + 4)}, frames[len(frames)-1])

	c.Close(1000, "bye")
	assert.False(t, c.Send([]byte("late")))
}
