// internal/engine/seats_test.go
package engine

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/qrfun/qrfun-service/internal/game"
	"github.com/qrfun/qrfun-service/internal/models"
	"github.com/qrfun/qrfun-service/internal/protocol"
	"github.com/qrfun/qrfun-service/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVacatedSeatRestoredFromReserve(t *testing.T) {
	h := newHarness(t, testEngineConfig())
	h.table(1, 2)
	sub := h.spectator("sub")
	h.start()

	kicked := h.seats[2]
	snapshot := h.getPlayer(kicked.ID).Hand
	require.Len(t, snapshot, game.InitialHandSize)

	h.do(h.host.ID, protocol.KickPlayer{TargetPlayerID: kicked.ID})
	r := h.getRoom()
	assert.Equal(t, models.StatusPaused, r.Status)
	assert.Equal(t, snapshot, r.PositionHands[2])
	gone := h.getPlayer(kicked.ID)
	assert.True(t, gone.HasLeft)
	assert.Nil(t, gone.Seat)
	assert.Empty(t, gone.Hand)
	assert.Equal(t, protocol.CloseKicked, h.hub.disconnected[kicked.ID])
	assert.Equal(t, game.DeckSize, h.cardTotal())

	seat := 2
	h.do(h.host.ID, protocol.AssignSeat{PlayerID: sub.ID, Seat: &seat})
	got := h.getPlayer(sub.ID)
	require.NotNil(t, got.Seat)
	assert.Equal(t, 2, *got.Seat)
	assert.False(t, got.IsSpectator)
	assert.Equal(t, snapshot, got.Hand)

	h.do(h.host.ID, protocol.ResumeGame{})
	assert.Equal(t, models.StatusPlaying, h.getRoom().Status)
	assert.Equal(t, game.DeckSize, h.cardTotal())
}

func TestAssignSeatValidation(t *testing.T) {
	h := newHarness(t, testEngineConfig())
	h.table(1)
	watcher := h.spectator("watcher")

	taken := 1
	assert.ErrorIs(t, h.try(h.host.ID, protocol.AssignSeat{PlayerID: watcher.ID, Seat: &taken}), ErrSeatUnavailable)
	assert.ErrorIs(t, h.try(h.seats[1].ID, protocol.AssignSeat{PlayerID: watcher.ID, Seat: nil}), ErrNotHost)
	assert.ErrorIs(t, h.try(h.host.ID, protocol.AssignSeat{PlayerID: uuid.New(), Seat: nil}), ErrUnknownPlayer)
	bad := 7
	assert.ErrorIs(t, h.try(h.host.ID, protocol.AssignSeat{PlayerID: watcher.ID, Seat: &bad}), ErrSeatUnavailable)

	h.start()
	closed := 3
	assert.ErrorIs(t, h.try(h.host.ID, protocol.AssignSeat{PlayerID: watcher.ID, Seat: &closed}), ErrSeatUnavailable)

	h.do(h.host.ID, protocol.AssignSeat{PlayerID: h.seats[1].ID, Seat: nil})
	r := h.getRoom()
	assert.Equal(t, models.StatusPaused, r.Status)
	assert.Len(t, r.PositionHands[1], game.InitialHandSize)
	assert.True(t, h.getPlayer(h.seats[1].ID).IsSpectator)
}

func TestAssignSeatReplacesOccupant(t *testing.T) {
	h := newHarness(t, testEngineConfig())
	h.table(1)
	sub := h.spectator("sub")
	h.start()
	occupantHand := h.getPlayer(h.seats[1].ID).Hand

	seat := 1
	h.do(h.host.ID, protocol.AssignSeat{PlayerID: sub.ID, Seat: &seat})
	assert.Equal(t, occupantHand, h.getPlayer(sub.ID).Hand)
	old := h.getPlayer(h.seats[1].ID)
	assert.Nil(t, old.Seat)
	assert.Empty(t, old.Hand)
	assert.Equal(t, models.StatusPlaying, h.getRoom().Status, "the seat never emptied")
	assert.Equal(t, game.DeckSize, h.cardTotal())
}

func TestDisconnectPausesUntilResumed(t *testing.T) {
	h := newHarness(t, testEngineConfig())
	h.table(1)
	h.start()
	p1 := h.seats[1]
	hand := h.getPlayer(p1.ID).Hand

	h.hub.drop(p1.ID)
	require.NoError(t, h.e.PlayerDisconnected(h.ctx, p1.ID, h.room.ID))
	r := h.getRoom()
	assert.Equal(t, models.StatusPaused, r.Status)
	assert.Equal(t, hand, r.PositionHands[1])
	assert.ErrorIs(t, h.try(h.host.ID, protocol.DrawCard{}), ErrWrongStatus)

	h.hub.connect(p1.ID)
	require.NoError(t, h.e.PlayerJoined(h.ctx, p1.ID, h.room.ID))
	assert.Equal(t, models.StatusPaused, h.getRoom().Status, "reconnecting does not resume by itself")
	assert.ErrorIs(t, h.try(p1.ID, protocol.ResumeGame{}), ErrNotHost)

	h.do(h.host.ID, protocol.ResumeGame{})
	assert.Equal(t, models.StatusPlaying, h.getRoom().Status)
	assert.ErrorIs(t, h.try(h.host.ID, protocol.ResumeGame{}), ErrWrongStatus)
}

func TestDisconnectIgnoredWhileAnotherConnectionLives(t *testing.T) {
	h := newHarness(t, testEngineConfig())
	h.table(1)
	h.start()
	require.NoError(t, h.e.PlayerDisconnected(h.ctx, h.seats[1].ID, h.room.ID))
	assert.Equal(t, models.StatusPlaying, h.getRoom().Status)
}

func TestResumeNeedsTwoContenders(t *testing.T) {
	h := newHarness(t, testEngineConfig())
	h.table(1)
	h.start()
	h.do(h.seats[1].ID, protocol.ExitGame{})
	assert.Equal(t, models.StatusPaused, h.getRoom().Status)
	assert.ErrorIs(t, h.try(h.host.ID, protocol.ResumeGame{}), ErrNotEnoughPlayers)
}

func TestResumeMovesTurnOffEmptySeat(t *testing.T) {
	h := newHarness(t, testEngineConfig())
	h.table(1, 2)
	h.start()
	h.rig(func(r *models.Room, _ map[int]*models.Player) { r.TurnIndex = 1 })

	h.do(h.seats[1].ID, protocol.ExitGame{})
	h.do(h.host.ID, protocol.ResumeGame{})
	r := h.getRoom()
	assert.Equal(t, models.StatusPlaying, r.Status)
	assert.Equal(t, 2, r.TurnIndex)
}

func TestDisconnectedSeatHandGoesToNewOccupant(t *testing.T) {
	h := newHarness(t, testEngineConfig())
	h.table(1, 2)
	sub := h.spectator("sub")
	h.start()

	gone := h.seats[2]
	snapshot := h.getPlayer(gone.ID).Hand
	h.hub.drop(gone.ID)
	require.NoError(t, h.e.PlayerDisconnected(h.ctx, gone.ID, h.room.ID))
	r := h.getRoom()
	assert.Equal(t, models.StatusPaused, r.Status)
	assert.Equal(t, snapshot, r.PositionHands[2])

	seat := 2
	h.do(h.host.ID, protocol.AssignSeat{PlayerID: sub.ID, Seat: &seat})
	got := h.getPlayer(sub.ID)
	require.NotNil(t, got.Seat)
	assert.Equal(t, 2, *got.Seat)
	assert.Equal(t, snapshot, got.Hand)
	assert.Nil(t, h.getPlayer(gone.ID).Seat)
	assert.Equal(t, game.DeckSize, h.cardTotal())
}

func TestKickedPlayerCannotRejoin(t *testing.T) {
	h := newHarness(t, testEngineConfig())
	h.table(1)
	p1 := h.seats[1]
	h.do(h.host.ID, protocol.KickPlayer{TargetPlayerID: p1.ID})
	assert.True(t, h.getPlayer(p1.ID).Kicked)

	assert.ErrorIs(t, h.e.PlayerJoined(h.ctx, p1.ID, h.room.ID), ErrKicked)
	back := h.getPlayer(p1.ID)
	assert.True(t, back.HasLeft)
	assert.Nil(t, back.Seat)
}

func TestHostCannotBeKicked(t *testing.T) {
	h := newHarness(t, testEngineConfig())
	h.table(1)
	assert.ErrorIs(t, h.try(h.host.ID, protocol.KickPlayer{TargetPlayerID: h.host.ID}), ErrIllegalMove)
	assert.ErrorIs(t, h.try(h.seats[1].ID, protocol.KickPlayer{TargetPlayerID: h.host.ID}), ErrNotHost)
}

func TestLeaversRejoinAsSpectators(t *testing.T) {
	h := newHarness(t, testEngineConfig())
	h.table(1)
	p1 := h.seats[1]
	h.do(p1.ID, protocol.ExitGame{})
	assert.True(t, h.getPlayer(p1.ID).HasLeft)

	require.NoError(t, h.e.PlayerJoined(h.ctx, p1.ID, h.room.ID))
	back := h.getPlayer(p1.ID)
	assert.False(t, back.HasLeft)
	assert.Nil(t, back.Seat)
	assert.True(t, back.IsSpectator)
}

func TestAbandonedRoomIsDeleted(t *testing.T) {
	h := newHarness(t, testEngineConfig())
	h.table(1)
	h.do(h.seats[1].ID, protocol.ExitGame{})
	h.do(h.host.ID, protocol.ExitGame{})

	_, err := h.store.GetRoom(h.ctx, h.room.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, h.e.Sync(h.ctx, h.room.ID), ErrRoomNotFound)
}

func TestGhostPlayersReapedOnJoin(t *testing.T) {
	h := newHarness(t, testEngineConfig())
	h.table(1)
	ghost := h.spectator("ghost")
	h.hub.drop(ghost.ID)

	fresh := h.spectator("Ghost")
	_, err := h.store.GetPlayer(h.ctx, ghost.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, "Ghost", h.getPlayer(fresh.ID).Nickname)

	online := h.spectator("twin")
	h.spectator("twin")
	_, err = h.store.GetPlayer(h.ctx, online.ID)
	assert.NoError(t, err, "connected players are never reaped")
}

func TestJoinerTakesVacantHostRole(t *testing.T) {
	h := newHarness(t, testEngineConfig())
	h.table(1)
	h.rig(func(r *models.Room, _ map[int]*models.Player) { r.HostPlayerID = nil })

	p := h.spectator("newcomer")
	assert.True(t, h.getRoom().IsHost(p.ID))
}

func TestHeadlessPlayAgainSpawnsRoom(t *testing.T) {
	h := newHarness(t, testEngineConfig())
	h.e.SetTokenIssuer(func(playerID, roomID uuid.UUID) (string, error) { return "tok-" + playerID.String(), nil })
	h.table(1)
	h.start()
	h.rig(func(r *models.Room, seats map[int]*models.Player) {
		r.HostPlayerID = nil
		r.Headless = true
		r.DiscardPile = []models.Card{num(models.ColorRed, 3)}
		r.ActiveColor = color(models.ColorRed)
		r.TurnIndex = 0
		seats[0].Hand = []models.Card{num(models.ColorRed, 5)}
	})
	h.do(h.host.ID, protocol.PlayCard{CardIndex: 0})
	require.Equal(t, models.StatusFinished, h.getRoom().Status)

	p1 := h.seats[1]
	h.do(p1.ID, protocol.PlayAgain{})
	r := h.getRoom()
	require.NotNil(t, r.NextRoomID)

	next, err := h.store.GetRoom(h.ctx, *r.NextRoomID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, next.Status)
	require.NotNil(t, next.HostPlayerID)
	newHost := h.getPlayer(*next.HostPlayerID)
	assert.Equal(t, p1.Nickname, newHost.Nickname)
	assert.Equal(t, 0, *newHost.Seat)

	events := h.hub.eventsOf(t, protocol.EventRoomSpawned)
	require.Len(t, events, 1)
	var ev RoomSpawned
	require.NoError(t, json.Unmarshal(events[0], &ev))
	assert.Equal(t, next.Code, ev.Code)
	assert.Empty(t, ev.Token)
	require.Len(t, h.hub.private[p1.ID], 1)
	assert.Contains(t, string(h.hub.private[p1.ID][0]), "tok-"+newHost.ID.String())

	assert.ErrorIs(t, h.try(p1.ID, protocol.PlayAgain{}), ErrIllegalMove)
}

func TestChatMessages(t *testing.T) {
	h := newHarness(t, testEngineConfig())
	h.table(1)
	h.do(h.seats[1].ID, protocol.SendMessage{Kind: models.MessageEmoji, Text: " :) "})
	assert.ErrorIs(t, h.try(h.host.ID, protocol.SendMessage{Text: "   "}), ErrInvalidMessage)
	assert.ErrorIs(t, h.try(h.host.ID, protocol.SendMessage{Kind: models.MessageSystem, Text: "fake"}), ErrInvalidMessage)
	long := make([]rune, maxMessageLength+1)
	for i := range long {
		long[i] = 'x'
	}
	assert.ErrorIs(t, h.try(h.host.ID, protocol.SendMessage{Text: string(long)}), ErrInvalidMessage)

	st := h.hub.lastState(t, h.host.ID)
	last := st.Messages[len(st.Messages)-1]
	assert.Equal(t, models.MessageEmoji, last.Kind)
	assert.Equal(t, ":)", last.Text)
	assert.Equal(t, "p1", last.Nickname)
}

func TestActionsArePublished(t *testing.T) {
	h := newHarness(t, testEngineConfig())
	rec := &recordingLog{}
	h.e.SetActionLog(rec)
	h.table(1)
	h.start()

	require.Eventually(t, func() bool { return rec.len() >= 4 }, time.Second, 5*time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	seen := make(map[int]bool)
	for _, r := range rec.records {
		assert.Equal(t, h.room.ID, r.RoomID)
		assert.False(t, seen[r.ActionIndex], "action index %d repeated", r.ActionIndex)
		seen[r.ActionIndex] = true
	}
}
