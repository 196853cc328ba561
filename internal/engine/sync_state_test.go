// internal/engine/sync_state_test.go
package engine

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/qrfun/qrfun-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderFixture() (*models.Room, []*models.Player) {
	now := time.Unix(1_700_000_000, 0).UTC()
	room := models.NewRoom("RENDER", now)
	room.Status = models.StatusPlaying
	room.DrawPile = []models.Card{num(models.ColorRed, 1), num(models.ColorBlue, 2), num(models.ColorGreen, 3)}
	room.DiscardPile = []models.Card{num(models.ColorYellow, 9)}
	room.ActiveSeats = []int{0, 1}
	room.PositionHands = map[int][]models.Card{
		0: {num(models.ColorRed, 4)},
		1: {num(models.ColorBlue, 5), num(models.ColorBlue, 6)},
		2: {num(models.ColorGreen, 7)},
	}

	a := models.NewPlayer(room.ID, "a", now.Add(time.Second))
	a.SitAt(1)
	a.Hand = []models.Card{num(models.ColorBlue, 5), num(models.ColorBlue, 6)}
	b := models.NewPlayer(room.ID, "b", now.Add(2*time.Second))
	b.SitAt(0)
	b.Hand = []models.Card{num(models.ColorRed, 4)}
	watcher := models.NewPlayer(room.ID, "w", now)
	room.HostPlayerID = &b.ID
	return room, []*models.Player{watcher, a, b}
}

func TestRenderIsDeterministic(t *testing.T) {
	room, players := renderFixture()
	now := time.Unix(1_700_000_100, 0)
	online := func(id uuid.UUID) bool { return id == players[1].ID }
	viewer := players[1].ID

	first, err := json.Marshal(RenderRoomState(room, players, nil, &viewer, online, 2, now))
	require.NoError(t, err)
	reversed := []*models.Player{players[2], players[1], players[0]}
	second, err := json.Marshal(RenderRoomState(room, reversed, nil, &viewer, online, 2, now))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestRenderRedactsOtherHands(t *testing.T) {
	room, players := renderFixture()
	a, b := players[1], players[2]
	st := RenderRoomState(room, players, nil, &a.ID, func(uuid.UUID) bool { return true }, 1, time.Now())

	require.Len(t, st.Players, 3)
	assert.Equal(t, b.ID, st.Players[0].ID, "seat 0 first")
	assert.Equal(t, a.ID, st.Players[1].ID)
	assert.Equal(t, "w", st.Players[2].Nickname, "spectators last")

	assert.Equal(t, a.Hand, st.Players[1].Hand)
	assert.Nil(t, st.Players[0].Hand)
	assert.Equal(t, 1, st.Players[0].HandCount)
	assert.True(t, st.Players[0].IsHost)

	assert.Equal(t, 3, st.Room.DrawPileCount)
	assert.Equal(t, map[int]int{0: 1, 1: 2, 2: 1}, st.Room.PositionHands)
	assert.Equal(t, 1, st.ObserverCount)
	assert.NotNil(t, st.Messages)

	raw, err := json.Marshal(st)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "drawPile\"")

	obs := RenderRoomState(room, players, nil, nil, nil, 0, time.Now())
	for _, p := range obs.Players {
		assert.Nil(t, p.Hand)
		assert.False(t, p.IsOnline)
	}
}

func TestRenderHidesBallots(t *testing.T) {
	room, players := renderFixture()
	a, b := players[1], players[2]
	room.HostPlayerID = nil
	room.Election = models.Election{
		Active:         true,
		EligibleVoters: []uuid.UUID{a.ID, b.ID},
		Votes:          map[uuid.UUID]string{a.ID: b.ID.String()},
		Generation:     1,
	}
	ev := RenderRoomState(room, players, nil, nil, nil, 0, time.Now()).Room.Election
	assert.Equal(t, []uuid.UUID{a.ID}, ev.Voted)
	assert.Equal(t, []string{a.ID.String(), b.ID.String(), models.NoHostCandidate}, ev.Candidates)

	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "votes")
}

func TestBroadcastAfterStartShowsOwnHand(t *testing.T) {
	h := newHarness(t, testEngineConfig())
	h.table(1)
	h.start()

	st := h.hub.lastState(t, h.host.ID)
	assert.Equal(t, models.StatusPlaying, st.Room.Status)
	for _, p := range st.Players {
		if p.ID == h.host.ID {
			assert.Len(t, p.Hand, 7)
		} else {
			assert.Nil(t, p.Hand)
			assert.Equal(t, 7, p.HandCount)
		}
		assert.True(t, p.IsOnline)
	}
	assert.NotEmpty(t, st.Messages)
}
