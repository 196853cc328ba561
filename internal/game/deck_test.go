// internal/game/deck_test.go
package game

import (
	"testing"

	"github.com/qrfun/qrfun-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// multiset counts cards by their string key.
func multiset(cards ...[]models.Card) map[string]int {
	m := make(map[string]int)
	for _, pile := range cards {
		for _, c := range pile {
			m[c.String()]++
		}
	}
	return m
}

func TestNewDeckComposition(t *testing.T) {
	deck := NewDeck()
	require.Len(t, deck, DeckSize)

	counts := multiset(deck)
	for _, color := range models.SuitColors {
		assert.Equal(t, 1, counts[models.NumberCard(color, 0).String()], "one zero per color")
		for n := 1; n <= 9; n++ {
			assert.Equal(t, 2, counts[models.NumberCard(color, n).String()], "two of each 1-9 per color")
		}
		assert.Equal(t, 2, counts[models.ActionCard(color, models.KindSkip).String()])
		assert.Equal(t, 2, counts[models.ActionCard(color, models.KindReverse).String()])
		assert.Equal(t, 2, counts[models.ActionCard(color, models.KindDrawTwo).String()])
	}
	assert.Equal(t, 4, counts[models.WildCard(models.KindWild).String()])
	assert.Equal(t, 4, counts[models.WildCard(models.KindWildDrawFour).String()])
}

func TestBuildDeckIsPermutation(t *testing.T) {
	want := multiset(NewDeck())
	for i := 0; i < 50; i++ {
		deck := BuildDeck()
		require.Len(t, deck, DeckSize)
		assert.Equal(t, want, multiset(deck))
	}
}

func TestDealInitialConservesCards(t *testing.T) {
	for n := 1; n <= 4; n++ {
		deck := BuildDeck()
		hands, rest, err := DealInitial(deck, n)
		require.NoError(t, err)
		require.Len(t, hands, n)
		for _, h := range hands {
			assert.Len(t, h, InitialHandSize)
		}
		assert.Len(t, rest, DeckSize-InitialHandSize*n)
		assert.Equal(t, multiset(deck), multiset(append(hands, rest)...))
	}
}

func TestDealInitialRoundRobin(t *testing.T) {
	deck := NewDeck()
	hands, _, err := DealInitial(deck, 2)
	require.NoError(t, err)
	assert.True(t, hands[0][0].Equal(deck[0]))
	assert.True(t, hands[1][0].Equal(deck[1]))
	assert.True(t, hands[0][1].Equal(deck[2]))
}

func TestDealInitialDeckTooSmall(t *testing.T) {
	_, _, err := DealInitial(NewDeck()[:13], 2)
	assert.ErrorIs(t, err, ErrDeckTooSmall)
}

func TestFirstDiscardSkipsActionCards(t *testing.T) {
	deck := []models.Card{
		models.WildCard(models.KindWildDrawFour),
		models.ActionCard(models.ColorRed, models.KindSkip),
		models.NumberCard(models.ColorBlue, 5),
		models.NumberCard(models.ColorRed, 1),
	}
	card, rest, ok := FirstDiscard(deck)
	require.True(t, ok)
	assert.True(t, card.Equal(models.NumberCard(models.ColorBlue, 5)))
	require.Len(t, rest, 3)
	assert.Equal(t, models.KindWildDrawFour, rest[0].Kind)
	assert.Equal(t, models.KindSkip, rest[1].Kind)

	_, _, ok = FirstDiscard([]models.Card{models.WildCard(models.KindWild)})
	assert.False(t, ok)
}

func TestReshuffleKeepsTopDiscard(t *testing.T) {
	top := models.NumberCard(models.ColorGreen, 3)
	discard := []models.Card{top, models.NumberCard(models.ColorRed, 1), models.WildCard(models.KindWild)}

	draw, newDiscard := Reshuffle(nil, discard)
	require.Len(t, newDiscard, 1)
	assert.True(t, newDiscard[0].Equal(top))
	assert.Len(t, draw, 2)
	assert.Equal(t, multiset(discard), multiset(draw, newDiscard))
}

func TestDrawCardsRefillsFromDiscard(t *testing.T) {
	draw := []models.Card{models.NumberCard(models.ColorRed, 9)}
	discard := []models.Card{
		models.NumberCard(models.ColorGreen, 3),
		models.NumberCard(models.ColorBlue, 4),
		models.NumberCard(models.ColorBlue, 6),
	}

	drawn, newDraw, newDiscard, reshuffled := DrawCards(3, draw, discard)
	assert.True(t, reshuffled)
	assert.Len(t, drawn, 3)
	assert.Empty(t, newDraw)
	require.Len(t, newDiscard, 1)
	assert.True(t, newDiscard[0].Equal(models.NumberCard(models.ColorGreen, 3)))

	// Nothing left anywhere: a short draw, not a panic.
	drawn, _, _, _ = DrawCards(2, nil, newDiscard)
	assert.Empty(t, drawn)
}
