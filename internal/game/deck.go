// internal/game/deck.go
package game

import (
	"errors"
	"math/rand"

	"github.com/qrfun/qrfun-service/internal/models"
)

// DeckSize is the number of cards in a full deck.
const DeckSize = 108

// InitialHandSize is the number of cards dealt to each seat by DealInitial.
const InitialHandSize = 7

// ErrDeckTooSmall is returned when a deal would need more cards than the deck holds.
var ErrDeckTooSmall = errors.New("deck too small for deal")

// NewDeck returns the fixed 108-card composition in a stable, unshuffled order:
// per color one 0, two each of 1-9, two skip, two reverse, two draw two;
// then four wild and four wild draw four.
func NewDeck() []models.Card {
	deck := make([]models.Card, 0, DeckSize)
	for _, color := range models.SuitColors {
		deck = append(deck, models.NumberCard(color, 0))
		for n := 1; n <= 9; n++ {
			deck = append(deck, models.NumberCard(color, n), models.NumberCard(color, n))
		}
		for _, kind := range []models.CardKind{models.KindSkip, models.KindReverse, models.KindDrawTwo} {
			deck = append(deck, models.ActionCard(color, kind), models.ActionCard(color, kind))
		}
	}
	for i := 0; i < 4; i++ {
		deck = append(deck, models.WildCard(models.KindWild), models.WildCard(models.KindWildDrawFour))
	}
	return deck
}

// BuildDeck returns a freshly shuffled full deck.
func BuildDeck() []models.Card {
	deck := NewDeck()
	Shuffle(deck)
	return deck
}

// Shuffle permutes cards in place with a single Fisher-Yates pass.
func Shuffle(cards []models.Card) {
	rand.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
}

// DealInitial deals InitialHandSize cards to each of playerCount hands.
func DealInitial(deck []models.Card, playerCount int) ([][]models.Card, []models.Card, error) {
	return DealHands(deck, playerCount, InitialHandSize)
}

// DealHands deals handSize cards round-robin to playerCount hands and returns
// the hands plus the undealt remainder. The input slice is not modified.
func DealHands(deck []models.Card, playerCount, handSize int) ([][]models.Card, []models.Card, error) {
	if playerCount < 0 || handSize < 0 {
		return nil, nil, errors.New("negative deal size")
	}
	need := playerCount * handSize
	if need > len(deck) {
		return nil, nil, ErrDeckTooSmall
	}
	hands := make([][]models.Card, playerCount)
	for i := range hands {
		hands[i] = make([]models.Card, 0, handSize)
	}
	for i := 0; i < need; i++ {
		seat := i % playerCount
		hands[seat] = append(hands[seat], deck[i])
	}
	rest := models.CloneCards(deck[need:])
	return hands, rest, nil
}

// FirstDiscard removes the first number card from deck and returns it with the
// remaining cards. ok is false when the deck holds no number card at all.
func FirstDiscard(deck []models.Card) (card models.Card, rest []models.Card, ok bool) {
	for i, c := range deck {
		if c.Kind != models.KindNumber {
			continue
		}
		rest = make([]models.Card, 0, len(deck)-1)
		rest = append(rest, deck[:i]...)
		rest = append(rest, deck[i+1:]...)
		return c, rest, true
	}
	return models.Card{}, deck, false
}

// Reshuffle moves everything but the top discard into a shuffled draw pile
// appended after any cards still in drawPile. discardPile is most-recent-first.
func Reshuffle(drawPile, discardPile []models.Card) (newDraw, newDiscard []models.Card) {
	if len(discardPile) <= 1 {
		return drawPile, discardPile
	}
	recycled := models.CloneCards(discardPile[1:])
	Shuffle(recycled)
	newDraw = append(append([]models.Card{}, drawPile...), recycled...)
	newDiscard = []models.Card{discardPile[0]}
	return newDraw, newDiscard
}

// DrawCards takes up to n cards from the top of drawPile, reshuffling the
// discard pile once if the draw pile runs dry. It returns the drawn cards and
// the updated piles; len(drawn) < n only when both piles are exhausted.
func DrawCards(n int, drawPile, discardPile []models.Card) (drawn, newDraw, newDiscard []models.Card, reshuffled bool) {
	newDraw, newDiscard = drawPile, discardPile
	for len(drawn) < n {
		if len(newDraw) == 0 {
			if reshuffled || len(newDiscard) <= 1 {
				break
			}
			newDraw, newDiscard = Reshuffle(newDraw, newDiscard)
			reshuffled = true
			continue
		}
		drawn = append(drawn, newDraw[0])
		newDraw = newDraw[1:]
	}
	return drawn, newDraw, newDiscard, reshuffled
}
