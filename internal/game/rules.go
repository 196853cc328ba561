// internal/game/rules.go
package game

import "github.com/qrfun/qrfun-service/internal/models"

// Effect describes what happens to the turn order after a card is played.
type Effect struct {
	SkipsNext           bool `json:"skipsNext"`
	Reverses            bool `json:"reverses"`
	DrawAmount          int  `json:"drawAmount"`
	RequiresColorChoice bool `json:"requiresColorChoice"`
}

// EffectOf returns the effect of playing card.
func EffectOf(card models.Card) Effect {
	switch card.Kind {
	case models.KindSkip:
		return Effect{SkipsNext: true}
	case models.KindReverse:
		return Effect{Reverses: true}
	case models.KindDrawTwo:
		return Effect{SkipsNext: true, DrawAmount: 2}
	case models.KindWild:
		return Effect{RequiresColorChoice: true}
	case models.KindWildDrawFour:
		return Effect{SkipsNext: true, DrawAmount: 4, RequiresColorChoice: true}
	}
	return Effect{}
}

// CanPlay reports whether card may be played on top of top.
//
// While pendingDraw > 0 only a stacking answer is legal: a draw two on a draw
// two, or a wild draw four on either. A draw two never answers a wild draw four.
// activeColor may be nil while a color choice is outstanding, in which case no
// colored card matches on color.
func CanPlay(card, top models.Card, activeColor *models.Color, pendingDraw int) bool {
	if pendingDraw > 0 {
		switch card.Kind {
		case models.KindDrawTwo:
			return top.Kind == models.KindDrawTwo
		case models.KindWildDrawFour:
			return top.Kind == models.KindDrawTwo || top.Kind == models.KindWildDrawFour
		default:
			return false
		}
	}

	if card.IsWild() {
		return true
	}
	if activeColor != nil && card.Color == *activeColor {
		return true
	}
	if !top.IsWild() && card.Color == top.Color {
		return true
	}
	if card.Kind != models.KindNumber {
		return card.Kind == top.Kind
	}
	return top.Kind == models.KindNumber && card.Value() == top.Value()
}

// HasPlayableCard reports whether any card in hand is legal against top.
func HasPlayableCard(hand []models.Card, top models.Card, activeColor *models.Color, pendingDraw int) bool {
	for _, c := range hand {
		if CanPlay(c, top, activeColor, pendingDraw) {
			return true
		}
	}
	return false
}
