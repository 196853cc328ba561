// internal/models/card.go
package models

import (
	"fmt"
	"strconv"
)

// CardKind identifies what a card does when played.
type CardKind string

const (
	KindNumber       CardKind = "number"
	KindSkip         CardKind = "skip"
	KindReverse      CardKind = "reverse"
	KindDrawTwo      CardKind = "draw_two"
	KindWild         CardKind = "wild"
	KindWildDrawFour CardKind = "wild_draw_four"
)

// Color is one of the four suit colors, or ColorWild for wild cards.
type Color string

const (
	ColorRed    Color = "red"
	ColorYellow Color = "yellow"
	ColorGreen  Color = "green"
	ColorBlue   Color = "blue"
	ColorWild   Color = "wild"
)

// SuitColors lists the four playable colors in deck order.
var SuitColors = []Color{ColorRed, ColorYellow, ColorGreen, ColorBlue}

// Valid reports whether c names one of the four suit colors. Wild is not a valid choice.
func (c Color) Valid() bool {
	switch c {
	case ColorRed, ColorYellow, ColorGreen, ColorBlue:
		return true
	}
	return false
}

// Card is an immutable card value. Two cards with the same fields are interchangeable.
type Card struct {
	Kind   CardKind `json:"kind"`
	Color  Color    `json:"color"`
	Number *int     `json:"number,omitempty"` // only set for KindNumber
}

// NumberCard builds a number card of the given color and face value.
func NumberCard(color Color, n int) Card {
	return Card{Kind: KindNumber, Color: color, Number: &n}
}

// ActionCard builds a colored non-number card (skip, reverse, draw two).
func ActionCard(color Color, kind CardKind) Card {
	return Card{Kind: kind, Color: color}
}

// WildCard builds a wild or wild draw four.
func WildCard(kind CardKind) Card {
	return Card{Kind: kind, Color: ColorWild}
}

// IsWild reports whether the card needs a color choice when played.
func (c Card) IsWild() bool {
	return c.Kind == KindWild || c.Kind == KindWildDrawFour
}

// Value returns the face value of a number card, or -1 for any other kind.
func (c Card) Value() int {
	if c.Kind != KindNumber || c.Number == nil {
		return -1
	}
	return *c.Number
}

// Equal compares two cards by value.
func (c Card) Equal(o Card) bool {
	return c.Kind == o.Kind && c.Color == o.Color && c.Value() == o.Value()
}

// String renders a compact key such as "red:number:7" or "wild:wild_draw_four".
// It doubles as a multiset key in tests and logs.
func (c Card) String() string {
	if c.Kind == KindNumber {
		return fmt.Sprintf("%s:%s:%s", c.Color, c.Kind, strconv.Itoa(c.Value()))
	}
	return fmt.Sprintf("%s:%s", c.Color, c.Kind)
}

// CloneCards copies a slice of cards so callers can mutate the result freely.
func CloneCards(cards []Card) []Card {
	if cards == nil {
		return nil
	}
	out := make([]Card, len(cards))
	for i, c := range cards {
		if c.Number != nil {
			n := *c.Number
			c.Number = &n
		}
		out[i] = c
	}
	return out
}
