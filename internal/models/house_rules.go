// internal/models/house_rules.go
package models

import "fmt"

// HouseRules captures the per-room rule toggles the host may change before a round starts.
type HouseRules struct {
	// StackDraws allows answering a pending draw penalty with another draw card.
	StackDraws bool `json:"stackDraws"`

	// ClaimPenalty is the number of cards drawn for a missed or false "one card left" claim.
	ClaimPenalty int `json:"claimPenalty"`

	// HandSize is how many cards each seat is dealt at the start of a round.
	HandSize int `json:"handSize"`
}

// DefaultHouseRules returns the rules a fresh room starts with.
func DefaultHouseRules() HouseRules {
	return HouseRules{
		StackDraws:   true,
		ClaimPenalty: 2,
		HandSize:     7,
	}
}

// Update applies the keys present in newRules, leaving absent keys untouched.
// Values arrive from decoded JSON, so numbers may be float64.
func (r *HouseRules) Update(newRules map[string]interface{}) error {
	next := *r

	assignBool := func(field *bool, key string) error {
		val, exists := newRules[key]
		if !exists || val == nil {
			return nil
		}
		b, ok := val.(bool)
		if !ok {
			return fmt.Errorf("invalid type for %s", key)
		}
		*field = b
		return nil
	}

	assignInt := func(field *int, key string, minVal, maxVal int) error {
		val, exists := newRules[key]
		if !exists || val == nil {
			return nil
		}
		var n int
		switch v := val.(type) {
		case float64:
			n = int(v)
		case int:
			n = v
		default:
			return fmt.Errorf("invalid type for %s", key)
		}
		if n < minVal || n > maxVal {
			return fmt.Errorf("%s must be between %d and %d", key, minVal, maxVal)
		}
		*field = n
		return nil
	}

	if err := assignBool(&next.StackDraws, "stackDraws"); err != nil {
		return err
	}
	if err := assignInt(&next.ClaimPenalty, "claimPenalty", 0, 4); err != nil {
		return err
	}
	// 4 seats * 10 cards still leaves a live draw pile out of 108.
	if err := assignInt(&next.HandSize, "handSize", 5, 10); err != nil {
		return err
	}

	*r = next
	return nil
}
