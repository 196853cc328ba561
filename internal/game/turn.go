// internal/game/turn.go
package game

import "github.com/qrfun/qrfun-service/internal/models"

// NextTurnIndex computes whose turn follows current in a ring of playerCount
// seats. finished holds every index that may not take a turn (players who
// emptied their hand, and any seat the caller considers closed or empty).
//
// Two active players collapse skip and reverse into "current plays again".
// Otherwise the turn steps one eligible seat in the (possibly reversed)
// direction, or two when skipping. The result is never a finished index unless
// every index is finished, in which case current is returned unchanged.
func NextTurnIndex(current, playerCount int, dir models.Direction, skip, reverse bool, finished map[int]bool) (int, models.Direction) {
	if reverse {
		dir = dir.Flip()
	}
	if playerCount <= 0 {
		return current, dir
	}

	active := 0
	for i := 0; i < playerCount; i++ {
		if !finished[i] {
			active++
		}
	}
	if active == 0 {
		return current, dir
	}

	inRange := current >= 0 && current < playerCount
	if active == 2 && (skip || reverse) && inRange && !finished[current] {
		return current, dir
	}

	step := 1
	if dir == models.DirectionBackward {
		step = -1
	}
	moves := 1
	if skip {
		moves = 2
	}

	idx := current
	if !inRange {
		idx = 0
	}
	for m := 0; m < moves; m++ {
		for tries := 0; tries < playerCount; tries++ {
			idx = ((idx+step)%playerCount + playerCount) % playerCount
			if !finished[idx] {
				break
			}
		}
	}

	if finished[idx] {
		// Unreachable while active > 0; scan linearly rather than trust the loop.
		for i := 0; i < playerCount; i++ {
			if !finished[i] {
				return i, dir
			}
		}
	}
	return idx, dir
}
