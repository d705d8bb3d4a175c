// Package feeding decides whether and how much food to dispense and drives
// the dispenser for both manual and scheduled feedings.
package feeding

import (
	"math"

	"snackloader/internal/heatindex"
	"snackloader/internal/model"
)

// DeadZoneGrams is the smallest weather adjustment worth applying.
const DeadZoneGrams = 5

// AdaptAmount scales a requested portion by the heat-stress band of the
// current environment. The requested amount is returned unchanged when
// adaptation is disabled, readings are unavailable, or the adjustment is
// smaller than DeadZoneGrams. In the danger band it returns 0.
func AdaptAmount(requested int, enabled bool, env model.Environment) int {
	if !enabled {
		return requested
	}
	thi, ok := heatindex.Index(env)
	if !ok {
		return requested
	}

	band := heatindex.Classify(thi)
	if band == heatindex.BandDanger {
		return 0
	}

	adapted := int(math.Round(float64(requested) * band.Multiplier()))
	if abs(adapted-requested) < DeadZoneGrams {
		return requested
	}
	return adapted
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Decision is the verdict of the bowl guard.
type Decision int

// Bowl guard verdicts.
const (
	Proceed Decision = iota
	SkipBowlSufficient
	BlockHeatDanger
)

func (d Decision) String() string {
	switch d {
	case Proceed:
		return "proceed"
	case SkipBowlSufficient:
		return "skip_bowl_sufficient"
	case BlockHeatDanger:
		return "block_heat_danger"
	}
	return "unknown"
}

// Decide gates a feeding on the adapted portion and the food already in the bowl.
func Decide(adapted int, bowlWeight float64, enabled bool) Decision {
	if adapted == 0 && enabled {
		return BlockHeatDanger
	}
	if bowlWeight >= float64(adapted) {
		return SkipBowlSufficient
	}
	return Proceed
}
