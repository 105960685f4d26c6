// Package gamemode enumerates the supported ladders and their
// mode-specific rating tunables.
package gamemode

import "math"

// Mode identifies a ladder game mode. Unsupported modes still rate, they
// just fall back to the default tunables.
type Mode int

const (
	Blitz Mode = iota
	YurisRevenge
	RedAlert2
	RedAlert
	RedAlert2NewMaps
	Blitz2v2
	RedAlert2_2v2

	Count

	Unknown Mode = 99
)

// initialRating mirrors glicko's baseline. Kept local to avoid an import
// cycle with the rating package.
const initialRating = 1500.0

var names = [Count]string{
	"RA2 Blitz", "Yuris Revenge", "Red Alert 2", "Red Alert",
	"Red Alert 2 New Maps", "Blitz 2v2", "Red Alert 2 2v2",
}

// Short names match column 'abbreviation' of table 'ladders'.
var shortNames = [Count]string{
	"blitz", "yr", "ra2", "ra", "ra2-new-maps", "blitz-2v2", "ra2-2v2",
}

func (m Mode) String() string {
	if m < 0 || m >= Count {
		return "Unknown"
	}
	return names[m]
}

// ShortName returns the ladder abbreviation for the mode.
func (m Mode) ShortName() string {
	if m < 0 || m >= Count {
		return "?"
	}
	return shortNames[m]
}

// List returns all supported modes in declaration order.
func List() []Mode {
	modes := make([]Mode, 0, Count)
	for i := Mode(0); i < Count; i++ {
		modes = append(modes, i)
	}
	return modes
}

// FromName resolves a full or short mode name. Unknown names map to Unknown.
func FromName(name string) Mode {
	for i := Mode(0); i < Count; i++ {
		if names[i] == name || shortNames[i] == name {
			return i
		}
	}
	return Unknown
}

// PlayerCount is the exact number of participants a rated game must have.
func (m Mode) PlayerCount() int {
	switch m {
	case Blitz, YurisRevenge, RedAlert2, RedAlert, RedAlert2NewMaps:
		return 2
	case Blitz2v2, RedAlert2_2v2:
		return 4
	default:
		return 0
	}
}

// DecayFactor controls how fast deviation grows during inactivity.
func (m Mode) DecayFactor() float64 {
	if m == YurisRevenge {
		return 2.5
	}
	return 3.5
}

// MaxDeviationAfterActive caps decay growth for players who have been
// active before.
func (m Mode) MaxDeviationAfterActive() float64 {
	if m == YurisRevenge {
		return 150.0
	}
	return 175.0
}

// DeviationThresholdActive is the deviation below which a player counts as
// active. The threshold loosens as the rating moves away from the baseline.
func (m Mode) DeviationThresholdActive(currentElo float64) float64 {
	return math.Min(75.0, 65.0+math.Sqrt(math.Abs(initialRating-currentElo)))
}

// DeviationThresholdInactive is the deviation above which an active player
// falls back to inactive.
func (m Mode) DeviationThresholdInactive(currentElo float64) float64 {
	if m == YurisRevenge {
		return 85.0 + math.Log(math.Abs(initialRating-currentElo))
	}
	return 85.0 + math.Sqrt(math.Abs(initialRating-currentElo))
}

// DeviationThresholdPeak gates peak-rating bookkeeping.
func (m Mode) DeviationThresholdPeak() float64 {
	return m.DeviationThresholdActive(initialRating)
}

// MinGamesSinceActivationForPeak is the number of games a player must have
// before a peak rating is recorded.
func (m Mode) MinGamesSinceActivationForPeak() int {
	if m == Blitz2v2 || m == RedAlert2_2v2 {
		return 80
	}
	return 50
}
