// Package glicko implements the Glicko-2 rating primitive used by the
// ladder, extended with a cold-start estimator for fresh accounts, a
// custom inactivity decay and a 2v2 share exponent.
package glicko

// The baseline values follow the Glicko-2 paper.
const (
	// InitialRating is the default rating. 1500 works best, just like
	// suggested by the paper.
	InitialRating = 1500.0

	// InitialDeviation is the default deviation. Again, the suggested
	// value of 350 works best.
	InitialDeviation = 350.0

	// InitialVolatility sticks to what the paper suggests.
	InitialVolatility = 0.06

	// ScaleFactor converts between the Glicko-1 and Glicko-2 scales.
	ScaleFactor = 173.7178

	// Tau is the system constant. The paper states reasonable choices
	// are between 0.3 and 1.2; 0.5 gave the best prediction accuracy.
	Tau = 0.5

	// Convergence is the solver epsilon.
	Convergence = 0.000001

	// ExponentFactor2v2 determines a player's share of a win/loss in a
	// 2v2 game. Set after evaluating thousands of games.
	ExponentFactor2v2 = 1.11
)

// Opponent is an opposing rating on the Glicko-2 scale.
type Opponent struct {
	Rating     float64
	Deviation  float64
	Volatility float64
}

// CalculationType selects how a batch of games updates a rating.
type CalculationType int

const (
	Initial CalculationType = iota
	SingleStep
	Special
	Normal
	AutoSelect
	None
)

func (c CalculationType) String() string {
	switch c {
	case Initial:
		return "initial"
	case SingleStep:
		return "single-step"
	case Special:
		return "special"
	case Normal:
		return "normal"
	case AutoSelect:
		return "auto"
	default:
		return "none"
	}
}
