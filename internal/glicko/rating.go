package glicko

import (
	"fmt"
	"math"
)

// Rating is a Glicko-2 rating with a pending triple that is committed at
// the end of a rating period via Apply.
type Rating struct {
	rating     float64
	deviation  float64
	volatility float64

	pendingRating     float64
	pendingDeviation  float64
	pendingVolatility float64

	// Games since the last decay reset.
	games        int
	pendingGames int

	calculationType CalculationType
}

// NewRating creates a rating with the initial values.
func NewRating() *Rating {
	return NewEloRating(InitialRating, InitialDeviation, InitialVolatility)
}

// NewEloRating creates a rating from elo-scale values.
func NewEloRating(rating, deviation, volatility float64) *Rating {
	r := &Rating{
		rating:     (rating - InitialRating) / ScaleFactor,
		deviation:  deviation / ScaleFactor,
		volatility: volatility,
	}
	r.pendingRating = r.rating
	r.pendingDeviation = r.deviation
	r.pendingVolatility = r.volatility
	return r
}

// NewGlickoRating creates a rating from values already on the Glicko-2 scale.
func NewGlickoRating(rating, deviation, volatility float64) *Rating {
	r := &Rating{rating: rating, deviation: deviation, volatility: volatility}
	r.pendingRating = r.rating
	r.pendingDeviation = r.deviation
	r.pendingVolatility = r.volatility
	return r
}

// Rating is mu, the rating on the Glicko-2 scale.
func (r *Rating) Rating() float64 { return r.rating }

// Deviation is phi on the Glicko-2 scale.
func (r *Rating) Deviation() float64 { return r.deviation }

// Volatility is sigma.
func (r *Rating) Volatility() float64 { return r.volatility }

// Elo converts the committed rating to the elo scale.
func (r *Rating) Elo() float64 { return r.rating*ScaleFactor + InitialRating }

// PendingElo converts the pending rating to the elo scale.
func (r *Rating) PendingElo() float64 { return r.pendingRating*ScaleFactor + InitialRating }

// EloDeviation converts the committed deviation to the elo scale.
func (r *Rating) EloDeviation() float64 { return r.deviation * ScaleFactor }

// GameCount is the number of games since the last decay reset.
func (r *Rating) GameCount() int { return r.games }

// CurrentCalculationType reports the state of the update machine.
func (r *Rating) CurrentCalculationType() CalculationType { return r.calculationType }

// AsOpponent returns the committed triple on the Glicko-2 scale.
func (r *Rating) AsOpponent() Opponent {
	return Opponent{Rating: r.rating, Deviation: r.deviation, Volatility: r.volatility}
}

func (r *Rating) String() string {
	return fmt.Sprintf("[%g:%g]", r.rating, r.deviation)
}

func g(deviation float64) float64 {
	scale := deviation / math.Pi
	return 1.0 / math.Sqrt(1.0+3.0*scale*scale)
}

// E is the expected result against an opponent, weighted by the
// opponent's deviation.
func (r *Rating) E(opponent Opponent) float64 {
	exponent := -1.0 * g(opponent.Deviation) * (r.rating - opponent.Rating)
	return 1.0 / (1.0 + math.Exp(exponent))
}

// EStar is the raw expected result ignoring the opponent's deviation.
// eloAddition shifts the own rating on the elo scale before comparing.
func (r *Rating) EStar(opponent Opponent, eloAddition float64) float64 {
	exponent := -1.0 * (r.rating + eloAddition/ScaleFactor - opponent.Rating)
	return 1.0 / (1.0 + math.Exp(exponent))
}

func (r *Rating) variance(opponents []Opponent) float64 {
	variance := 0.0
	for _, opp := range opponents {
		e := r.E(opp)
		variance += math.Pow(g(opp.Deviation), 2) * e * (1.0 - e)
	}
	return 1.0 / variance
}

func (r *Rating) delta(opponents []Opponent, results []float64, variance float64) float64 {
	delta := 0.0
	for i, opp := range opponents {
		delta += g(opp.Deviation) * (results[i] - r.E(opp))
	}
	return delta * variance
}

// newVolatility runs the iterative volatility computation, steps 4 and 5
// of the Glicko-2 paper. The Illinois iteration does not converge for
// every input, so the epsilon widens after 100000 steps and the loop
// continues with the coarser bound.
func (r *Rating) newVolatility(opponents []Opponent, results []float64, variance float64) float64 {
	delta := r.delta(opponents, results, variance)

	a := math.Log(math.Pow(r.volatility, 2))
	f := func(x float64) float64 {
		ex := math.Exp(x)
		num := ex * (math.Pow(delta, 2) - math.Pow(r.deviation, 2) - variance - ex)
		den := 2 * math.Pow(math.Pow(r.deviation, 2)+variance+ex, 2)
		return num/den - (x-a)/math.Pow(Tau, 2)
	}

	A := a
	var B float64
	if math.Pow(delta, 2) > math.Pow(r.deviation, 2)+variance {
		B = math.Log(math.Pow(delta, 2) - math.Pow(r.deviation, 2) - variance)
	} else {
		k := 1.0
		for f(a-k*Tau) < 0 {
			k++
		}
		B = a - k*Tau
	}

	fA := f(A)
	fB := f(B)

	steps := 0
	convergence := Convergence

	for math.Abs(B-A) > convergence {
		C := A + (A-B)*fA/(fB-fA)
		fC := f(C)
		if fC*fB < 0.0 {
			A = B
			fA = fB
		} else {
			fA = fA / 2.0
		}
		B = C
		fB = fC
		steps++
		if steps > 100000 {
			steps = 0
			convergence *= 10
		}
	}

	return math.Exp(A / 2.0)
}

// updateNormally is the plain Glicko-2 batch update. It only touches the
// pending triple; Apply commits it.
func (r *Rating) updateNormally(opponents []Opponent, results []float64) {
	variance := r.variance(opponents)

	r.pendingVolatility = r.newVolatility(opponents, results, variance)
	r.pendingDeviation = math.Sqrt(math.Pow(r.deviation, 2) + math.Pow(r.pendingVolatility, 2))
	r.pendingDeviation = 1.0 / math.Sqrt((1.0/math.Pow(r.pendingDeviation, 2))+(1.0/variance))

	ratingDeviationSum := 0.0
	for i, opp := range opponents {
		ratingDeviationSum += g(opp.Deviation) * (results[i] - r.E(opp))
	}

	r.pendingRating += math.Pow(r.pendingDeviation, 2) * ratingDeviationSum

	r.pendingGames++
	r.games++
}

// updateWithNoWin handles batches without both a win and a loss for a
// player who has no settled rating yet. The rating comes from replaying
// the games one by one, the deviation and volatility from the batch pass.
func (r *Rating) updateWithNoWin(opponents []Opponent, results []float64) {
	sequential := *r

	for i := range opponents {
		sequential.updateNormally(opponents[i:i+1], results[i:i+1])
		sequential.Apply()
	}

	r.updateNormally(opponents, results)
	r.pendingRating = sequential.pendingRating
}

// updateWithFirstWin handles the first batch containing both wins and
// losses. A candidate sweep estimates the rating that best explains the
// batch; with useBest the estimate only ever raises the pending rating.
func (r *Rating) updateWithFirstWin(opponents []Opponent, results []float64, useBest bool) {
	r.updateNormally(opponents, results)

	betterElo := findInitialRatingImproved(opponents, results)
	tempRating := (betterElo - InitialRating) / ScaleFactor

	if useBest {
		r.pendingRating = math.Max(r.pendingRating, tempRating)
	} else {
		r.pendingRating = tempRating
	}
}

// Update rates a batch of games played within one rating period. The
// calculation mode is selected from the current state unless forced.
func (r *Rating) Update(opponents []Opponent, results []float64, calculationType CalculationType) CalculationType {
	switch {
	case r.EloDeviation() < 200.0 || calculationType == Normal:
		r.updateNormally(opponents, results)
		r.calculationType = Normal
		return Normal

	case (r.EloDeviation() <= 200.0 && r.calculationType == SingleStep && hasWinsAndLosses(results)) || calculationType == Special:
		// Moving from single-step to the settled state.
		r.updateWithFirstWin(opponents, results, false)
		r.calculationType = Normal
		return Special

	case r.EloDeviation() > 200.0 && hasWinsAndLosses(results):
		r.updateWithFirstWin(opponents, results, true)
		r.calculationType = Special
		return Special

	default:
		r.updateWithNoWin(opponents, results)
		r.calculationType = SingleStep
		return SingleStep
	}
}

// Decay is called once per rating period without games. It either resets
// the games counter or grows the deviation towards the cap.
func (r *Rating) Decay(wasActive bool, factor, maxDeviationAfterActive float64) {
	if r.games == 0 {
		trueDeviation := r.deviation * ScaleFactor

		limit := 350.0
		if wasActive {
			limit = maxDeviationAfterActive
		}
		trueDeviation = math.Min(limit, trueDeviation+math.Pow(math.Log(trueDeviation)/math.Log(factor), factor)/100.0)

		r.deviation = trueDeviation / ScaleFactor
	} else {
		r.games = 0
	}
}

// Apply commits the pending triple at the end of a rating period.
func (r *Rating) Apply() {
	r.volatility = r.pendingVolatility
	r.deviation = r.pendingDeviation
	r.rating = r.pendingRating
	r.pendingGames = 0
}

// findInitialRatingImproved searches for the starting elo whose no-win
// replay lands closest to itself. Glicko-2 alone misplaces very weak and
// very strong fresh accounts, the fixed point is a much better estimate.
func findInitialRatingImproved(opponents []Opponent, results []float64) float64 {
	bestDiff := math.MaxFloat64
	var improvedElo float64

	sweep := func(from, to, step float64) {
		for currentElo := from; currentElo > to; currentElo -= step {
			rating := NewEloRating(currentElo, InitialDeviation, InitialVolatility)
			rating.updateWithNoWin(opponents, results)
			rating.Apply()

			if diff := math.Abs(currentElo - rating.Elo()); diff < bestDiff {
				bestDiff = diff
				improvedElo = rating.Elo()
			}
		}
	}

	sweep(3000.0, 100.0, 100.0)
	sweep(improvedElo+50.0, improvedElo-50.0, 10.0)
	sweep(improvedElo+5.0, improvedElo-5.0, 1.0)

	return improvedElo
}

func hasWinsAndLosses(results []float64) bool {
	hasWins := false
	hasLosses := false
	for _, result := range results {
		hasWins = hasWins || result > 0.5
		hasLosses = hasLosses || result < 0.5
	}
	return hasWins && hasLosses
}
