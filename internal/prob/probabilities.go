// Package prob tracks streaming win expectations for head-to-head and
// per-map records and converts them into elo differences.
package prob

import (
	"math"
	"sync"
	"time"

	"github.com/blitzladder/blitzrate/internal/glicko"
)

const tableSize = 10000

var (
	tableOnce sync.Once

	// eloDifference maps a winning probability in units of 0.01% to the
	// elo difference producing it against a default-rated opponent.
	eloDifference [tableSize]float64
)

// The table is built exactly once, on first use.
func initTable() {
	tableOnce.Do(func() {
		baseline := glicko.NewRating()

		for currentRating := 0.0; currentRating <= 3000.0; currentRating += 0.01 {
			myRating := glicko.NewEloRating(currentRating, glicko.InitialDeviation, glicko.InitialVolatility)
			winningProbability := myRating.EStar(baseline.AsOpponent(), 0.0)

			index := int(winningProbability*tableSize + 0.5)
			if index >= tableSize {
				index = tableSize - 1
			}
			eloDifference[index] = currentRating - glicko.InitialRating
		}
	})
}

func eloDifferenceFor(probability float64) float64 {
	index := int(probability*tableSize + 0.5)
	if index >= tableSize {
		index = tableSize - 1
	}
	if index < 0 {
		index = 0
	}
	return eloDifference[index]
}

// Result is a point-in-time evaluation of a probability record.
type Result struct {
	Games      int
	Wins       int
	Expected   float64
	Actual     float64
	Normalized float64
	LastGame   time.Time
}

// Probabilities accumulates the winning probability of each game of a
// matchup. After Finalize the record is read-only.
type Probabilities struct {
	winningProbabilities []float64
	dates                []time.Time
	won                  []bool

	wins int

	expected   float64
	actual     float64
	normalized float64

	finalized bool
}

// Wins is the number of won games.
func (p *Probabilities) Wins() int { return p.wins }

// Losses is the number of games not won.
func (p *Probabilities) Losses() int { return p.Count() - p.wins }

// Count is the total number of games.
func (p *Probabilities) Count() int { return len(p.winningProbabilities) }

// AddGame records a game with the expected winning probability at the
// time it was played.
func (p *Probabilities) AddGame(winningProbability float64, date time.Time, isWin bool) {
	if p.finalized {
		panic("prob: adding a game to a finalized record")
	}
	initTable()

	p.winningProbabilities = append(p.winningProbabilities, winningProbability)
	p.dates = append(p.dates, date)
	p.won = append(p.won, isWin)

	if isWin {
		p.wins++
	}
}

// normalize maps the gap between the actual and the expected win rate to
// the probability of beating an even opponent.
func normalize(games, wins int, expected, actual float64) float64 {
	if games == wins {
		return 1.0
	}
	if wins == 0 {
		return 0.0
	}

	eloDiff := eloDifferenceFor(actual) - eloDifferenceFor(expected)
	myRating := glicko.NewRating()
	return myRating.EStar(myRating.AsOpponent(), eloDiff)
}

// ResultAt evaluates all games up to and including the given date. Games
// must have been added in date order.
func (p *Probabilities) ResultAt(date time.Time) Result {
	var result Result
	if len(p.winningProbabilities) == 0 {
		return result
	}

	for i := range p.winningProbabilities {
		if p.dates[i].After(date) {
			break
		}
		result.Expected += p.winningProbabilities[i]
		result.Games++
		if p.won[i] {
			result.Wins++
		}
		result.LastGame = p.dates[i]
	}

	if result.Games == 0 {
		return result
	}

	result.Expected /= float64(result.Games)
	result.Actual = float64(result.Wins) / float64(result.Games)
	result.Normalized = normalize(result.Games, result.Wins, result.Expected, result.Actual)

	return result
}

// Finalize freezes the record and computes the aggregate rates.
func (p *Probabilities) Finalize() {
	p.finalized = true

	if len(p.winningProbabilities) == 0 {
		return
	}

	for _, winningProbability := range p.winningProbabilities {
		p.expected += winningProbability
	}
	p.expected /= float64(len(p.winningProbabilities))
	p.actual = float64(p.wins) / float64(p.Count())

	p.normalized = normalize(p.Count(), p.wins, p.expected, p.actual)
}

// IsFinalized reports whether Finalize has run.
func (p *Probabilities) IsFinalized() bool { return p.finalized }

// Expected is the mean expected win rate. Finalize must have run.
func (p *Probabilities) Expected() float64 {
	p.mustBeFinalized()
	return p.expected
}

// Actual is the real win rate. Finalize must have run.
func (p *Probabilities) Actual() float64 {
	p.mustBeFinalized()
	return p.actual
}

// NormalizedResult is the winning probability against an even opponent.
func (p *Probabilities) NormalizedResult() float64 {
	p.mustBeFinalized()
	return p.normalized
}

// EloDifference converts the normalized result to an elo gap.
func (p *Probabilities) EloDifference() float64 {
	p.mustBeFinalized()
	return EloDifferenceOf(p.normalized)
}

// EloDifferenceOf converts a normalized winning probability to the elo
// gap producing it.
func EloDifferenceOf(normalized float64) float64 {
	return -400.0 * math.Log10((1.0/normalized)-1.0)
}

func (p *Probabilities) mustBeFinalized() {
	if !p.finalized {
		panic("prob: record is not finalized")
	}
}

// Less orders finalized records: better normalized result first, then
// more wins.
func Less(a, b *Probabilities) bool {
	if a.NormalizedResult() != b.NormalizedResult() {
		return a.NormalizedResult() > b.NormalizedResult()
	}
	return a.Wins() > b.Wins()
}
