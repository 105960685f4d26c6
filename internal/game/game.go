// Package game models a single ladder game and the derived queries the
// rating pipeline asks of it.
package game

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/blitzladder/blitzrate/internal/domain/blitzmap"
	"github.com/blitzladder/blitzrate/internal/domain/faction"
	"github.com/blitzladder/blitzrate/internal/domain/gametype"
	"github.com/blitzladder/blitzrate/internal/domain/knownplayers"
)

// Participant is one player of a game, together with the rating snapshot
// taken right before the game entered the rating calculation.
type Participant struct {
	UserID    uint32
	Name      string
	Faction   faction.Faction
	Won       bool
	Points    int
	Elo       float64
	Deviation float64
}

// Game is a single ladder game. A game id of 0 marks an invalid game.
// Manually added tournament games start at 100000000.
type Game struct {
	ID     uint32
	Type   gametype.Type
	Ladder string

	// MapIndex is the catalog index, -1 when the map is unknown.
	MapIndex int
	MapName  string

	// Seconds since 1/1/1970 UTC. Tournament games may deviate by a few
	// hours, which does not affect rating because games enter in daily
	// batches.
	Timestamp int64

	// Duration in seconds and average fps. 0 means unknown.
	Duration int
	FPS      int

	Disconnected bool
	Draw         bool

	Participants []Participant
}

// New creates a game and resolves the map name against the catalog.
func New(id uint32, mapName string, timestamp int64, fps, duration int) *Game {
	return &Game{
		ID:        id,
		MapName:   mapName,
		MapIndex:  blitzmap.ToIndex(mapName),
		Timestamp: timestamp,
		FPS:       fps,
		Duration:  duration,
	}
}

// AddPlayer appends a participant.
func (g *Game) AddPlayer(userID uint32, name string, f faction.Faction, won bool, points int, elo, deviation float64) {
	g.Participants = append(g.Participants, Participant{
		UserID:    userID,
		Name:      name,
		Faction:   f,
		Won:       won,
		Points:    points,
		Elo:       elo,
		Deviation: deviation,
	})
}

// PlayerCount is the number of participants.
func (g *Game) PlayerCount() int { return len(g.Participants) }

// SetMapName stores the raw map name and refreshes the catalog index.
func (g *Game) SetMapName(name string) {
	g.MapName = name
	g.MapIndex = blitzmap.ToIndex(name)
}

// Date is the day the game was played, floored to UTC midnight.
func (g *Game) Date() time.Time {
	return time.Unix(g.Timestamp, 0).UTC().Truncate(24 * time.Hour)
}

// DetermineWinner fills in the won flags when the reported ones do not
// line up, falling back to the scored points.
func (g *Game) DetermineWinner() {
	result := 0
	for _, p := range g.Participants {
		if p.Won {
			result++
		} else {
			result--
		}
	}
	if result == 0 {
		// Number of winners matches number of losers.
		return
	}

	result = 0
	for i := range g.Participants {
		p := &g.Participants[i]
		if p.Points > 0 {
			result++
		} else {
			result--
		}
		p.Won = p.Points > 0
		log.Info().Uint32("game_id", g.ID).Str("player", p.Name).Int("points", p.Points).
			Msg("trying to determine winner from points")
	}

	if result != 0 {
		log.Warn().Uint32("game_id", g.ID).Msg("unable to determine winners, game will probably be invalid")
	}
}

// IsBot reports whether the ladder bot took part.
func (g *Game) IsBot() bool {
	for _, p := range g.Participants {
		if p.UserID == knownplayers.BlitzBot {
			return true
		}
	}
	return false
}

// IsVs reports whether exactly the two given players met in this game.
func (g *Game) IsVs(player1, player2 uint32) bool {
	if len(g.Participants) != 2 {
		return false
	}
	return (g.Participants[0].UserID == player1 && g.Participants[1].UserID == player2) ||
		(g.Participants[0].UserID == player2 && g.Participants[1].UserID == player1)
}

// IsValid checks the game for structural soundness.
func (g *Game) IsValid() bool {
	switch len(g.Participants) {
	case 4:
		userIDs := make(map[uint32]struct{}, 4)
		result := 0
		for _, p := range g.Participants {
			if p.UserID == 0 {
				log.Info().Uint32("game_id", g.ID).Msg("unable to resolve all players, game is invalid")
				return false
			}
			if p.Won {
				result++
			} else {
				result--
			}
			userIDs[p.UserID] = struct{}{}
		}
		if result != 0 {
			log.Warn().Uint32("game_id", g.ID).Msg("winning and losing players do not line up")
			return false
		}
		if g.Draw {
			log.Warn().Uint32("game_id", g.ID).Msg("there is no draw in 2v2 games, game is invalid")
			return false
		}
		if len(userIDs) != 4 {
			log.Info().Uint32("game_id", g.ID).Msg("participants are duplicates, game is invalid")
			return false
		}
		return g.ID != 0 && g.Timestamp != 0

	case 2:
		if g.Participants[0].UserID == g.Participants[1].UserID {
			log.Info().Uint32("game_id", g.ID).Msg("game is between duplicates, game is invalid")
			return false
		}
		return g.ID != 0 &&
			g.Timestamp != 0 &&
			g.Participants[0].UserID != 0 &&
			g.Participants[1].UserID != 0 &&
			(g.Draw || g.Participants[0].Won != g.Participants[1].Won)
	}

	return false
}

// HasValidResult checks that winners and losers balance out.
func (g *Game) HasValidResult() bool {
	if g.Draw {
		return true
	}
	result := 0
	for _, p := range g.Participants {
		if p.Won {
			result++
		} else {
			result--
		}
	}
	return result == 0
}

// DifferenceForGreatestDefeat is the pessimistic rating gap between the
// losing and the winning side, 0 for draws. Positive values mean the
// losers were rated clearly higher.
func (g *Game) DifferenceForGreatestDefeat() float64 {
	if g.Draw {
		return 0.0
	}

	winnerElo := 0.0
	loserElo := 0.0
	for _, p := range g.Participants {
		if p.Won {
			winnerElo += p.Elo + p.Deviation
		} else {
			loserElo += p.Elo - p.Deviation
		}
	}
	return loserElo - winnerElo
}

// IsUnderdogWin reports whether the lower-rated player won a 1v1 game.
func (g *Game) IsUnderdogWin() bool {
	if len(g.Participants) != 2 || g.Draw {
		return false
	}
	return (g.Participants[0].Won && g.Participants[0].Elo < g.Participants[1].Elo) ||
		(g.Participants[1].Won && g.Participants[1].Elo < g.Participants[0].Elo)
}

// RatingDifference is the absolute elo gap of a 1v1 game.
func (g *Game) RatingDifference() float64 {
	if len(g.Participants) != 2 {
		return 0.0
	}
	diff := g.Participants[0].Elo - g.Participants[1].Elo
	if diff < 0 {
		diff = -diff
	}
	return diff
}

// SetRatingAndDeviation snapshots the rating a player carried into the game.
func (g *Game) SetRatingAndDeviation(index int, elo, deviation float64) {
	if index < 0 || index >= len(g.Participants) {
		log.Error().Uint32("game_id", g.ID).Int("index", index).Msg("player index out of bounds")
		return
	}
	g.Participants[index].Elo = elo
	g.Participants[index].Deviation = deviation
}

// WinnerIndex returns the winning side of a 1v1 game, -1 if there is none.
func (g *Game) WinnerIndex() int {
	if len(g.Participants) != 2 || g.Draw {
		return -1
	}
	if g.Participants[0].Won {
		return 0
	}
	if g.Participants[1].Won {
		return 1
	}
	log.Warn().Uint32("game_id", g.ID).Msg("unable to determine winner")
	return -1
}

// PlayerIndex finds the participant index of a user id, -1 if absent.
func (g *Game) PlayerIndex(userID uint32) int {
	for i, p := range g.Participants {
		if p.UserID == userID {
			return i
		}
	}
	return -1
}

// Setup is the faction matchup of a 1v1 game.
func (g *Game) Setup() faction.Setup {
	if len(g.Participants) != 2 {
		return faction.UnknownSetup
	}
	return faction.SetupOf(g.Participants[0].Faction, g.Participants[1].Faction)
}

// MateIndex finds the team mate of a participant in a 2v2 game.
func (g *Game) MateIndex(index int) int {
	if len(g.Participants) != 4 {
		log.Error().Uint32("game_id", g.ID).Msg("only a 2v2 game has a mate")
		return index
	}
	for i := range g.Participants {
		if i != index && g.Participants[i].Won == g.Participants[index].Won {
			return i
		}
	}
	log.Error().Uint32("game_id", g.ID).Msg("mate not found")
	return index
}

// OpponentIndices finds the two opposing participants in a 2v2 game.
func (g *Game) OpponentIndices(index int) (int, int) {
	if len(g.Participants) != 4 {
		log.Error().Uint32("game_id", g.ID).Msg("opponent indices only viable for a 2v2 game")
		return index, index
	}

	first := -1
	for i := range g.Participants {
		if g.Participants[i].Won != g.Participants[index].Won {
			if first < 0 {
				first = i
			} else {
				return first, i
			}
		}
	}
	log.Error().Uint32("game_id", g.ID).Msg("opponents not found, not a valid 2v2 game")
	return index, index
}

// FactionResult renders the matchup with the winning faction uppercased,
// e.g. "Sva" or "avY".
func (g *Game) FactionResult(winnerFirst bool) string {
	if len(g.Participants) != 2 {
		return ""
	}

	faction1 := g.Participants[0].Faction.Letter()
	faction2 := g.Participants[1].Faction.Letter()

	if g.Participants[0].Won {
		faction1 = strings.ToUpper(faction1)
	} else if g.Participants[1].Won {
		faction2 = strings.ToUpper(faction2)
	}

	if winnerFirst && !g.Participants[0].Won {
		return faction2 + "v" + faction1
	}
	return faction1 + "v" + faction2
}

func (g *Game) String() string {
	when := time.Unix(g.Timestamp, 0).UTC().Format("2006-01-02@15:04.05")

	if len(g.Participants) == 2 {
		p0, p1 := g.Participants[0], g.Participants[1]
		score := "0.5-0.5"
		if !g.Draw {
			score = fmt.Sprintf("%d-%d", boolToInt(p0.Won), boolToInt(p1.Won))
		}
		return fmt.Sprintf("[%d] %s %s %s [%d] (%g/%g) vs %s [%d] (%g/%g) on %s: %s",
			g.ID, when, g.FactionResult(false),
			p0.Name, p0.UserID, p0.Elo, p0.Deviation,
			p1.Name, p1.UserID, p1.Elo, p1.Deviation,
			g.MapName, score)
	}
	return fmt.Sprintf("[%d] %s %d players on %s", g.ID, when, len(g.Participants), g.MapName)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
