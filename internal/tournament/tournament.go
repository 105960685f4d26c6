// Package tournament overlays showmatch and world-series games from a
// JSON file over the ladder games. These games never carry real ids or
// timestamps, so both are synthesized.
package tournament

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/blitzladder/blitzrate/internal/domain/blitzmap"
	"github.com/blitzladder/blitzrate/internal/domain/faction"
	"github.com/blitzladder/blitzrate/internal/domain/gamemode"
	"github.com/blitzladder/blitzrate/internal/domain/gametype"
	"github.com/blitzladder/blitzrate/internal/game"
	"github.com/blitzladder/blitzrate/internal/player"
)

// Synthetic ids start far above the real id ranges.
const (
	firstGameID = 100000000
	firstFakeID = 100000000
)

// AliasLoader loads a player by community alias from the backing store
// into the collection. Returns 0 when the alias is unknown.
type AliasLoader interface {
	PlayerFromAlias(alias string, players *player.Players) (uint32, error)
}

type overlayGame struct {
	P1     string `json:"p1"`
	P2     string `json:"p2"`
	F1     string `json:"f1"`
	F2     string `json:"f2"`
	Result int    `json:"result"`
}

type overlayBlock struct {
	Map   string        `json:"map"`
	Date  string        `json:"date"`
	Games []overlayGame `json:"games"`
}

// Overlay synthesizes tournament games. One overlay instance issues all
// ids of a run, so multiple files never collide.
type Overlay struct {
	nextGameID uint32
	nextFakeID uint32

	// Minute offsets per date, so games of one day keep their order.
	timeAdditions map[string]uint32
}

// NewOverlay creates an overlay with fresh id counters.
func NewOverlay() *Overlay {
	return &Overlay{
		nextGameID:    firstGameID,
		nextFakeID:    firstFakeID,
		timeAdditions: make(map[string]uint32),
	}
}

// LoadFile reads one tournament file and adds its games to the game
// set. Unknown aliases get players with fake user ids.
func (o *Overlay) LoadFile(
	path string,
	loader AliasLoader,
	players *player.Players,
	mode gamemode.Mode,
	ladder string,
	games map[uint32]*game.Game,
) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read tournament file: %w", err)
	}

	var blocks []overlayBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return fmt.Errorf("failed to parse tournament file %s: %w", path, err)
	}

	for _, block := range blocks {
		if block.Map == "" || block.Date == "" || len(block.Games) == 0 {
			log.Error().Msg("no map, date or games in tournament file")
			continue
		}

		mapIndex := blitzmap.ToIndex(block.Map)
		if mapIndex < 0 {
			log.Error().Str("map", block.Map).Msg("unknown tournament map")
			continue
		}

		date, err := parseDate(block.Date)
		if err != nil {
			log.Error().Str("date", block.Date).Msg("bad tournament date")
			continue
		}

		for _, entry := range block.Games {
			if entry.P1 == "" || entry.P2 == "" {
				log.Error().Msg("bad tournament game format")
				continue
			}

			if _, ok := o.timeAdditions[block.Date]; !ok {
				o.timeAdditions[block.Date] = 1
			} else {
				o.timeAdditions[block.Date] += 5
			}

			// No real timestamps exist, the games are assumed to start
			// at 8pm UTC, a few minutes apart.
			timestamp := date.Add(20*time.Hour + time.Duration(o.timeAdditions[block.Date])*time.Minute).Unix()

			userID1, err := o.resolvePlayer(entry.P1, loader, players, mode, ladder)
			if err != nil {
				return err
			}
			userID2, err := o.resolvePlayer(entry.P2, loader, players, mode, ladder)
			if err != nil {
				return err
			}

			if userID1 == 0 || userID2 == 0 {
				log.Error().Str("p1", entry.P1).Str("p2", entry.P2).
					Msg("skipping tournament game, players are unknown")
				continue
			}

			gameID := o.nextGameID
			o.nextGameID++

			g := game.New(gameID, blitzmap.ShortName(mapIndex), timestamp, 0, 0)
			g.Type = gametype.WorldSeries
			g.Ladder = ladder
			g.AddPlayer(userID1, entry.P1, overlayFaction(entry.F1), entry.Result == 1, 0, 0.0, 0.0)
			g.AddPlayer(userID2, entry.P2, overlayFaction(entry.F2), entry.Result == 2, 0, 0.0, 0.0)
			if entry.Result == 0 {
				g.Draw = true
			}

			games[gameID] = g
			log.Info().Str("game", g.String()).Msg("added tournament game")
		}
	}

	return nil
}

// resolvePlayer finds the player behind an alias: already loaded, in
// the store, or freshly created with a fake id.
func (o *Overlay) resolvePlayer(
	alias string,
	loader AliasLoader,
	players *player.Players,
	mode gamemode.Mode,
	ladder string,
) (uint32, error) {
	if userID := players.UserIDFromAlias(alias); userID != 0 {
		return userID, nil
	}

	userID, err := loader.PlayerFromAlias(alias, players)
	if err != nil {
		return 0, fmt.Errorf("failed to load tournament player %q: %w", alias, err)
	}
	if userID != 0 {
		return userID, nil
	}

	userID = o.nextFakeID
	o.nextFakeID++

	p := player.New(userID, userID, "?", mode)
	p.SetAlias(alias)
	players.Add(p)
	log.Info().Uint32("user_id", userID).Str("alias", alias).Msg("manually created player")

	return userID, nil
}

// overlayFaction decodes the one-letter faction of the tournament
// files. Only Allied is marked, everything else played Soviet.
func overlayFaction(letter string) faction.Faction {
	if letter == "a" {
		return faction.Allied
	}
	return faction.Soviet
}

func parseDate(value string) (time.Time, error) {
	packed, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return time.Time{}, err
	}

	year := int(packed / 10000)
	month := time.Month((packed / 100) % 100)
	day := int(packed % 100)

	if year < 2000 || month < time.January || month > time.December || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("date %q out of range", value)
	}

	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), nil
}
