package player

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/blitzladder/blitzrate/internal/domain/faction"
	"github.com/blitzladder/blitzrate/internal/domain/gamemode"
	"github.com/blitzladder/blitzrate/internal/domain/knownplayers"
	"github.com/blitzladder/blitzrate/internal/glicko"
)

// Players is the collection of all accounts of a ladder. It implements
// RatingSource so games can resolve their opponents through it.
type Players struct {
	players map[uint32]*Player

	// nickToUserID maps ladder -> in-game name -> user id.
	nickToUserID map[string]map[string]uint32
}

// NewPlayers creates an empty collection.
func NewPlayers() *Players {
	return &Players{
		players:      make(map[uint32]*Player),
		nickToUserID: make(map[string]map[string]uint32),
	}
}

// Count is the number of players.
func (ps *Players) Count() int { return len(ps.players) }

// Contains reports whether a user id is known.
func (ps *Players) Contains(userID uint32) bool {
	_, ok := ps.players[userID]
	return ok
}

// Get returns the player for a user id.
func (ps *Players) Get(userID uint32) (*Player, error) {
	if userID == 0 {
		log.Error().Msg("player with user id 0 is not supposed to exist")
	}
	p, ok := ps.players[userID]
	if !ok {
		return nil, fmt.Errorf("no player for user id %d", userID)
	}
	return p, nil
}

// MustGet returns the player for a user id and panics when absent. Only
// used where the pipeline has already guaranteed existence.
func (ps *Players) MustGet(userID uint32) *Player {
	p, err := ps.Get(userID)
	if err != nil {
		panic(err)
	}
	return p
}

// UserIDs lists all user ids in ascending order.
func (ps *Players) UserIDs() []uint32 {
	ids := make([]uint32, 0, len(ps.players))
	for id := range ps.players {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Add inserts a player and registers its in-game names.
func (ps *Players) Add(p *Player) {
	if _, ok := ps.players[p.UserID()]; ok {
		log.Error().Uint32("user_id", p.UserID()).Msg("user id already exists")
	}
	ps.players[p.UserID()] = p

	for ladder, names := range p.Names() {
		if ps.nickToUserID[ladder] == nil {
			ps.nickToUserID[ladder] = make(map[string]uint32)
		}
		for name := range names {
			ps.nickToUserID[ladder][name] = p.UserID()
		}
	}
}

// MarkDuplicates redirects the in-game names of duplicate accounts to
// their primary id.
func (ps *Players) MarkDuplicates(primaryID uint32, duplicates map[uint32]struct{}) {
	for _, names := range ps.nickToUserID {
		for name, userID := range names {
			if _, ok := duplicates[userID]; ok {
				names[name] = primaryID
			}
		}
	}
}

// IsTestAccount reports whether the account never enters the ratings.
func (ps *Players) IsTestAccount(userID uint32) bool {
	return knownplayers.IsTestAccount(userID)
}

// UserID resolves an in-game name on a ladder, 0 when unknown.
func (ps *Players) UserID(playerName, ladder string) uint32 {
	names, ok := ps.nickToUserID[ladder]
	if !ok {
		return 0
	}
	return names[playerName]
}

// Exists reports whether the in-game name is known on any ladder.
func (ps *Players) Exists(playerName string) bool {
	for _, names := range ps.nickToUserID {
		if _, ok := names[playerName]; ok {
			return true
		}
	}
	return false
}

// UserIDFromAlias resolves a community alias, 0 when unknown.
func (ps *Players) UserIDFromAlias(alias string) uint32 {
	for _, id := range ps.UserIDs() {
		p := ps.players[id]
		if p.HasAlias() && p.Alias() == alias {
			return id
		}
	}
	return 0
}

// Rating implements RatingSource.
func (ps *Players) Rating(userID uint32, f faction.Faction) (*glicko.Rating, bool) {
	p, ok := ps.players[userID]
	if !ok {
		return nil, false
	}
	return p.Rating(f), true
}

// WasActive implements RatingSource.
func (ps *Players) WasActive(userID uint32) bool {
	p, ok := ps.players[userID]
	if !ok {
		return false
	}
	return p.WasActive()
}

// Update flushes the pending games of every player.
func (ps *Players) Update() {
	for _, id := range ps.UserIDs() {
		p := ps.players[id]
		if p.GameCount() == 0 && p.PendingGameCount() == 0 {
			continue
		}
		p.Update()
	}
}

// HasPendingGames reports whether any player still holds unrated games.
func (ps *Players) HasPendingGames() bool {
	for _, p := range ps.players {
		if p.PendingGameCount() > 0 {
			return true
		}
	}
	return false
}

// Apply closes the rating period for every player.
func (ps *Players) Apply(date time.Time, decay bool, mode gamemode.Mode) {
	for _, id := range ps.UserIDs() {
		p := ps.players[id]
		p.ApplyPeriod(date, decay, mode)
		if id == knownplayers.BlitzBot {
			log.Debug().Float64("elo", p.Elo(faction.Combined)).Msg("blitz bot rating")
		}
	}
}

// Decay runs catch-up rating periods for a gap of idle days. The date
// only matters for the elo history, so each simulated day advances it.
func (ps *Players) Decay(days int, from time.Time, mode gamemode.Mode) {
	for day := 0; day < days; day++ {
		ps.Apply(from.AddDate(0, 0, day+1), true, mode)
	}
}

// ActivePlayerCount counts currently active players.
func (ps *Players) ActivePlayerCount() int {
	result := 0
	for _, p := range ps.players {
		if p.IsActive() {
			result++
		}
	}
	return result
}

// Finalize freezes all probability records of all players.
func (ps *Players) Finalize() {
	for _, id := range ps.UserIDs() {
		ps.players[id].Finalize()
	}
}

// ActiveSortedByRating returns the active players best first. 2v2 modes
// rank by combined elo, 1v1 modes by the best active faction.
func (ps *Players) ActiveSortedByRating(mode gamemode.Mode) []*Player {
	var result []*Player
	for _, id := range ps.UserIDs() {
		if ps.players[id].IsActive() {
			result = append(result, ps.players[id])
		}
	}

	if mode == gamemode.Blitz2v2 || mode == gamemode.RedAlert2_2v2 {
		sort.SliceStable(result, func(i, j int) bool {
			return result[i].Elo(faction.Combined) > result[j].Elo(faction.Combined)
		})
	} else {
		sort.SliceStable(result, func(i, j int) bool {
			return result[i].MaxRating(false) > result[j].MaxRating(false)
		})
	}
	return result
}

// ActiveSortedByYesterdaysRating ranks active players on the pre-period
// snapshot, used for rank-delta columns.
func (ps *Players) ActiveSortedByYesterdaysRating(mode gamemode.Mode) []*Player {
	var result []*Player
	for _, id := range ps.UserIDs() {
		if ps.players[id].IsActive() {
			result = append(result, ps.players[id])
		}
	}

	if mode == gamemode.Blitz2v2 || mode == gamemode.RedAlert2_2v2 {
		sort.SliceStable(result, func(i, j int) bool {
			return result[i].YesterdaysElo(faction.Combined) > result[j].YesterdaysElo(faction.Combined)
		})
	} else {
		sort.SliceStable(result, func(i, j int) bool {
			return result[i].YesterdaysMaxRating(false) > result[j].YesterdaysMaxRating(false)
		})
	}
	return result
}

// PeakSorted returns every player with a recorded peak, best first. 2v2
// modes use the combined peak only.
func (ps *Players) PeakSorted(mode gamemode.Mode) []*Player {
	peakOf := func(p *Player) PeakRating {
		if mode == gamemode.Blitz2v2 || mode == gamemode.RedAlert2_2v2 {
			return p.PeakRatingFaction(faction.Combined)
		}
		return p.PeakRating()
	}

	var result []*Player
	for _, id := range ps.UserIDs() {
		if peakOf(ps.players[id]).AdjustedElo > 0.0 {
			result = append(result, ps.players[id])
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return peakOf(result[i]).AdjustedElo > peakOf(result[j]).AdjustedElo
	})
	return result
}
