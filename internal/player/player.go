// Package player holds the full rating state of a ladder account and the
// collection managing all accounts of a ladder.
//
// Naming: the account name is the login, the alias is the well-known
// community name (fixed once set), and a player can use any number of
// quickmatch names on top.
package player

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/blitzladder/blitzrate/internal/domain/blitzmap"
	"github.com/blitzladder/blitzrate/internal/domain/faction"
	"github.com/blitzladder/blitzrate/internal/domain/gamemode"
	"github.com/blitzladder/blitzrate/internal/domain/gametype"
	"github.com/blitzladder/blitzrate/internal/domain/knownplayers"
	"github.com/blitzladder/blitzrate/internal/game"
	"github.com/blitzladder/blitzrate/internal/glicko"
	"github.com/blitzladder/blitzrate/internal/prob"
)

// RatingSource resolves opponent ratings and activity while a game is
// processed. The collection implements it; handing the dependency in as
// an interface keeps Player free of a back-reference.
type RatingSource interface {
	Rating(userID uint32, f faction.Faction) (*glicko.Rating, bool)
	WasActive(userID uint32) bool
}

// PeakRating is the best adjusted rating (elo minus deviation) a player
// reached for one faction. AdjustedElo of -1 means no peak yet.
type PeakRating struct {
	Date        time.Time
	AdjustedElo float64
	Deviation   float64
	Faction     faction.Faction
}

// RatedGame references a game together with the pessimistic rating gap
// it bridged. Used for the best-victories and worst-defeats boards.
type RatedGame struct {
	GameID           uint32
	RatingDifference float64
}

// ratedGameList keeps the highest differences, capped at 20 entries.
type ratedGameList []RatedGame

func (l ratedGameList) Len() int { return len(l) }
func (l ratedGameList) Less(i, j int) bool {
	if l[i].RatingDifference != l[j].RatingDifference {
		return l[i].RatingDifference < l[j].RatingDifference
	}
	return l[i].GameID < l[j].GameID
}
func (l ratedGameList) Swap(i, j int) { l[i], l[j] = l[j], l[i] }

func (l ratedGameList) insert(entry RatedGame) ratedGameList {
	l = append(l, entry)
	sort.Sort(l)
	if len(l) > 20 {
		l = l[1:]
	}
	return l
}

// EloByDate is one day's (elo, deviation) snapshot. Elo is -1 when the
// faction was inactive on that day.
type EloByDate struct {
	Elo       float64
	Deviation float64
}

// DateKey packs a date into yyyymmdd.
func DateKey(date time.Time) uint32 {
	return uint32(date.Year())*10000 + uint32(date.Month())*100 + uint32(date.Day())
}

// DateFromKey unpacks a yyyymmdd key.
func DateFromKey(key uint32) time.Time {
	return time.Date(int(key/10000), time.Month((key/100)%100), int(key%100), 0, 0, 0, 0, time.UTC)
}

// Player is the complete rating state of one account.
type Player struct {
	userID        uint32
	primaryUserID uint32
	account       string
	alias         string
	created       time.Time

	wins   int
	losses int
	draws  int

	// Elo at the moment of the first activation, and the number of
	// games it took. Zero until the player first goes active.
	initialRating       float64
	gamesToBecomeActive int
	hasInitialRating    bool

	usedQmNames map[string]int

	ratings           [faction.Count]*glicko.Rating
	yesterdaysRatings [faction.Count]glicko.Rating

	gameCounts  [faction.Count]int
	peakRatings [faction.Count]PeakRating

	firstGame time.Time
	lastGame  time.Time

	pendingGames   [faction.Count][]glicko.Opponent
	pendingResults [faction.Count][]float64
	updated        [faction.Count]bool

	// Alternating activation/deactivation dates. An odd number of
	// entries means currently active.
	statusList        []time.Time
	factionStatusList [faction.Count][]time.Time

	eloByDate map[uint32][faction.Count]EloByDate

	highestRatedVictories ratedGameList
	lowestRatedDefeats    ratedGameList

	vsPlayer map[uint32]*prob.Probabilities
	mapStats [faction.SetupCount][blitzmap.Count]prob.Probabilities

	// Per-ladder sets of in-game names.
	names map[string]map[string]struct{}
}

// New creates a player with seed ratings for the given mode.
func New(userID, primaryUserID uint32, account string, mode gamemode.Mode) *Player {
	if userID == 0 {
		log.Warn().Msg("player with user id 0 is not supposed to exist")
	}

	seedRating, seedDeviation := knownplayers.InitialRatingAndDeviation(userID, mode)

	p := &Player{
		userID:        userID,
		primaryUserID: primaryUserID,
		account:       account,
		usedQmNames:   make(map[string]int),
		eloByDate:     make(map[uint32][faction.Count]EloByDate),
		vsPlayer:      make(map[uint32]*prob.Probabilities),
		names:         make(map[string]map[string]struct{}),
	}

	for i := range p.ratings {
		p.ratings[i] = glicko.NewEloRating(seedRating, seedDeviation, glicko.InitialVolatility)
		p.peakRatings[i] = PeakRating{AdjustedElo: -1.0, Deviation: -1.0, Faction: faction.Faction(i)}
	}
	return p
}

// UserID is the account id, 0 only for the zero value.
func (p *Player) UserID() uint32 { return p.userID }

// PrimaryUserID is the canonical account after duplicate resolution.
func (p *Player) PrimaryUserID() uint32 { return p.primaryUserID }

// Account is the login name.
func (p *Player) Account() string { return p.account }

// SetAccount overrides the login name.
func (p *Player) SetAccount(account string) { p.account = account }

// SetAlias sets the community name. The placeholder "[]" is rejected.
func (p *Player) SetAlias(alias string) {
	if alias == "[]" {
		log.Error().Uint32("user_id", p.userID).Str("account", p.account).Msg("rejecting bad alias")
		return
	}
	p.alias = alias
	log.Info().Uint32("user_id", p.userID).Str("alias", alias).Msg("alias assigned")
}

// HasAlias reports whether a community name is set.
func (p *Player) HasAlias() bool { return p.alias != "" }

// Alias is the community name, or the most used quickmatch name in
// brackets when no alias is known.
func (p *Player) Alias() string {
	if p.alias != "" {
		return p.alias
	}
	if len(p.usedQmNames) == 0 {
		log.Warn().Str("account", p.account).Msg("asking for alias without any player names")
		return "???"
	}
	return "[" + p.MostOftenUsedPlayerName() + "]"
}

// SetCreationDate stores the account creation date.
func (p *Player) SetCreationDate(date time.Time) { p.created = date }

// CreationDate returns the account creation date.
func (p *Player) CreationDate() time.Time { return p.created }

// Wins of all processed games.
func (p *Player) Wins() int { return p.wins }

// Losses of all processed games.
func (p *Player) Losses() int { return p.losses }

// Draws of all processed games.
func (p *Player) Draws() int { return p.draws }

// Rating grants access to the rating of one faction.
func (p *Player) Rating(f faction.Faction) *glicko.Rating { return p.ratings[f] }

// Elo of a faction on the elo scale.
func (p *Player) Elo(f faction.Faction) float64 { return p.ratings[f].Elo() }

// Deviation of a faction on the elo scale.
func (p *Player) Deviation(f faction.Faction) float64 { return p.ratings[f].EloDeviation() }

// Volatility of a faction.
func (p *Player) Volatility(f faction.Faction) float64 { return p.ratings[f].Volatility() }

// YesterdaysElo is the elo before the most recent ApplyPeriod.
func (p *Player) YesterdaysElo(f faction.Faction) float64 { return p.yesterdaysRatings[f].Elo() }

// YesterdaysGameCount is the combined game counter before the most
// recent ApplyPeriod.
func (p *Player) YesterdaysGameCount() int { return p.yesterdaysRatings[faction.Combined].GameCount() }

// AddName registers an in-game name for a ladder.
func (p *Player) AddName(name, ladder string) {
	if p.names[ladder] == nil {
		p.names[ladder] = make(map[string]struct{})
	}
	if _, ok := p.names[ladder][name]; ok {
		log.Warn().Uint32("user_id", p.userID).Str("name", name).Str("ladder", ladder).Msg("name already exists")
		return
	}
	p.names[ladder][name] = struct{}{}
}

// Names returns the per-ladder name sets.
func (p *Player) Names() map[string]map[string]struct{} { return p.names }

// IncreasePlayerNameUsage counts a quickmatch appearance of a name.
func (p *Player) IncreasePlayerNameUsage(name string) { p.usedQmNames[name]++ }

// MostOftenUsedPlayerName picks the most played quickmatch name. Ties
// resolve to the lexically smallest name to keep runs reproducible.
func (p *Player) MostOftenUsedPlayerName() string {
	var qmName string
	appearances := 0

	names := make([]string, 0, len(p.usedQmNames))
	for name := range p.usedQmNames {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if p.usedQmNames[name] > appearances {
			qmName = name
			appearances = p.usedQmNames[name]
		}
	}
	return qmName
}

// IsActiveFaction reports whether the faction is currently active. The
// status list alternates activation and deactivation dates, so an odd
// length means active.
func (p *Player) IsActiveFaction(f faction.Faction) bool {
	return len(p.factionStatusList[f])%2 == 1
}

// IsActive reports whether any faction is active.
func (p *Player) IsActive() bool {
	for _, f := range faction.All() {
		if p.IsActiveFaction(f) {
			return true
		}
	}
	return false
}

// WasActive reports whether the player has ever been active.
func (p *Player) WasActive() bool { return len(p.statusList) > 0 }

// WasActiveFaction reports whether the faction has ever been active.
func (p *Player) WasActiveFaction(f faction.Faction) bool {
	return len(p.factionStatusList[f]) > 0
}

// WasActiveBefore reports whether the faction first activated before the
// given date.
func (p *Player) WasActiveBefore(date time.Time, f faction.Faction) bool {
	if len(p.factionStatusList[f]) == 0 {
		return false
	}
	return p.factionStatusList[f][0].Before(date)
}

// MaxRating is the best elo across active factions, optionally counting
// formerly active ones. -1 when nothing qualifies.
func (p *Player) MaxRating(includeInactive bool) float64 {
	result := -1.0
	for _, f := range faction.All() {
		if p.IsActiveFaction(f) || (includeInactive && p.WasActiveFaction(f)) {
			if elo := p.Elo(f); elo > result {
				result = elo
			}
		}
	}
	return result
}

// YesterdaysMaxRating mirrors MaxRating on the pre-period snapshot.
func (p *Player) YesterdaysMaxRating(includeInactive bool) float64 {
	result := -1.0
	for _, f := range faction.All() {
		if p.IsActiveFaction(f) || (includeInactive && p.WasActiveFaction(f)) {
			if elo := p.YesterdaysElo(f); elo > result {
				result = elo
			}
		}
	}
	return result
}

// BestFaction returns the faction with the highest elo, restricted to
// active factions unless includeInactive is set.
func (p *Player) BestFaction(includeInactive bool) faction.Faction {
	best := faction.Combined
	maxRating := -1.0
	for _, f := range faction.All() {
		if (p.IsActiveFaction(f) || includeInactive) && p.Elo(f) > maxRating {
			best = f
			maxRating = p.Elo(f)
		}
	}
	return best
}

// BestActiveFaction is the best currently active faction.
func (p *Player) BestActiveFaction() faction.Faction { return p.BestFaction(false) }

// GameCount is the number of games across the real factions. Combined is
// excluded, it would double every game.
func (p *Player) GameCount() int {
	result := 0
	for i := 0; i < faction.Count-1; i++ {
		result += p.gameCounts[i]
	}
	return result
}

// GameCountFaction is the number of games for one faction.
func (p *Player) GameCountFaction(f faction.Faction) int { return p.gameCounts[f] }

// PendingGameCount is the number of games not yet rated.
func (p *Player) PendingGameCount() int { return len(p.pendingGames[faction.Combined]) }

// FirstGame is the date of the first processed game.
func (p *Player) FirstGame() time.Time { return p.firstGame }

// LastGame is the date of the most recent processed game.
func (p *Player) LastGame() time.Time { return p.lastGame }

// InitialRating is the elo at the first activation. ok is false until
// the player became active once.
func (p *Player) InitialRating() (value float64, gamesToBecomeActive int, ok bool) {
	return p.initialRating, p.gamesToBecomeActive, p.hasInitialRating
}

// ProcessGame records the outcome of one game for this player. The
// opponent ratings are read through source; with instant processing the
// rating updates immediately instead of joining the daily batch.
func (p *Player) ProcessGame(g *game.Game, index int, instant bool, source RatingSource) error {
	if p.userID == 0 {
		return fmt.Errorf("processing game for uninitialized player")
	}

	f := g.Participants[index].Faction
	if f >= faction.Combined {
		return fmt.Errorf("unknown faction %d for player %d in game %d", f, p.userID, g.ID)
	}

	if g.Type == gametype.Quickmatch {
		p.IncreasePlayerNameUsage(g.Participants[index].Name)
	}

	playerIndex := g.PlayerIndex(p.userID)
	if playerIndex < 0 {
		return fmt.Errorf("player %d not found in game %d", p.userID, g.ID)
	}
	if playerIndex != index {
		return fmt.Errorf("player at index %d of game %d is %d, expected %d",
			index, g.ID, g.Participants[index].UserID, p.userID)
	}

	var result float64
	switch {
	case g.Draw:
		p.draws++
		result = 0.5
	case g.Participants[index].Won:
		p.wins++
		result = 1.0
	default:
		p.losses++
		result = 0.0
	}

	var opponentID uint32

	if g.PlayerCount() == 2 {
		opponentID = g.Participants[index^1].UserID
		opponentFaction := g.Participants[index^1].Faction

		opponentRating, ok := source.Rating(opponentID, opponentFaction)
		if !ok {
			return fmt.Errorf("unable to find opponent %d while processing game %d", opponentID, g.ID)
		}
		opponent := opponentRating.AsOpponent()

		if instant {
			p.ratings[f].Update([]glicko.Opponent{opponent}, []float64{result}, glicko.Normal)
			p.updated[f] = true
			p.ratings[faction.Combined].Update([]glicko.Opponent{opponent}, []float64{result}, glicko.Normal)
			p.updated[faction.Combined] = true
		} else {
			p.pendingGames[f] = append(p.pendingGames[f], opponent)
			p.pendingResults[f] = append(p.pendingResults[f], result)
			p.pendingGames[faction.Combined] = append(p.pendingGames[faction.Combined], opponent)
			p.pendingResults[faction.Combined] = append(p.pendingResults[faction.Combined], result)
		}
	} else {
		// 2v2: rate against a virtual opponent scaled by the own share
		// of the team's strength.
		virtual, err := p.virtualOpponent(g, playerIndex, source)
		if err != nil {
			return err
		}

		if instant {
			p.ratings[f].Update([]glicko.Opponent{virtual}, []float64{result}, glicko.AutoSelect)
			p.updated[f] = true
			p.ratings[faction.Combined].Update([]glicko.Opponent{virtual}, []float64{result}, glicko.AutoSelect)
			p.updated[faction.Combined] = true
		} else {
			p.pendingGames[f] = append(p.pendingGames[f], virtual)
			p.pendingResults[f] = append(p.pendingResults[f], result)
			p.pendingGames[faction.Combined] = append(p.pendingGames[faction.Combined], virtual)
			p.pendingResults[faction.Combined] = append(p.pendingResults[faction.Combined], result)
		}
	}

	p.gameCounts[f]++
	p.gameCounts[faction.Combined]++

	p.lastGame = g.Date()
	if p.firstGame.IsZero() {
		p.firstGame = g.Date()
	}

	// Victory and defeat boards only consider 1v1 underdog games played
	// with a settled own rating against an opponent who mattered.
	if g.PlayerCount() == 2 && g.Participants[index].Deviation < 200.0 &&
		source.WasActive(opponentID) && g.IsUnderdogWin() {

		if g.WinnerIndex() == index {
			diff := (g.Participants[index^1].Elo - g.Participants[index^1].Deviation) -
				(g.Participants[index].Elo + g.Participants[index].Deviation)
			p.highestRatedVictories = p.highestRatedVictories.insert(RatedGame{GameID: g.ID, RatingDifference: diff})
		} else if g.WinnerIndex() == index^1 {
			diff := (g.Participants[index].Elo - g.Participants[index].Deviation) -
				(g.Participants[index^1].Elo + g.Participants[index^1].Deviation)
			p.lowestRatedDefeats = p.lowestRatedDefeats.insert(RatedGame{GameID: g.ID, RatingDifference: diff})
		}
	}

	if !g.Draw && g.PlayerCount() == 2 {
		p.recordHeadToHeadAndMapStats(g, index)
	}

	return nil
}

// recordHeadToHeadAndMapStats feeds the probability records from the
// rating snapshots stored in the game.
func (p *Player) recordHeadToHeadAndMapStats(g *game.Game, index int) {
	myRating := glicko.NewEloRating(g.Participants[index].Elo, g.Participants[index].Deviation, glicko.InitialVolatility)
	otherRating := glicko.NewEloRating(g.Participants[index^1].Elo, g.Participants[index^1].Deviation, glicko.InitialVolatility)
	expected := myRating.EStar(otherRating.AsOpponent(), 0.0)

	opponentID := g.Participants[index^1].UserID
	if p.vsPlayer[opponentID] == nil {
		p.vsPlayer[opponentID] = &prob.Probabilities{}
	}
	p.vsPlayer[opponentID].AddGame(expected, g.Date(), g.WinnerIndex() == index)

	if mapIndex := blitzmap.ToIndex(g.MapName); mapIndex >= 0 {
		setup := faction.SetupOf(g.Participants[index].Faction, g.Participants[index^1].Faction)
		p.mapStats[setup][mapIndex].AddGame(expected, g.Date(), g.WinnerIndex() == index)
	}
}

// virtualOpponent builds the synthetic 2v2 opponent triple.
func (p *Player) virtualOpponent(g *game.Game, playerIndex int, source RatingSource) (glicko.Opponent, error) {
	f := g.Participants[playerIndex].Faction

	myRating, ok := source.Rating(p.userID, f)
	if !ok {
		return glicko.Opponent{}, fmt.Errorf("unable to find own rating for player %d", p.userID)
	}

	mateIndex := g.MateIndex(playerIndex)
	mateRating, ok := source.Rating(g.Participants[mateIndex].UserID, g.Participants[mateIndex].Faction)
	if !ok {
		return glicko.Opponent{}, fmt.Errorf("unable to find mate %d in game %d", g.Participants[mateIndex].UserID, g.ID)
	}

	myStrength := math.Pow(myRating.Elo(), glicko.ExponentFactor2v2)
	mateStrength := math.Pow(mateRating.Elo(), glicko.ExponentFactor2v2)
	myShare := myStrength / (myStrength + mateStrength)
	if !g.Participants[playerIndex].Won {
		myShare = 1.0 - myShare
	}

	firstIdx, secondIdx := g.OpponentIndices(playerIndex)
	first, ok := source.Rating(g.Participants[firstIdx].UserID, g.Participants[firstIdx].Faction)
	if !ok {
		return glicko.Opponent{}, fmt.Errorf("unable to find opponent %d in game %d", g.Participants[firstIdx].UserID, g.ID)
	}
	second, ok := source.Rating(g.Participants[secondIdx].UserID, g.Participants[secondIdx].Faction)
	if !ok {
		return glicko.Opponent{}, fmt.Errorf("unable to find opponent %d in game %d", g.Participants[secondIdx].UserID, g.ID)
	}

	finalElo := (first.Elo() + second.Elo()) * myShare
	finalDeviation := (first.EloDeviation() + second.EloDeviation() + mateRating.EloDeviation()) / 3.0

	return glicko.Opponent{
		Rating:     (finalElo - glicko.InitialRating) / glicko.ScaleFactor,
		Deviation:  finalDeviation / glicko.ScaleFactor,
		Volatility: glicko.InitialVolatility,
	}, nil
}

// Update flushes the pending games of every faction through the rating
// state machine.
func (p *Player) Update() {
	for i := range p.ratings {
		p.updated[i] = len(p.pendingGames[i]) > 0

		if len(p.pendingGames[i]) > 0 {
			current := p.ratings[i].CurrentCalculationType()
			if current == glicko.Initial {
				log.Info().Str("alias", p.Alias()).Str("faction", faction.Faction(i).String()).
					Msg("trying to find initial rating")
			}

			applied := p.ratings[i].Update(p.pendingGames[i], p.pendingResults[i], glicko.AutoSelect)

			if applied != glicko.Normal && p.ratings[i].CurrentCalculationType() == glicko.Normal {
				log.Info().Str("alias", p.Alias()).Str("faction", faction.Faction(i).String()).
					Float64("elo", p.ratings[i].PendingElo()).
					Msg("initial rating settled")
			}
		}

		p.pendingGames[i] = nil
		p.pendingResults[i] = nil
	}
}

// ApplyPeriod closes a rating period: committed updates or decay, the
// activation bookkeeping, peak ratings and the daily elo history.
func (p *Player) ApplyPeriod(date time.Time, decay bool, mode gamemode.Mode) {
	for i := range p.ratings {
		p.yesterdaysRatings[i] = *p.ratings[i]
	}

	for i := range p.ratings {
		f := faction.Faction(i)

		if p.updated[i] {
			p.ratings[i].Apply()
		} else if decay {
			p.ratings[i].Decay(p.WasActive(), mode.DecayFactor(), mode.MaxDeviationAfterActive())
		}
		p.updated[i] = false

		if p.Deviation(f) < mode.DeviationThresholdActive(p.Elo(f)) && !p.IsActiveFaction(f) {
			if !p.IsActive() {
				if len(p.statusList) == 0 {
					p.initialRating = p.Elo(f)
					p.gamesToBecomeActive = p.GameCount()
					p.hasInitialRating = true
				}
				p.statusList = append(p.statusList, date)
			}

			p.factionStatusList[i] = append(p.factionStatusList[i], date)
			log.Debug().Time("date", date).Str("alias", p.Alias()).Str("faction", f.String()).
				Int("games", p.gameCounts[i]).Msg("player goes active")
		} else if p.Deviation(f) > mode.DeviationThresholdInactive(p.Elo(f)) && p.IsActiveFaction(f) {
			log.Debug().Time("date", date).Str("alias", p.Alias()).Str("faction", f.String()).
				Msg("player goes inactive")

			p.factionStatusList[i] = append(p.factionStatusList[i], date)
			if !p.IsActive() {
				p.statusList = append(p.statusList, date)
			}
		}

		if p.IsActiveFaction(f) && (p.Elo(f)-p.Deviation(f)) > p.peakRatings[i].AdjustedElo {
			p.peakRatings[i].Date = date
			p.peakRatings[i].AdjustedElo = p.Elo(f) - p.Deviation(f)
			p.peakRatings[i].Deviation = p.Deviation(f)
		}
	}

	snapshot := [faction.Count]EloByDate{}
	for i := range snapshot {
		f := faction.Faction(i)
		entry := EloByDate{Elo: -1.0}
		if p.IsActiveFaction(f) {
			entry = EloByDate{Elo: p.Elo(f), Deviation: p.Deviation(f)}
		}
		snapshot[i] = entry
	}
	p.eloByDate[DateKey(date)] = snapshot
}

// DaysActive counts the days with at least one active faction.
func (p *Player) DaysActive() int {
	result := 0
	for _, snapshot := range p.eloByDate {
		for _, entry := range snapshot {
			if entry.Elo > 0.0 {
				result++
				break
			}
		}
	}
	return result
}

// DaysInactive counts the trailing streak of days without activity.
func (p *Player) DaysInactive() int {
	keys := p.sortedEloDateKeys()
	result := 0
	for _, key := range keys {
		snapshot := p.eloByDate[key]
		foundActivity := false
		for _, entry := range snapshot {
			if entry.Elo > 0.0 {
				result = 0
				foundActivity = true
				break
			}
		}
		if !foundActivity {
			result++
		}
	}
	return result
}

// DaysActiveSince returns how long the player has been active, counted
// from the first or the latest activation. -1 when inactive.
func (p *Player) DaysActiveSince(sinceFirstActivation bool, today time.Time) int {
	if len(p.statusList)%2 == 0 {
		return -1
	}
	var from time.Time
	if sinceFirstActivation {
		from = p.statusList[0]
	} else {
		from = p.statusList[len(p.statusList)-1]
	}
	return int(today.Sub(from).Hours() / 24)
}

// DaysFromLastGame is the age of the most recent game in days.
func (p *Player) DaysFromLastGame(today time.Time) int {
	return int(today.Sub(p.lastGame).Hours() / 24)
}

// DaysFromFirstGame is the age of the first game in days.
func (p *Player) DaysFromFirstGame(today time.Time) int {
	return int(today.Sub(p.firstGame).Hours() / 24)
}

// DaysToInactivity simulates decay to estimate in how many idle days the
// player would drop out of the active pool. 0 when already inactive.
func (p *Player) DaysToInactivity(mode gamemode.Mode) int {
	days := 0
	for _, f := range faction.All() {
		if !p.IsActiveFaction(f) {
			continue
		}

		testRating := *p.ratings[f]
		currentDays := 0
		for currentDays < 1000 &&
			testRating.EloDeviation()-math.Sqrt(math.Abs(glicko.InitialRating-p.Elo(f))) < 85.0 {
			currentDays++
			testRating.Decay(true, mode.DecayFactor(), mode.MaxDeviationAfterActive())
		}
		if currentDays > days {
			days = currentDays
		}
	}
	return days
}

// PeakRatingFaction returns the peak for one faction.
func (p *Player) PeakRatingFaction(f faction.Faction) PeakRating { return p.peakRatings[f] }

// PeakRating returns the best peak across all factions.
func (p *Player) PeakRating() PeakRating {
	maxElo := p.peakRatings[0].AdjustedElo
	maxIndex := 0
	for i := range p.peakRatings {
		if p.peakRatings[i].AdjustedElo > maxElo {
			maxElo = p.peakRatings[i].AdjustedElo
			maxIndex = i
		}
	}
	return p.peakRatings[maxIndex]
}

// HighestRatedVictories lists the best underdog wins, strongest last.
func (p *Player) HighestRatedVictories() []RatedGame { return p.highestRatedVictories }

// LowestRatedDefeats lists the worst upsets suffered, strongest last.
func (p *Player) LowestRatedDefeats() []RatedGame { return p.lowestRatedDefeats }

// VsOtherPlayers returns the head-to-head records keyed by opponent id.
func (p *Player) VsOtherPlayers() map[uint32]*prob.Probabilities { return p.vsPlayer }

// MapStats returns the record for one matchup on one map.
func (p *Player) MapStats(setup faction.Setup, mapIndex int) (*prob.Probabilities, error) {
	if setup < 0 || int(setup) >= faction.SetupCount || mapIndex < 0 || mapIndex >= blitzmap.Count {
		return nil, fmt.Errorf("map stats indices out of range: setup %d, map %d", setup, mapIndex)
	}
	return &p.mapStats[setup][mapIndex], nil
}

// HistoricalElo returns the dated elo history of one faction, keyed by
// yyyymmdd, only days the faction was active.
func (p *Player) HistoricalElo(f faction.Faction) map[uint32]EloByDate {
	result := make(map[uint32]EloByDate)
	for key, snapshot := range p.eloByDate {
		if snapshot[f].Elo > 0.0 {
			result[key] = snapshot[f]
		}
	}
	return result
}

// Finalize freezes all probability records.
func (p *Player) Finalize() {
	for _, probs := range p.vsPlayer {
		if !probs.IsFinalized() {
			probs.Finalize()
		}
	}
	for i := range p.mapStats {
		for j := range p.mapStats[i] {
			p.mapStats[i][j].Finalize()
		}
	}
}

// LowerLexicalOrder compares aliases ignoring case and the brackets that
// mark auto-generated aliases.
func (p *Player) LowerLexicalOrder(other *Player) bool {
	me := strings.TrimLeft(p.Alias(), "[")
	him := strings.TrimLeft(other.Alias(), "[")

	if me == "" && him == "" {
		return false
	}
	if me == "" {
		return true
	}
	if him == "" {
		return false
	}
	return strings.ToLower(me) < strings.ToLower(him)
}

func (p *Player) sortedEloDateKeys() []uint32 {
	keys := make([]uint32, 0, len(p.eloByDate))
	for key := range p.eloByDate {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
