// Package mapstats aggregates per-map and per-team statistics over the
// accepted games: play counts, durations, balance, upsets, longest
// games and 2v2 team performance.
package mapstats

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/blitzladder/blitzrate/internal/domain/blitzmap"
	"github.com/blitzladder/blitzrate/internal/domain/faction"
	"github.com/blitzladder/blitzrate/internal/domain/gamemode"
	"github.com/blitzladder/blitzrate/internal/game"
	"github.com/blitzladder/blitzrate/internal/glicko"
	"github.com/blitzladder/blitzrate/internal/player"
	"github.com/blitzladder/blitzrate/internal/prob"
)

const (
	upsetThreshold = 300.0

	monthlyUpsetCap = 20
	yearUpsetCap    = 50
	recentUpsetCap  = 50
	allTimeUpsetCap = 100
	longestGamesCap = 25
)

// Upset is one remarkable game: either a big rating upset or an
// unusually long game.
type Upset struct {
	Date           time.Time
	Winners        []uint32
	Losers         []uint32
	Map            string
	WinnerFactions []faction.Faction
	LoserFactions  []faction.Faction
	WinnerElos     []int
	LoserElos      []int
	EloDifference  float64
	Duration       uint32
}

// Team is one finalized 2v2 team row.
type Team struct {
	TeamID        uint64
	Games         int
	Wins          int
	TeamElo       float64
	EloDifference float64
	LastGame      time.Time
}

// Player1 is the higher half of the team key.
func (t Team) Player1() uint32 { return uint32(t.TeamID >> 32) }

// Player2 is the lower half of the team key.
func (t Team) Player2() uint32 { return uint32(t.TeamID & 0xFFFFFFFF) }

type mapPlayed struct {
	count   int
	players map[uint32]struct{}
}

type durationSum struct {
	seconds uint64
	games   uint64
}

// Stats collects all aggregates of one run. today anchors the rolling
// 30-day and 12-month upset windows.
type Stats struct {
	mode  gamemode.Mode
	today time.Time

	// Month key yyyymm -> map name -> counters.
	playedPerMonth  map[int]map[string]*mapPlayed
	averageDuration map[string]*durationSum

	upsetsMonthly    map[int][]Upset
	upsetsLast12     []Upset
	upsetsLast30Days []Upset
	upsetsAllTime    []Upset
	longestGames     []Upset

	// Balance records for the cross-faction setups AvS, AvY, YvS.
	balance map[faction.Setup]map[string]*prob.Probabilities

	teamStats    map[uint64]*prob.Probabilities
	lastTeamElos map[uint64][][2]float64

	teams           []Team
	yesterdaysTeams []Team

	ignoredMaps map[string]struct{}
	gameCount   int
}

// New creates empty statistics for one game mode.
func New(mode gamemode.Mode, today time.Time) *Stats {
	return &Stats{
		mode:            mode,
		today:           today.Truncate(24 * time.Hour),
		playedPerMonth:  make(map[int]map[string]*mapPlayed),
		averageDuration: make(map[string]*durationSum),
		upsetsMonthly:   make(map[int][]Upset),
		balance: map[faction.Setup]map[string]*prob.Probabilities{
			faction.AvS: make(map[string]*prob.Probabilities),
			faction.AvY: make(map[string]*prob.Probabilities),
			faction.YvS: make(map[string]*prob.Probabilities),
		},
		teamStats:    make(map[uint64]*prob.Probabilities),
		lastTeamElos: make(map[uint64][][2]float64),
		ignoredMaps:  make(map[string]struct{}),
	}
}

var (
	leadingDigit = regexp.MustCompile(`^[0-9] *`)
	parenthesis  = regexp.MustCompile(`\(.*?\)`)
	doubleSpace  = regexp.MustCompile(`\s{2,}`)
)

// canonicalMapName maps the raw map name onto the name used as the
// statistics key. Returns false when the map is not tracked.
func (s *Stats) canonicalMapName(rawName string) (string, bool) {
	if s.mode == gamemode.Blitz {
		index := blitzmap.ToIndex(rawName)
		if index < 0 {
			if _, ok := s.ignoredMaps[rawName]; !ok {
				log.Info().Str("map", rawName).Msg("ignoring map while making map stats")
				s.ignoredMaps[rawName] = struct{}{}
			}
			return "", false
		}
		return blitzmap.Name(index), true
	}

	name := rawName
	if s.mode == gamemode.RedAlert2 && len(name) > 2 {
		name = leadingDigit.ReplaceAllString(name, "")
		name = parenthesis.ReplaceAllString(name, "")
		name = doubleSpace.ReplaceAllString(name, " ")
		name = strings.TrimSpace(name)
	}
	return name, true
}

func monthKey(date time.Time) int {
	return date.Year()*100 + int(date.Month())
}

// ProcessGame folds one accepted game into all aggregates. Games must
// arrive in chronological order.
func (s *Stats) ProcessGame(g *game.Game, players *player.Players) {
	mapName, ok := s.canonicalMapName(g.MapName)
	if !ok {
		return
	}

	month := monthKey(g.Date())
	if s.playedPerMonth[month] == nil {
		s.playedPerMonth[month] = make(map[string]*mapPlayed)
	}
	played := s.playedPerMonth[month][mapName]
	if played == nil {
		played = &mapPlayed{players: make(map[uint32]struct{})}
		s.playedPerMonth[month][mapName] = played
	}
	played.count++
	for i := range g.Participants {
		played.players[g.Participants[i].UserID] = struct{}{}
	}

	// Duration 0 marks manually added games, e.g. tournament overlays.
	if g.Duration > 0 {
		duration := s.averageDuration[mapName]
		if duration == nil {
			duration = &durationSum{}
			s.averageDuration[mapName] = duration
		}
		duration.seconds += uint64(g.Duration)
		duration.games++
	}

	if g.Draw {
		return
	}

	s.processUpset(g, mapName, players)

	if s.mode == gamemode.Blitz2v2 || s.mode == gamemode.RedAlert2_2v2 {
		s.processTeams(g)
	}

	s.processLongestGame(g, mapName)
	s.processBalance(g, mapName)
}

func (s *Stats) processUpset(g *game.Game, mapName string, players *player.Players) {
	diff := g.DifferenceForGreatestDefeat()
	if diff <= upsetThreshold || g.IsBot() {
		return
	}

	// Every loser needs a settled rating or a past activation, fresh
	// accounts losing is not an upset.
	for i := range g.Participants {
		p := g.Participants[i]
		if !p.Won && p.Deviation >= 120.0 && !players.WasActive(p.UserID) {
			return
		}
	}

	log.Warn().Str("game", g.String()).Float64("difference", diff).Msg("upset detected")

	upset := Upset{
		Date:          g.Date(),
		Map:           mapName,
		EloDifference: diff,
	}
	for i := range g.Participants {
		p := g.Participants[i]
		if p.Won {
			upset.Winners = append(upset.Winners, p.UserID)
			upset.WinnerFactions = append(upset.WinnerFactions, p.Faction)
			upset.WinnerElos = append(upset.WinnerElos, int(p.Elo))
		} else {
			upset.Losers = append(upset.Losers, p.UserID)
			upset.LoserFactions = append(upset.LoserFactions, p.Faction)
			upset.LoserElos = append(upset.LoserElos, int(p.Elo))
		}
	}

	month := monthKey(g.Date())
	s.upsetsMonthly[month] = insertUpset(s.upsetsMonthly[month], upset, monthlyUpsetCap, byDifference)

	if !g.Date().Before(s.today.AddDate(0, 0, -365)) {
		s.upsetsLast12 = insertUpset(s.upsetsLast12, upset, yearUpsetCap, byDifference)
	}
	if !g.Date().Before(s.today.AddDate(0, 0, -31)) {
		s.upsetsLast30Days = insertUpset(s.upsetsLast30Days, upset, recentUpsetCap, byDifference)
	}
	s.upsetsAllTime = insertUpset(s.upsetsAllTime, upset, allTimeUpsetCap, byDifference)
}

func (s *Stats) processLongestGame(g *game.Game, mapName string) {
	if g.IsBot() || g.Duration <= 600 || g.FPS == 0 {
		return
	}

	// The reported duration counts frames at the reported FPS, 59 is
	// the nominal game speed.
	normalized := uint32(uint64(g.Duration) * uint64(g.FPS) / 59)

	upset := Upset{
		Date:     g.Date(),
		Map:      mapName,
		Duration: normalized,
	}
	for i := range g.Participants {
		p := g.Participants[i]
		if p.Won {
			upset.Winners = append(upset.Winners, p.UserID)
			upset.WinnerFactions = append(upset.WinnerFactions, p.Faction)
			upset.WinnerElos = append(upset.WinnerElos, int(p.Elo))
		} else {
			upset.Losers = append(upset.Losers, p.UserID)
			upset.LoserFactions = append(upset.LoserFactions, p.Faction)
			upset.LoserElos = append(upset.LoserElos, int(p.Elo))
		}
	}

	s.longestGames = insertUpset(s.longestGames, upset, longestGamesCap, byDuration)
}

// processBalance feeds the per-map faction balance. Only 1v1 games
// between different factions of settled players count.
func (s *Stats) processBalance(g *game.Game, mapName string) {
	if g.PlayerCount() != 2 || g.Participants[0].Faction == g.Participants[1].Faction {
		return
	}

	s.gameCount++

	// Mirror the setup so the reference faction comes first.
	setup := g.Setup()
	switch setup {
	case faction.SvA, faction.YvA, faction.SvY:
		setup = setup.Mirror()
	}

	reference := setup.First()
	referenceIndex := 0
	if g.Participants[0].Faction != reference {
		referenceIndex = 1
	}
	otherIndex := referenceIndex ^ 1

	referenceRating := glicko.NewEloRating(g.Participants[referenceIndex].Elo, g.Participants[referenceIndex].Deviation, glicko.InitialVolatility)
	otherRating := glicko.NewEloRating(g.Participants[otherIndex].Elo, g.Participants[otherIndex].Deviation, glicko.InitialVolatility)

	// 1300 is a good compromise for including games that actually matter.
	if referenceRating.Elo()-referenceRating.EloDeviation() < 1300.0 ||
		otherRating.Elo()-otherRating.EloDeviation() < 1300.0 ||
		referenceRating.EloDeviation() > 100.0 ||
		otherRating.EloDeviation() > 100.0 {
		return
	}

	expectedWinRate := referenceRating.EStar(otherRating.AsOpponent(), 0.0)

	record := s.balance[setup][mapName]
	if record == nil {
		record = &prob.Probabilities{}
		s.balance[setup][mapName] = record
	}
	record.AddGame(expectedWinRate, g.Date(), g.WinnerIndex() == referenceIndex)
}

func teamID(a, b uint32) uint64 {
	if a > b {
		a, b = b, a
	}
	return uint64(a)<<32 | uint64(b)
}

func (s *Stats) processTeams(g *game.Game) {
	if g.PlayerCount() != 4 {
		return
	}

	var winners, losers []game.Participant
	for i := range g.Participants {
		if g.Participants[i].Won {
			winners = append(winners, g.Participants[i])
		} else {
			losers = append(losers, g.Participants[i])
		}
	}
	if len(winners) != 2 || len(losers) != 2 {
		return
	}

	winnerTeam := teamID(winners[0].UserID, winners[1].UserID)
	loserTeam := teamID(losers[0].UserID, losers[1].UserID)

	s.lastTeamElos[winnerTeam] = append(s.lastTeamElos[winnerTeam], orderedElos(winners))
	s.lastTeamElos[loserTeam] = append(s.lastTeamElos[loserTeam], orderedElos(losers))

	winnerRating := glicko.NewEloRating(winners[0].Elo+winners[1].Elo, winners[0].Deviation+winners[1].Deviation, glicko.InitialVolatility)
	loserRating := glicko.NewEloRating(losers[0].Elo+losers[1].Elo, losers[0].Deviation+losers[1].Deviation, glicko.InitialVolatility)

	expectedWinRate := winnerRating.EStar(loserRating.AsOpponent(), 0.0)

	if s.teamStats[winnerTeam] == nil {
		s.teamStats[winnerTeam] = &prob.Probabilities{}
	}
	if s.teamStats[loserTeam] == nil {
		s.teamStats[loserTeam] = &prob.Probabilities{}
	}
	s.teamStats[winnerTeam].AddGame(expectedWinRate, g.Date(), true)
	s.teamStats[loserTeam].AddGame(1.0-expectedWinRate, g.Date(), false)
}

// orderedElos pairs the elos by descending user id, matching the team
// key layout.
func orderedElos(team []game.Participant) [2]float64 {
	if team[0].UserID < team[1].UserID {
		return [2]float64{team[1].Elo, team[0].Elo}
	}
	return [2]float64{team[0].Elo, team[1].Elo}
}

// Finalize freezes all probability records and builds the team boards
// for the given date and for three days earlier (the delta columns).
func (s *Stats) Finalize(date time.Time, players *player.Players) {
	log.Info().Msg("finalizing map statistics")

	teamIDs := make([]uint64, 0, len(s.teamStats))
	for id := range s.teamStats {
		teamIDs = append(teamIDs, id)
	}
	sort.Slice(teamIDs, func(i, j int) bool { return teamIDs[i] < teamIDs[j] })

	for _, id := range teamIDs {
		record := s.teamStats[id]
		record.Finalize()

		if team, ok := s.teamRow(id, record.ResultAt(date), players); ok {
			s.teams = append(s.teams, team)
		}
		if team, ok := s.teamRow(id, record.ResultAt(date.AddDate(0, 0, -3)), players); ok {
			s.yesterdaysTeams = append(s.yesterdaysTeams, team)
		}
	}

	sort.SliceStable(s.teams, func(i, j int) bool { return s.teams[i].EloDifference > s.teams[j].EloDifference })
	sort.SliceStable(s.yesterdaysTeams, func(i, j int) bool {
		return s.yesterdaysTeams[i].EloDifference > s.yesterdaysTeams[j].EloDifference
	})

	for _, records := range s.balance {
		for _, record := range records {
			record.Finalize()
		}
	}
}

/// teamRow gates one team for the board: enough games, both players
// active and one of them rated above the casual pool.
func (s *Stats) teamRow(id uint64, result prob.Result, players *player.Players) (Team, bool) {
	player1, err1 := players.Get(uint32(id >> 32))
	player2, err2 := players.Get(uint32(id & 0xFFFFFFFF))
	if err1 != nil || err2 != nil {
		return Team{}, false
	}

	if result.Games < 20 || !player1.IsActive() || !player2.IsActive() ||
		result.Wins <= 1 || result.Wins == result.Games {
		return Team{}, false
	}
	if player1.Elo(faction.Combined) <= 1300.0 && player2.Elo(faction.Combined) <= 1300.0 {
		return Team{}, false
	}

	return Team{
		TeamID:        id,
		Games:         result.Games,
		Wins:          result.Wins,
		TeamElo:       player1.Elo(faction.Combined) + player2.Elo(faction.Combined),
		EloDifference: prob.EloDifferenceOf(result.Normalized),
		LastGame:      result.LastGame,
	}, true
}

// Teams returns the finalized team board, best overperformance first.
func (s *Stats) Teams() []Team { return s.teams }

// GameCount is the number of cross-faction 1v1 games seen.
func (s *Stats) GameCount() int { return s.gameCount }

// Balance returns the finalized balance record of one setup and map,
// nil when the pairing never occurred.
func (s *Stats) Balance(setup faction.Setup, mapName string) *prob.Probabilities {
	return s.balance[setup][mapName]
}

func byDifference(a, b Upset) bool {
	if a.EloDifference != b.EloDifference {
		return a.EloDifference > b.EloDifference
	}
	return a.Date.Before(b.Date)
}

func byDuration(a, b Upset) bool {
	if a.Duration != b.Duration {
		return a.Duration > b.Duration
	}
	return a.Date.Before(b.Date)
}

// insertUpset keeps the list sorted by less and caps its size,
// dropping the weakest entry.
func insertUpset(list []Upset, upset Upset, limit int, less func(a, b Upset) bool) []Upset {
	list = append(list, upset)
	sort.SliceStable(list, func(i, j int) bool { return less(list[i], list[j]) })
	if len(list) > limit {
		list = list[:limit]
	}
	return list
}
