// Package pipeline drives a complete rating run: fetch, identity
// resolution, filtering, chronological replay, reports and write-back.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/blitzladder/blitzrate/internal/domain/gamemode"
	"github.com/blitzladder/blitzrate/internal/domain/gametype"
	"github.com/blitzladder/blitzrate/internal/game"
	"github.com/blitzladder/blitzrate/internal/identity"
	"github.com/blitzladder/blitzrate/internal/mapstats"
	"github.com/blitzladder/blitzrate/internal/metrics"
	"github.com/blitzladder/blitzrate/internal/player"
	"github.com/blitzladder/blitzrate/internal/report"
	"github.com/blitzladder/blitzrate/internal/store"
	"github.com/blitzladder/blitzrate/internal/tournament"
)

// Games shorter than this many seconds carry no rating signal.
const minQuickmatchDuration = 35

// Options configures a rating run.
type Options struct {
	Mode gamemode.Mode

	// TimeShift moves the day boundary of the rating periods.
	TimeShift time.Duration

	// EndDate stops the replay at this day, zero rates everything.
	EndDate time.Time

	Policy identity.Policy

	// TournamentFile is an optional overlay of manually reported games.
	TournamentFile string

	// OutputDir receives the JSON report files.
	OutputDir string

	// DryRun skips the database write-back.
	DryRun bool

	// Today anchors rolling report windows, normally time.Now().
	Today time.Time
}

// Pipeline owns the state of one rating run.
type Pipeline struct {
	source store.GameSource
	sink   store.RatingSink
	opts   Options

	games   map[uint32]*game.Game
	players *player.Players
	stats   *mapstats.Stats
}

// New creates a pipeline. The sink may be nil for dry runs.
func New(source store.GameSource, sink store.RatingSink, opts Options) *Pipeline {
	if opts.Today.IsZero() {
		opts.Today = time.Now().UTC()
	}
	return &Pipeline{
		source: source,
		sink:   sink,
		opts:   opts,
		stats:  mapstats.New(opts.Mode, opts.Today),
	}
}

// Run executes the complete rating run.
func (p *Pipeline) Run(ctx context.Context) error {
	started := time.Now()
	ladder := p.opts.Mode.ShortName()

	if err := p.prepare(ctx); err != nil {
		return err
	}

	accepted := p.filter()
	metrics.GamesRated.WithLabelValues(ladder).Set(float64(len(accepted)))

	if err := p.replay(accepted); err != nil {
		return err
	}

	if err := p.export(accepted); err != nil {
		return err
	}

	if err := p.publish(ctx); err != nil {
		return err
	}

	metrics.ActivePlayers.WithLabelValues(ladder).Set(float64(p.players.ActivePlayerCount()))
	metrics.ObserveRun(ladder, started)

	log.Info().Str("ladder", ladder).Int("games", len(accepted)).
		Int("players", p.players.Count()).Int("active", p.players.ActivePlayerCount()).
		Dur("elapsed", time.Since(started)).Msg("rating run finished")
	return nil
}

// prepare fetches the games, collapses duplicate accounts, loads the
// player records and applies the tournament overlay.
func (p *Pipeline) prepare(ctx context.Context) error {
	ladder := p.opts.Mode.ShortName()

	games, err := p.source.FetchGames(ctx, ladder)
	if err != nil {
		return fmt.Errorf("failed to fetch games: %w", err)
	}
	p.games = games
	metrics.GamesFetched.WithLabelValues(ladder).Set(float64(len(games)))
	log.Info().Int("games", len(games)).Str("ladder", ladder).Msg("games fetched")

	gameCounts := make(map[uint32]int)
	for _, id := range sortedGameIDs(p.games) {
		for _, participant := range p.games[id].Participants {
			if participant.UserID == 0 {
				return fmt.Errorf("game %d carries a participant with user id 0", id)
			}
			gameCounts[participant.UserID]++
		}
	}

	resolver := identity.NewResolver(p.source)
	primaries, err := resolver.Resolve(gameCounts, p.opts.Policy)
	if err != nil {
		return fmt.Errorf("failed to resolve duplicate accounts: %w", err)
	}

	for _, id := range sortedGameIDs(p.games) {
		g := p.games[id]
		for i := range g.Participants {
			g.Participants[i].UserID = primaries[g.Participants[i].UserID]
		}
	}

	primaryIDs, duplicates := primarySets(primaries)
	log.Info().Int("accounts", len(gameCounts)).Int("players", len(primaryIDs)).
		Msg("identities resolved")

	p.players = player.NewPlayers()
	if err := p.source.LoadPlayers(ctx, primaryIDs, p.players, ladder); err != nil {
		return fmt.Errorf("failed to load players: %w", err)
	}

	// Accounts that vanished from the database still own games; they
	// rate under a bare player record.
	for _, id := range primaryIDs {
		if !p.players.Contains(id) {
			log.Warn().Uint32("user_id", id).Msg("rating unknown account")
			p.players.Add(player.New(id, id, "", p.opts.Mode))
		}
	}

	for _, primary := range sortedKeys(duplicates) {
		p.players.MarkDuplicates(primary, duplicates[primary])
	}

	metrics.PlayersLoaded.WithLabelValues(ladder).Set(float64(p.players.Count()))

	if p.opts.TournamentFile != "" {
		overlay := tournament.NewOverlay()
		if err := overlay.LoadFile(p.opts.TournamentFile, p.source, p.players, p.opts.Mode, ladder, p.games); err != nil {
			return fmt.Errorf("failed to load tournament games: %w", err)
		}
	}

	return nil
}

// filter validates and orders the games. Games are ordered by end time,
// ties resolve by game id.
func (p *Pipeline) filter() []*game.Game {
	ladder := p.opts.Mode.ShortName()
	reject := func(reason string) {
		metrics.GamesRejected.WithLabelValues(ladder, reason).Inc()
	}

	blitzMode := p.opts.Mode == gamemode.Blitz || p.opts.Mode == gamemode.Blitz2v2

	var accepted []*game.Game
	for _, id := range sortedGameIDs(p.games) {
		g := p.games[id]
		g.DetermineWinner()

		if g.PlayerCount() != p.opts.Mode.PlayerCount() {
			reject("player_count")
			continue
		}

		if g.Type == gametype.Quickmatch {
			// Speed-ups report compressed durations, stretch a copy back
			// to real time for the minimum-length check. The recorded
			// duration stays untouched, it feeds the end-time ordering
			// and the day buckets. Zero means the duration is unknown.
			duration := g.Duration
			if g.FPS > 60 {
				duration = duration * g.FPS / 60
			}
			if duration != 0 && duration < minQuickmatchDuration {
				reject("too_short")
				continue
			}
			if g.FPS > 0 && g.FPS < 40 {
				reject("fps")
				continue
			}
		}

		if g.IsBot() && p.opts.Mode != gamemode.Blitz {
			reject("bot")
			continue
		}

		if blitzMode && g.MapIndex < 0 {
			log.Debug().Uint32("game_id", g.ID).Str("map", g.MapName).Msg("unknown map")
			reject("unknown_map")
			continue
		}

		if !g.IsValid() {
			reject("invalid")
			continue
		}

		if p.hasTestAccount(g) {
			reject("test_account")
			continue
		}

		accepted = append(accepted, g)
	}

	sort.SliceStable(accepted, func(i, j int) bool {
		endI := accepted[i].Timestamp + int64(accepted[i].Duration)
		endJ := accepted[j].Timestamp + int64(accepted[j].Duration)
		if endI != endJ {
			return endI < endJ
		}
		return accepted[i].ID < accepted[j].ID
	})

	log.Info().Int("accepted", len(accepted)).Int("dropped", len(p.games)-len(accepted)).
		Msg("games filtered")
	return accepted
}

func (p *Pipeline) hasTestAccount(g *game.Game) bool {
	for _, participant := range g.Participants {
		if p.players.IsTestAccount(participant.UserID) {
			return true
		}
	}
	return false
}

// replay feeds the ordered games through the rating calculation in
// daily batches.
func (p *Pipeline) replay(accepted []*game.Game) error {
	var previousDay time.Time
	periods := 0

	for _, g := range accepted {
		day := p.gameDay(g)

		if !p.opts.EndDate.IsZero() && !day.Before(p.opts.EndDate) {
			log.Info().Time("end_date", p.opts.EndDate).Msg("end date reached, stopping replay")
			break
		}

		for i := range g.Participants {
			pl, err := p.players.Get(g.Participants[i].UserID)
			if err != nil {
				return fmt.Errorf("game %d: %w", g.ID, err)
			}
			f := g.Participants[i].Faction
			g.SetRatingAndDeviation(i, pl.Elo(f), pl.Deviation(f))
		}

		if !previousDay.IsZero() && !day.Equal(previousDay) {
			p.players.Update()
			p.players.Apply(previousDay, true, p.opts.Mode)
			periods++

			gap := int(day.Sub(previousDay).Hours() / 24)
			if gap > 3 {
				p.players.Decay(gap-3, previousDay, p.opts.Mode)
				periods += gap - 3
			}
		}

		for i := range g.Participants {
			pl := p.players.MustGet(g.Participants[i].UserID)
			if err := pl.ProcessGame(g, i, false, p.players); err != nil {
				return fmt.Errorf("game %d: %w", g.ID, err)
			}
		}
		p.stats.ProcessGame(g, p.players)

		previousDay = day
	}

	if p.players.HasPendingGames() {
		p.players.Update()
		p.players.Apply(previousDay, true, p.opts.Mode)
		periods++
	}

	p.players.Finalize()
	p.stats.Finalize(previousDay, p.players)

	metrics.RatingPeriods.WithLabelValues(p.opts.Mode.ShortName()).Set(float64(periods))
	log.Info().Int("periods", periods).Msg("replay finished")
	return nil
}

// gameDay floors a game to its rating day: the shifted end time.
func (p *Pipeline) gameDay(g *game.Game) time.Time {
	end := g.Timestamp + int64(g.Duration) + int64(p.opts.TimeShift/time.Second)
	return time.Unix(end, 0).UTC().Truncate(24 * time.Hour)
}

// export writes all JSON report files.
func (p *Pipeline) export(accepted []*game.Game) error {
	exporter := report.NewExporter(p.opts.OutputDir, p.opts.Mode, p.opts.Today)
	if err := exporter.ExportAll(p.players, accepted); err != nil {
		return fmt.Errorf("failed to export player reports: %w", err)
	}

	for _, export := range []func() error{
		func() error { return p.stats.ExportMapStats(p.opts.OutputDir) },
		func() error { return p.stats.ExportMapsPlayed(p.opts.OutputDir) },
		func() error { return p.stats.ExportLongestGames(p.opts.OutputDir, p.players) },
		func() error { return p.stats.ExportBestTeams(p.opts.OutputDir, p.players) },
		func() error { return p.stats.ExportUpsets(p.opts.OutputDir, p.players) },
	} {
		if err := export(); err != nil {
			return fmt.Errorf("failed to export map stats: %w", err)
		}
	}
	return nil
}

// publish writes the finished ratings back to the database.
func (p *Pipeline) publish(ctx context.Context) error {
	if p.opts.DryRun || p.sink == nil {
		log.Info().Msg("dry run, skipping rating write-back")
		return nil
	}

	rows := p.ratingRows()
	if err := p.sink.WriteRatings(ctx, p.opts.Mode.ShortName(), rows); err != nil {
		return fmt.Errorf("failed to publish ratings: %w", err)
	}
	return nil
}

// ratingRows flattens the final standings into sink rows. Active rank
// comes from the current board, all-time rank from the peak board.
func (p *Pipeline) ratingRows() []store.RatingRow {
	allTimeRank := make(map[uint32]int)
	for i, pl := range p.players.PeakSorted(p.opts.Mode) {
		allTimeRank[pl.UserID()] = i + 1
	}

	activeRank := make(map[uint32]int)
	for i, pl := range p.players.ActiveSortedByRating(p.opts.Mode) {
		activeRank[pl.UserID()] = i + 1
	}

	var rows []store.RatingRow
	for _, id := range p.players.UserIDs() {
		pl := p.players.MustGet(id)
		if pl.GameCount() == 0 {
			continue
		}

		best := pl.BestFaction(true)
		rows = append(rows, store.RatingRow{
			UserID:       id,
			Alias:        pl.Alias(),
			Faction:      best.ShortName(),
			Elo:          pl.Elo(best),
			Deviation:    pl.Deviation(best),
			Games:        pl.GameCount(),
			Active:       pl.IsActive(),
			RankActive:   activeRank[id],
			RankAllTime:  allTimeRank[id],
			PeakElo:      pl.PeakRating().AdjustedElo,
			LastGameDate: pl.LastGame(),
		})
	}
	return rows
}

func sortedGameIDs(games map[uint32]*game.Game) []uint32 {
	ids := make([]uint32, 0, len(games))
	for id := range games {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// primarySets splits the identity mapping into the sorted list of
// primary ids and the duplicate sets per primary.
func primarySets(primaries map[uint32]uint32) ([]uint32, map[uint32]map[uint32]struct{}) {
	duplicates := make(map[uint32]map[uint32]struct{})
	seen := make(map[uint32]struct{})

	var primaryIDs []uint32
	for duplicate, primary := range primaries {
		if _, ok := seen[primary]; !ok {
			seen[primary] = struct{}{}
			primaryIDs = append(primaryIDs, primary)
		}
		if duplicate != primary {
			if duplicates[primary] == nil {
				duplicates[primary] = make(map[uint32]struct{})
			}
			duplicates[primary][duplicate] = struct{}{}
		}
	}

	sort.Slice(primaryIDs, func(i, j int) bool { return primaryIDs[i] < primaryIDs[j] })
	return primaryIDs, duplicates
}

func sortedKeys(m map[uint32]map[uint32]struct{}) []uint32 {
	keys := make([]uint32, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
