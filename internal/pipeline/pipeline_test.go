package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blitzladder/blitzrate/internal/domain/faction"
	"github.com/blitzladder/blitzrate/internal/domain/gamemode"
	"github.com/blitzladder/blitzrate/internal/domain/gametype"
	"github.com/blitzladder/blitzrate/internal/game"
	"github.com/blitzladder/blitzrate/internal/identity"
	"github.com/blitzladder/blitzrate/internal/player"
	"github.com/blitzladder/blitzrate/internal/store"
)

var start = time.Date(2025, time.April, 1, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	games   map[uint32]*game.Game
	related map[uint32][]uint32
	aliases map[uint32]string
}

func (s *fakeSource) FetchGames(_ context.Context, _ string) (map[uint32]*game.Game, error) {
	return s.games, nil
}

func (s *fakeSource) LoadPlayers(_ context.Context, userIDs []uint32, players *player.Players, _ string) error {
	for _, id := range userIDs {
		p := player.New(id, id, "account", gamemode.Blitz)
		if alias, ok := s.aliases[id]; ok {
			p.SetAlias(alias)
		}
		players.Add(p)
	}
	return nil
}

func (s *fakeSource) PlayerFromAlias(_ string, _ *player.Players) (uint32, error) { return 0, nil }

func (s *fakeSource) RelatedUsers(userID uint32) ([]uint32, error) {
	return s.related[userID], nil
}

func (s *fakeSource) Alias(userID uint32) (string, error) { return s.aliases[userID], nil }

func (s *fakeSource) Exists(uint32) bool { return true }

type fakeSink struct {
	ladder string
	rows   []store.RatingRow
}

func (s *fakeSink) WriteRatings(_ context.Context, ladder string, rows []store.RatingRow) error {
	s.ladder = ladder
	s.rows = rows
	return nil
}

func quickmatch(id uint32, ts time.Time, user1, user2 uint32, firstWins bool) *game.Game {
	g := game.New(id, "Alamo", ts.Unix(), 58, 700)
	g.Type = gametype.Quickmatch
	g.AddPlayer(user1, "one", faction.Soviet, firstWins, 1, 0, 0)
	g.AddPlayer(user2, "two", faction.Allied, !firstWins, 0, 0, 0)
	return g
}

// fixtureGames builds alternating wins between two players, several
// games per day.
func fixtureGames(days, perDay int, user1, user2 uint32) map[uint32]*game.Game {
	games := make(map[uint32]*game.Game)
	id := uint32(1)
	for day := 0; day < days; day++ {
		for i := 0; i < perDay; i++ {
			ts := start.AddDate(0, 0, day).Add(time.Duration(i) * time.Minute)
			games[id] = quickmatch(id, ts, user1, user2, i%2 == 0)
			id++
		}
	}
	return games
}

func newTestPipeline(t *testing.T, source *fakeSource, sink store.RatingSink, opts Options) *Pipeline {
	t.Helper()
	if opts.Mode == gamemode.Unknown {
		opts.Mode = gamemode.Blitz
	}
	if opts.OutputDir == "" {
		opts.OutputDir = t.TempDir()
	}
	if opts.Today.IsZero() {
		opts.Today = start.AddDate(0, 0, 10)
	}
	return New(source, sink, opts)
}

func TestRunEndToEnd(t *testing.T) {
	source := &fakeSource{
		games:   fixtureGames(5, 8, 10, 20),
		aliases: map[uint32]string{10: "Hero", 20: "Rival"},
	}
	sink := &fakeSink{}
	dir := t.TempDir()

	p := newTestPipeline(t, source, sink, Options{OutputDir: dir})
	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, "blitz", sink.ladder)
	require.Len(t, sink.rows, 2)

	for _, row := range sink.rows {
		assert.Equal(t, 40, row.Games)
		assert.True(t, row.Active)
		assert.Greater(t, row.RankActive, 0)
	}

	for _, filename := range []string{
		"blitz_active_players.json",
		"blitz_bestofalltime.json",
		"blitz_player_10.json",
		"blitz_run.json",
	} {
		_, err := os.Stat(filepath.Join(dir, filename))
		assert.NoError(t, err, filename)
	}
}

func TestRunDryRunSkipsSink(t *testing.T) {
	source := &fakeSource{games: fixtureGames(2, 4, 10, 20)}
	sink := &fakeSink{}

	p := newTestPipeline(t, source, sink, Options{DryRun: true})
	require.NoError(t, p.Run(context.Background()))

	assert.Empty(t, sink.rows)
}

func TestDuplicateAccountsCollapse(t *testing.T) {
	games := fixtureGames(3, 8, 10, 20)
	// A few games under a second account of player 20.
	for i := uint32(0); i < 4; i++ {
		ts := start.AddDate(0, 0, 3).Add(time.Duration(i) * time.Minute)
		games[1000+i] = quickmatch(1000+i, ts, 10, 21, i%2 == 0)
	}

	source := &fakeSource{
		games:   games,
		related: map[uint32][]uint32{20: {21}, 21: {20}},
		aliases: map[uint32]string{20: "Rival"},
	}
	sink := &fakeSink{}

	p := newTestPipeline(t, source, sink, Options{Policy: identity.Full})
	require.NoError(t, p.Run(context.Background()))

	ids := make(map[uint32]int)
	for _, row := range sink.rows {
		ids[row.UserID] = row.Games
	}
	assert.NotContains(t, ids, uint32(21))
	assert.Equal(t, 28, ids[20])
	assert.Equal(t, 28, ids[10])
}

func TestEndDateStopsReplay(t *testing.T) {
	source := &fakeSource{games: fixtureGames(5, 4, 10, 20)}
	sink := &fakeSink{}

	p := newTestPipeline(t, source, sink, Options{EndDate: start.AddDate(0, 0, 2).Truncate(24 * time.Hour)})
	require.NoError(t, p.Run(context.Background()))

	require.Len(t, sink.rows, 2)
	assert.Equal(t, 8, sink.rows[0].Games)
}

func TestFilterGates(t *testing.T) {
	games := fixtureGames(1, 2, 10, 20)

	// Too short once the speed-up is stretched back to real time.
	tooShort := quickmatch(100, start.Add(time.Hour), 10, 20, true)
	tooShort.Duration = 20
	games[100] = tooShort

	// Unplayably low average fps.
	lowFPS := quickmatch(101, start.Add(2*time.Hour), 10, 20, true)
	lowFPS.FPS = 10
	games[101] = lowFPS

	// Unknown map on a Blitz ladder.
	unknownMap := quickmatch(102, start.Add(3*time.Hour), 10, 20, true)
	unknownMap.SetMapName("definitely not a map")
	games[102] = unknownMap

	source := &fakeSource{games: games}
	sink := &fakeSink{}

	p := newTestPipeline(t, source, sink, Options{})
	require.NoError(t, p.Run(context.Background()))

	require.Len(t, sink.rows, 2)
	assert.Equal(t, 2, sink.rows[0].Games)
}

func TestSpeedUpRescaleKeepsLongGames(t *testing.T) {
	p := newTestPipeline(t, &fakeSource{games: map[uint32]*game.Game{}}, nil, Options{})
	p.games = map[uint32]*game.Game{}

	// 30 reported seconds at 90 fps are 45 real seconds, long enough to
	// rate. The recorded duration is not rewritten.
	g := quickmatch(1, start, 10, 20, true)
	g.Duration = 30
	g.FPS = 90
	p.games[1] = g
	p.players = player.NewPlayers()
	p.players.Add(player.New(10, 10, "one", gamemode.Blitz))
	p.players.Add(player.New(20, 20, "two", gamemode.Blitz))

	accepted := p.filter()
	require.Len(t, accepted, 1)
	assert.Equal(t, 30, accepted[0].Duration)
}

func TestSpeedUpCheckLeavesDayBucketAlone(t *testing.T) {
	p := newTestPipeline(t, &fakeSource{games: map[uint32]*game.Game{}}, nil, Options{})
	p.games = map[uint32]*game.Game{}

	// A fast game close to midnight: stretching its duration for the
	// length check must not push the rating day across the boundary.
	g := quickmatch(1, time.Date(2025, time.April, 1, 23, 50, 0, 0, time.UTC), 10, 20, true)
	g.Duration = 500
	g.FPS = 90
	p.games[1] = g
	p.players = player.NewPlayers()
	p.players.Add(player.New(10, 10, "one", gamemode.Blitz))
	p.players.Add(player.New(20, 20, "two", gamemode.Blitz))

	accepted := p.filter()
	require.Len(t, accepted, 1)
	assert.Equal(t, 500, accepted[0].Duration)
	assert.Equal(t, time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC), p.gameDay(accepted[0]))
}

func TestUnknownDurationIsRated(t *testing.T) {
	p := newTestPipeline(t, &fakeSource{games: map[uint32]*game.Game{}}, nil, Options{})
	p.games = map[uint32]*game.Game{}

	// A zero duration means the length is unknown, not that the game
	// lasted no time. Those games rate.
	g := quickmatch(1, start, 10, 20, true)
	g.Duration = 0
	p.games[1] = g
	p.players = player.NewPlayers()
	p.players.Add(player.New(10, 10, "one", gamemode.Blitz))
	p.players.Add(player.New(20, 20, "two", gamemode.Blitz))

	accepted := p.filter()
	require.Len(t, accepted, 1)
}

func TestUserIDZeroFails(t *testing.T) {
	g := game.New(1, "Alamo", start.Unix(), 58, 700)
	g.AddPlayer(0, "ghost", faction.Soviet, true, 1, 0, 0)
	g.AddPlayer(20, "two", faction.Allied, false, 0, 0, 0)

	source := &fakeSource{games: map[uint32]*game.Game{1: g}}

	p := newTestPipeline(t, source, nil, Options{DryRun: true})
	err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user id 0")
}

func TestGameDayShift(t *testing.T) {
	p := newTestPipeline(t, &fakeSource{}, nil, Options{TimeShift: 6 * time.Hour})

	// 23:30 plus the shift lands on the next day.
	late := game.New(1, "Alamo", time.Date(2025, time.April, 1, 23, 30, 0, 0, time.UTC).Unix(), 58, 0)
	assert.Equal(t, time.Date(2025, time.April, 2, 0, 0, 0, 0, time.UTC), p.gameDay(late))
}
