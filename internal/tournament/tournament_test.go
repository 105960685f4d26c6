package tournament

import (
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
	"github.com/blitzladder/blitzrate/internal/player"
)

type stubLoader struct {
	known map[string]uint32
}

func (l *stubLoader) PlayerFromAlias(alias string, players *player.Players) (uint32, error) {
	userID, ok := l.known[alias]
	if !ok {
		return 0, nil
	}
	p := player.New(userID, userID, alias, gamemode.Blitz)
	p.SetAlias(alias)
	players.Add(p)
	return userID, nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tournament.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const sampleFile = `[
  {
    "map": "Alamo",
    "date": "20250510",
    "games": [
      {"p1": "Hero", "p2": "Villain", "f1": "a", "f2": "s", "result": 1},
      {"p1": "Hero", "p2": "Villain", "f1": "s", "f2": "s", "result": 2},
      {"p1": "Hero", "p2": "Villain", "f1": "a", "f2": "a", "result": 0}
    ]
  }
]`

func TestLoadFileSynthesizesGames(t *testing.T) {
	players := player.NewPlayers()
	games := make(map[uint32]*game.Game)
	loader := &stubLoader{known: map[string]uint32{"Hero": 42}}

	overlay := NewOverlay()
	err := overlay.LoadFile(writeFile(t, sampleFile), loader, players, gamemode.Blitz, "blitz", games)
	require.NoError(t, err)

	require.Len(t, games, 3)

	// Ids are issued one per game, starting at the synthetic base.
	first := games[100000000]
	second := games[100000001]
	third := games[100000002]
	require.NotNil(t, first)
	require.NotNil(t, second)
	require.NotNil(t, third)

	// Known alias resolves through the loader, the unknown one gets a
	// fake id above the synthetic base.
	assert.Equal(t, uint32(42), first.Participants[0].UserID)
	assert.GreaterOrEqual(t, first.Participants[1].UserID, uint32(100000000))
	assert.Equal(t, uint32(100000000), players.UserIDFromAlias("Villain"))

	// 8pm UTC plus the per-date minute counter: 1, then +5 per game.
	assert.Equal(t, time.Date(2025, time.May, 10, 20, 1, 0, 0, time.UTC).Unix(), first.Timestamp)
	assert.Equal(t, time.Date(2025, time.May, 10, 20, 6, 0, 0, time.UTC).Unix(), second.Timestamp)
	assert.Equal(t, time.Date(2025, time.May, 10, 20, 11, 0, 0, time.UTC).Unix(), third.Timestamp)

	assert.Equal(t, gametype.WorldSeries, first.Type)
	assert.Equal(t, "blitz", first.Ladder)

	assert.Equal(t, faction.Allied, first.Participants[0].Faction)
	assert.Equal(t, faction.Soviet, first.Participants[1].Faction)
	assert.True(t, first.Participants[0].Won)
	assert.False(t, first.Participants[1].Won)

	assert.True(t, second.Participants[1].Won)

	assert.True(t, third.Draw)
	assert.False(t, third.Participants[0].Won)
	assert.False(t, third.Participants[1].Won)
}

func TestLoadFileReusesLoadedPlayers(t *testing.T) {
	players := player.NewPlayers()
	existing := player.New(7, 7, "hero", gamemode.Blitz)
	existing.SetAlias("Hero")
	players.Add(existing)

	games := make(map[uint32]*game.Game)
	overlay := NewOverlay()
	err := overlay.LoadFile(writeFile(t, sampleFile), &stubLoader{}, players, gamemode.Blitz, "blitz", games)
	require.NoError(t, err)

	require.Len(t, games, 3)
	assert.Equal(t, uint32(7), games[100000000].Participants[0].UserID)
}

func TestLoadFileSkipsUnknownMap(t *testing.T) {
	const badMap = `[
	  {"map": "not a map", "date": "20250510",
	   "games": [{"p1": "A", "p2": "B", "f1": "s", "f2": "s", "result": 1}]}
	]`

	games := make(map[uint32]*game.Game)
	overlay := NewOverlay()
	err := overlay.LoadFile(writeFile(t, badMap), &stubLoader{}, player.NewPlayers(), gamemode.Blitz, "blitz", games)
	require.NoError(t, err)
	assert.Empty(t, games)
}

func TestLoadFileRejectsBadJSON(t *testing.T) {
	overlay := NewOverlay()
	err := overlay.LoadFile(writeFile(t, "{not json"), &stubLoader{}, player.NewPlayers(), gamemode.Blitz, "blitz", map[uint32]*game.Game{})
	assert.Error(t, err)
}

func TestLoadFileRejectsMissingFile(t *testing.T) {
	overlay := NewOverlay()
	err := overlay.LoadFile("/does/not/exist.json", &stubLoader{}, player.NewPlayers(), gamemode.Blitz, "blitz", map[uint32]*game.Game{})
	assert.Error(t, err)
}

func TestDateParsing(t *testing.T) {
	date, err := parseDate("20251231")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC), date)

	_, err = parseDate("20251341")
	assert.Error(t, err)

	_, err = parseDate("soon")
	assert.Error(t, err)
}
