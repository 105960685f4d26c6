package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blitzladder/blitzrate/internal/domain/faction"
	"github.com/blitzladder/blitzrate/internal/domain/gamemode"
	"github.com/blitzladder/blitzrate/internal/game"
	"github.com/blitzladder/blitzrate/internal/player"
)

var start = time.Date(2025, time.May, 1, 10, 0, 0, 0, time.UTC)

// playDays lets two players trade wins over several days so both end up
// active with full rating histories.
func playDays(t *testing.T, ps *player.Players, days, gamesPerDay int) []*game.Game {
	t.Helper()

	var games []*game.Game
	id := uint32(1)

	for day := 0; day < days; day++ {
		date := start.AddDate(0, 0, day)
		for i := 0; i < gamesPerDay; i++ {
			g := game.New(id, "Alamo", date.Add(time.Duration(i)*time.Minute).Unix(), 58, 700)
			firstWins := i%2 == 0
			g.AddPlayer(10, "one", faction.Soviet, firstWins, 0, 0, 0)
			g.AddPlayer(20, "two", faction.Allied, !firstWins, 0, 0, 0)

			for index := range g.Participants {
				p := ps.MustGet(g.Participants[index].UserID)
				f := g.Participants[index].Faction
				g.SetRatingAndDeviation(index, p.Elo(f), p.Deviation(f))
				require.NoError(t, p.ProcessGame(g, index, false, ps))
			}
			games = append(games, g)
			id++
		}
		ps.Update()
		ps.Apply(date.Truncate(24*time.Hour), true, gamemode.Blitz)
	}

	return games
}

func ratedPlayers(t *testing.T) (*player.Players, []*game.Game) {
	t.Helper()

	ps := player.NewPlayers()
	one := player.New(10, 10, "one", gamemode.Blitz)
	one.SetAlias("Hero")
	ps.Add(one)
	two := player.New(20, 20, "two", gamemode.Blitz)
	two.SetAlias("Rival")
	ps.Add(two)

	games := playDays(t, ps, 5, 8)
	ps.Finalize()
	return ps, games
}

func readBoard(t *testing.T, path string) []map[string]any {
	t.Helper()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var data struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &data))
	return data.Data
}

func TestExportActivePlayers(t *testing.T) {
	ps, _ := ratedPlayers(t)
	require.Equal(t, 2, ps.ActivePlayerCount())

	dir := t.TempDir()
	e := NewExporter(dir, gamemode.Blitz, start.AddDate(0, 0, 5))
	require.NoError(t, e.ExportActivePlayers(ps))

	rows := readBoard(t, filepath.Join(dir, "blitz_active_players.json"))
	require.Len(t, rows, 2)

	assert.Equal(t, float64(1), rows[0]["rank"])
	assert.NotEmpty(t, rows[0]["name"])
	assert.Contains(t, rows[0], "days_to_inactivity")
	assert.Contains(t, rows[0], "sov_elo_deviation")
}

func TestExportBestOfAllTime(t *testing.T) {
	ps, _ := ratedPlayers(t)

	dir := t.TempDir()
	e := NewExporter(dir, gamemode.Blitz, start.AddDate(0, 0, 5))
	require.NoError(t, e.ExportBestOfAllTime(ps))

	rows := readBoard(t, filepath.Join(dir, "blitz_bestofalltime.json"))
	require.NotEmpty(t, rows)
	assert.Equal(t, "ACTIVE", rows[0]["status"])
}

func TestExportMostDaysActiveCap(t *testing.T) {
	ps, _ := ratedPlayers(t)

	dir := t.TempDir()
	e := NewExporter(dir, gamemode.Blitz, start.AddDate(0, 0, 5))
	require.NoError(t, e.ExportMostDaysActive(ps))

	rows := readBoard(t, filepath.Join(dir, "blitz_daysactive.json"))
	require.Len(t, rows, 2)
	assert.Contains(t, rows[0], "days")
}

func TestExportAlphabeticalAndAllPlayers(t *testing.T) {
	ps, _ := ratedPlayers(t)

	dir := t.TempDir()
	e := NewExporter(dir, gamemode.Blitz, start.AddDate(0, 0, 5))
	require.NoError(t, e.ExportAlphabetical(ps))
	require.NoError(t, e.ExportAllPlayers(ps))

	alphabetical := readBoard(t, filepath.Join(dir, "blitz_players_all_alphabetical.json"))
	require.Len(t, alphabetical, 2)
	assert.Equal(t, "Hero", alphabetical[0]["name"])

	all := readBoard(t, filepath.Join(dir, "blitz_all_players.json"))
	require.Len(t, all, 2)
	assert.Equal(t, "#10", all[0]["id"])
}

func TestExportNewPlayersExcludesActiveAndStale(t *testing.T) {
	ps := player.NewPlayers()
	one := player.New(10, 10, "one", gamemode.Blitz)
	one.SetAlias("Hero")
	ps.Add(one)
	two := player.New(20, 20, "two", gamemode.Blitz)
	two.SetAlias("Rival")
	ps.Add(two)
	playDays(t, ps, 5, 8)

	// A newcomer with a single recent game.
	fresh := player.New(30, 30, "three", gamemode.Blitz)
	fresh.SetAlias("Newbie")
	ps.Add(fresh)

	g := game.New(9999, "Alamo", start.AddDate(0, 0, 4).Unix(), 58, 700)
	g.AddPlayer(30, "three", faction.Soviet, true, 0, 1500, 350)
	g.AddPlayer(10, "one", faction.Allied, false, 0, 1500, 80)
	for index := range g.Participants {
		p := ps.MustGet(g.Participants[index].UserID)
		require.NoError(t, p.ProcessGame(g, index, false, ps))
	}
	ps.Update()
	ps.Apply(start.AddDate(0, 0, 5), true, gamemode.Blitz)

	dir := t.TempDir()
	e := NewExporter(dir, gamemode.Blitz, start.AddDate(0, 0, 6))
	require.NoError(t, e.ExportNewPlayers(ps))

	rows := readBoard(t, filepath.Join(dir, "blitz_new_players.json"))
	require.Len(t, rows, 1)
	assert.Equal(t, "Newbie", rows[0]["name"])
}

func TestExportPlayerDetails(t *testing.T) {
	ps, games := ratedPlayers(t)

	dir := t.TempDir()
	e := NewExporter(dir, gamemode.Blitz, start.AddDate(0, 0, 5))
	require.NoError(t, e.ExportPlayerDetails(ps, games))

	raw, err := os.ReadFile(filepath.Join(dir, "blitz_player_10.json"))
	require.NoError(t, err)

	var detail map[string]any
	require.NoError(t, json.Unmarshal(raw, &detail))

	assert.Equal(t, "Hero", detail["alias"])
	assert.Equal(t, float64(20), detail["wins"])
	assert.Equal(t, float64(20), detail["losses"])
	assert.Contains(t, detail, "historical_elo")
	assert.Contains(t, detail, "vs")

	// 40 games against an active rival clears the head-to-head gate.
	vs := detail["vs"].([]any)
	require.Len(t, vs, 1)
	assert.Equal(t, "Rival", vs[0].(map[string]any)["alias"])
}

func TestHeadToHeadRowsBestMatchupFirst(t *testing.T) {
	ps := player.NewPlayers()
	for id, alias := range map[uint32]string{10: "Hero", 20: "Rival", 30: "Whipped"} {
		p := player.New(id, id, "account", gamemode.Blitz)
		p.SetAlias(alias)
		ps.Add(p)
	}

	// Hero splits the games with Rival but never loses to Whipped.
	id := uint32(1)
	for day := 0; day < 5; day++ {
		date := start.AddDate(0, 0, day)
		for i := 0; i < 5; i++ {
			for _, opponent := range []struct {
				userID uint32
				wins   bool
			}{{20, i%2 == 0}, {30, true}} {
				g := game.New(id, "Alamo", date.Add(time.Duration(id)*time.Minute).Unix(), 58, 700)
				g.AddPlayer(10, "one", faction.Soviet, opponent.wins, 0, 0, 0)
				g.AddPlayer(opponent.userID, "other", faction.Allied, !opponent.wins, 0, 0, 0)

				for index := range g.Participants {
					p := ps.MustGet(g.Participants[index].UserID)
					f := g.Participants[index].Faction
					g.SetRatingAndDeviation(index, p.Elo(f), p.Deviation(f))
					require.NoError(t, p.ProcessGame(g, index, false, ps))
				}
				id++
			}
		}
		ps.Update()
		ps.Apply(date.Truncate(24*time.Hour), true, gamemode.Blitz)
	}
	ps.Finalize()

	e := NewExporter(t.TempDir(), gamemode.Blitz, start.AddDate(0, 0, 5))
	rows := e.headToHeadRows(ps.MustGet(10), ps)
	require.Len(t, rows, 2)
	assert.Equal(t, "Whipped", rows[0]["alias"])
	assert.Equal(t, "Rival", rows[1]["alias"])
}

func TestExportAllWritesRunMetadata(t *testing.T) {
	ps, games := ratedPlayers(t)

	dir := t.TempDir()
	e := NewExporter(dir, gamemode.Blitz, start.AddDate(0, 0, 5))
	require.NoError(t, e.ExportAll(ps, games))

	raw, err := os.ReadFile(filepath.Join(dir, "blitz_run.json"))
	require.NoError(t, err)

	var meta map[string]any
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, "blitz", meta["ladder"])
	assert.NotEmpty(t, meta["run_id"])
}
