package mapstats

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

var today = time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

func rated1v1(id uint32, ts time.Time, f1, f2 faction.Faction, elo1, dev1, elo2, dev2 float64, firstWon bool) *game.Game {
	g := game.New(id, "Alamo", ts.Unix(), 58, 700)
	g.AddPlayer(10, "one", f1, firstWon, 0, elo1, dev1)
	g.AddPlayer(20, "two", f2, !firstWon, 0, elo2, dev2)
	return g
}

func emptyPlayers() *player.Players {
	ps := player.NewPlayers()
	ps.Add(player.New(10, 10, "one", gamemode.Blitz))
	ps.Add(player.New(20, 20, "two", gamemode.Blitz))
	return ps
}

func TestPlayCountsAndDurations(t *testing.T) {
	s := New(gamemode.Blitz, today)
	ps := emptyPlayers()

	s.ProcessGame(rated1v1(1, today, faction.Soviet, faction.Allied, 1500, 80, 1500, 80, true), ps)
	s.ProcessGame(rated1v1(2, today, faction.Soviet, faction.Allied, 1500, 80, 1500, 80, false), ps)

	month := monthKey(today)
	require.NotNil(t, s.playedPerMonth[month])

	played := s.playedPerMonth[month]["Alamo"]
	require.NotNil(t, played)
	assert.Equal(t, 2, played.count)
	assert.Len(t, played.players, 2)

	duration := s.averageDuration["Alamo"]
	require.NotNil(t, duration)
	assert.Equal(t, uint64(1400), duration.seconds)
	assert.Equal(t, uint64(2), duration.games)
}

func TestZeroDurationGamesSkipAverages(t *testing.T) {
	s := New(gamemode.Blitz, today)
	ps := emptyPlayers()

	g := game.New(1, "Alamo", today.Unix(), 0, 0)
	g.AddPlayer(10, "one", faction.Soviet, true, 0, 1500, 80)
	g.AddPlayer(20, "two", faction.Allied, false, 0, 1500, 80)
	s.ProcessGame(g, ps)

	assert.Nil(t, s.averageDuration["Alamo"])
}

func TestUnknownBlitzMapIgnored(t *testing.T) {
	s := New(gamemode.Blitz, today)
	ps := emptyPlayers()

	g := game.New(1, "definitely not a map", today.Unix(), 58, 700)
	g.AddPlayer(10, "one", faction.Soviet, true, 0, 1500, 80)
	g.AddPlayer(20, "two", faction.Allied, false, 0, 1500, 80)
	s.ProcessGame(g, ps)

	assert.Empty(t, s.playedPerMonth)
}

func TestRA2MapNameNormalization(t *testing.T) {
	s := New(gamemode.RedAlert2, today)

	name, ok := s.canonicalMapName("4 Country  Swing (2-4)")
	require.True(t, ok)
	assert.Equal(t, "Country Swing", name)
}

func TestBalanceGatesLowRatedGames(t *testing.T) {
	s := New(gamemode.Blitz, today)
	ps := emptyPlayers()

	// Below the 1300 adjusted-elo gate.
	s.ProcessGame(rated1v1(1, today, faction.Soviet, faction.Allied, 1350, 80, 1400, 80, true), ps)
	assert.Nil(t, s.Balance(faction.AvS, "Alamo"))

	// High deviation gate.
	s.ProcessGame(rated1v1(2, today, faction.Soviet, faction.Allied, 1600, 120, 1600, 80, true), ps)
	assert.Nil(t, s.Balance(faction.AvS, "Alamo"))

	// Settled high-rated players count.
	s.ProcessGame(rated1v1(3, today, faction.Soviet, faction.Allied, 1600, 80, 1600, 80, true), ps)
	record := s.Balance(faction.AvS, "Alamo")
	require.NotNil(t, record)
	assert.Equal(t, 1, record.Count())
	// The soviet player won, so from the allied viewpoint it is a loss.
	assert.Equal(t, 0, record.Wins())
}

func TestBalanceMirrorsSetups(t *testing.T) {
	s := New(gamemode.Blitz, today)
	ps := emptyPlayers()

	// Yuri vs allied is recorded under AvY.
	s.ProcessGame(rated1v1(1, today, faction.Yuri, faction.Allied, 1600, 80, 1600, 80, true), ps)
	record := s.Balance(faction.AvY, "Alamo")
	require.NotNil(t, record)
	assert.Equal(t, 0, record.Wins())

	// Mirror games never count.
	s.ProcessGame(rated1v1(2, today, faction.Soviet, faction.Soviet, 1600, 80, 1600, 80, true), ps)
	assert.Equal(t, 1, s.GameCount())
}

func TestUpsetBoards(t *testing.T) {
	s := New(gamemode.Blitz, today)
	ps := emptyPlayers()

	// 1820 adjusted favorite loses to a 1500 adjusted underdog.
	s.ProcessGame(rated1v1(1, today, faction.Soviet, faction.Allied, 1400, 100, 1900, 80, true), ps)

	month := monthKey(today)
	require.Len(t, s.upsetsMonthly[month], 1)
	assert.InDelta(t, 320.0, s.upsetsMonthly[month][0].EloDifference, 1e-9)
	assert.Len(t, s.upsetsLast12, 1)
	assert.Len(t, s.upsetsLast30Days, 1)
	assert.Len(t, s.upsetsAllTime, 1)

	// A 150-point difference is no upset.
	s.ProcessGame(rated1v1(2, today, faction.Soviet, faction.Allied, 1450, 100, 1800, 100, true), ps)
	assert.Len(t, s.upsetsAllTime, 1)

	// Unsettled inactive losers are not upsets.
	s.ProcessGame(rated1v1(3, today, faction.Soviet, faction.Allied, 1400, 100, 2000, 150, true), ps)
	assert.Len(t, s.upsetsAllTime, 1)
}

func TestOldUpsetsLeaveRollingWindows(t *testing.T) {
	s := New(gamemode.Blitz, today)
	ps := emptyPlayers()

	old := today.AddDate(-2, 0, 0)
	s.ProcessGame(rated1v1(1, old, faction.Soviet, faction.Allied, 1400, 100, 1900, 80, true), ps)

	assert.Len(t, s.upsetsAllTime, 1)
	assert.Empty(t, s.upsetsLast12)
	assert.Empty(t, s.upsetsLast30Days)
}

func TestLongestGames(t *testing.T) {
	s := New(gamemode.Blitz, today)
	ps := emptyPlayers()

	short := game.New(1, "Alamo", today.Unix(), 58, 500)
	short.AddPlayer(10, "one", faction.Soviet, true, 0, 1500, 80)
	short.AddPlayer(20, "two", faction.Allied, false, 0, 1500, 80)
	s.ProcessGame(short, ps)
	assert.Empty(t, s.longestGames)

	long := game.New(2, "Alamo", today.Unix(), 59, 1200)
	long.AddPlayer(10, "one", faction.Soviet, true, 0, 1500, 80)
	long.AddPlayer(20, "two", faction.Allied, false, 0, 1500, 80)
	s.ProcessGame(long, ps)

	require.Len(t, s.longestGames, 1)
	assert.Equal(t, uint32(1200), s.longestGames[0].Duration)
}

func TestTeamStatsAndFinalize(t *testing.T) {
	s := New(gamemode.Blitz2v2, today)

	ps := player.NewPlayers()
	for id := uint32(1); id <= 4; id++ {
		ps.Add(player.New(id, id, "p", gamemode.Blitz2v2))
	}

	for i := 0; i < 25; i++ {
		g := game.New(uint32(i+1), "Alamo", today.AddDate(0, 0, -25+i).Unix(), 58, 700)
		// Team 1+2 wins most games against team 3+4.
		won := i%5 != 0
		g.AddPlayer(1, "a", faction.Soviet, won, 0, 1700, 70)
		g.AddPlayer(3, "c", faction.Soviet, !won, 0, 1500, 70)
		g.AddPlayer(2, "b", faction.Allied, won, 0, 1400, 70)
		g.AddPlayer(4, "d", faction.Yuri, !won, 0, 1450, 70)
		s.ProcessGame(g, ps)
	}

	winningTeam := teamID(1, 2)
	require.NotNil(t, s.teamStats[winningTeam])
	assert.Equal(t, 25, s.teamStats[winningTeam].Count())
	assert.Equal(t, 20, s.teamStats[winningTeam].Wins())

	s.Finalize(today, ps)

	// Nobody is active and nobody clears 1300 combined, so the board
	// stays empty despite the games.
	assert.Empty(t, s.Teams())
}

func TestExportsWriteFiles(t *testing.T) {
	s := New(gamemode.Blitz, today)
	ps := emptyPlayers()

	for i := 0; i < 60; i++ {
		won := i%2 == 0
		s.ProcessGame(rated1v1(uint32(i+1), today.AddDate(0, 0, -i), faction.Soviet, faction.Allied, 1600, 80, 1600, 80, won), ps)
	}
	// One upset for the boards.
	s.ProcessGame(rated1v1(100, today, faction.Soviet, faction.Allied, 1400, 100, 1900, 80, true), ps)

	s.Finalize(today, ps)

	dir := t.TempDir()
	require.NoError(t, s.ExportMapStats(dir))
	require.NoError(t, s.ExportMapsPlayed(dir))
	require.NoError(t, s.ExportLongestGames(dir, ps))
	require.NoError(t, s.ExportUpsets(dir, ps))

	raw, err := os.ReadFile(filepath.Join(dir, "blitz_mapstats_avs.json"))
	require.NoError(t, err)

	var data struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &data))
	require.Len(t, data.Data, 1)
	assert.Equal(t, "Alamo", data.Data[0]["map"])

	_, err = os.Stat(filepath.Join(dir, "blitz_upsets_alltime.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "blitz_maps_played_2025.json"))
	assert.NoError(t, err)
}
