package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blitzladder/blitzrate/internal/domain/faction"
)

func oneVsOne(id uint32, wonFirst bool) *Game {
	g := New(id, "Alamo", 1700000000, 58, 600)
	g.AddPlayer(10, "alpha", faction.Soviet, wonFirst, 0, 1600, 90)
	g.AddPlayer(20, "beta", faction.Allied, !wonFirst, 0, 1500, 110)
	return g
}

func twoVsTwo(id uint32) *Game {
	g := New(id, "Alamo", 1700000000, 58, 900)
	g.AddPlayer(1, "a", faction.Soviet, true, 0, 1800, 80)
	g.AddPlayer(2, "b", faction.Allied, false, 0, 1600, 80)
	g.AddPlayer(3, "c", faction.Soviet, true, 0, 1800, 80)
	g.AddPlayer(4, "d", faction.Yuri, false, 0, 1600, 80)
	return g
}

func TestDateFloorsToDay(t *testing.T) {
	g := New(1, "Alamo", 1700000000, 0, 0)

	// 2023-11-14T22:13:20Z floors to midnight.
	assert.Equal(t, time.Date(2023, time.November, 14, 0, 0, 0, 0, time.UTC), g.Date())
}

func TestDetermineWinnerKeepsConsistentFlags(t *testing.T) {
	g := oneVsOne(1, true)
	g.DetermineWinner()

	assert.True(t, g.Participants[0].Won)
	assert.False(t, g.Participants[1].Won)
}

func TestDetermineWinnerFallsBackToPoints(t *testing.T) {
	g := New(1, "Alamo", 1700000000, 58, 600)
	g.AddPlayer(10, "alpha", faction.Soviet, false, 12, 1600, 90)
	g.AddPlayer(20, "beta", faction.Allied, false, -4, 1500, 110)

	g.DetermineWinner()

	assert.True(t, g.Participants[0].Won)
	assert.False(t, g.Participants[1].Won)
}

func TestIsValid1v1(t *testing.T) {
	g := oneVsOne(1, true)
	assert.True(t, g.IsValid())

	noID := oneVsOne(0, true)
	assert.False(t, noID.IsValid())

	bothWon := oneVsOne(2, true)
	bothWon.Participants[1].Won = true
	assert.False(t, bothWon.IsValid())

	draw := oneVsOne(3, true)
	draw.Participants[0].Won = false
	draw.Draw = true
	assert.True(t, draw.IsValid())

	selfPlay := oneVsOne(4, true)
	selfPlay.Participants[1].UserID = selfPlay.Participants[0].UserID
	assert.False(t, selfPlay.IsValid())
}

func TestIsValid2v2(t *testing.T) {
	g := twoVsTwo(1)
	assert.True(t, g.IsValid())

	drawn := twoVsTwo(2)
	drawn.Draw = true
	assert.False(t, drawn.IsValid())

	lopsided := twoVsTwo(3)
	lopsided.Participants[1].Won = true
	assert.False(t, lopsided.IsValid())

	duplicated := twoVsTwo(4)
	duplicated.Participants[3].UserID = 1
	assert.False(t, duplicated.IsValid())
}

func TestMateAndOpponentIndices(t *testing.T) {
	g := twoVsTwo(1)

	assert.Equal(t, 2, g.MateIndex(0))
	assert.Equal(t, 0, g.MateIndex(2))
	assert.Equal(t, 3, g.MateIndex(1))

	first, second := g.OpponentIndices(0)
	assert.Equal(t, 1, first)
	assert.Equal(t, 3, second)

	first, second = g.OpponentIndices(1)
	assert.Equal(t, 0, first)
	assert.Equal(t, 2, second)
}

func TestDifferenceForGreatestDefeat(t *testing.T) {
	g := oneVsOne(1, true)
	// Winner 1600+90, loser 1500-110.
	assert.InDelta(t, (1500.0-110.0)-(1600.0+90.0), g.DifferenceForGreatestDefeat(), 1e-9)

	drawn := oneVsOne(2, true)
	drawn.Draw = true
	assert.Zero(t, drawn.DifferenceForGreatestDefeat())
}

func TestIsUnderdogWin(t *testing.T) {
	favorite := oneVsOne(1, true)
	assert.False(t, favorite.IsUnderdogWin())

	underdog := oneVsOne(2, false)
	assert.True(t, underdog.IsUnderdogWin())

	drawn := oneVsOne(3, true)
	drawn.Draw = true
	assert.False(t, drawn.IsUnderdogWin())
}

func TestSetupAndFactionResult(t *testing.T) {
	g := oneVsOne(1, true)

	assert.Equal(t, faction.SvA, g.Setup())
	assert.Equal(t, "Sva", g.FactionResult(false))
	assert.Equal(t, "Sva", g.FactionResult(true))

	lost := oneVsOne(2, false)
	assert.Equal(t, "svA", lost.FactionResult(false))
	assert.Equal(t, "Avs", lost.FactionResult(true))
}

func TestWinnerAndPlayerIndex(t *testing.T) {
	g := oneVsOne(1, false)

	require.Equal(t, 1, g.WinnerIndex())
	assert.Equal(t, 0, g.PlayerIndex(10))
	assert.Equal(t, 1, g.PlayerIndex(20))
	assert.Equal(t, -1, g.PlayerIndex(999))

	drawn := oneVsOne(2, true)
	drawn.Draw = true
	assert.Equal(t, -1, drawn.WinnerIndex())
}

func TestMapResolution(t *testing.T) {
	g := New(1, "Alamo", 1700000000, 0, 0)
	assert.Equal(t, 0, g.MapIndex)

	g.SetMapName("definitely not a map")
	assert.Equal(t, -1, g.MapIndex)
}
