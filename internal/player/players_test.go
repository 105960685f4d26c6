package player

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blitzladder/blitzrate/internal/domain/faction"
	"github.com/blitzladder/blitzrate/internal/domain/gamemode"
)

func TestUserIDsSortedAscending(t *testing.T) {
	ps := NewPlayers()
	ps.Add(New(30, 30, "c", gamemode.Blitz))
	ps.Add(New(10, 10, "a", gamemode.Blitz))
	ps.Add(New(20, 20, "b", gamemode.Blitz))

	assert.Equal(t, []uint32{10, 20, 30}, ps.UserIDs())
	assert.Equal(t, 3, ps.Count())
}

func TestGetUnknownPlayer(t *testing.T) {
	ps := NewPlayers()
	_, err := ps.Get(5)
	assert.Error(t, err)
	assert.False(t, ps.Contains(5))
}

func TestNameResolutionPerLadder(t *testing.T) {
	ps := NewPlayers()

	p := New(10, 10, "acct", gamemode.Blitz)
	p.AddName("Hero", "blitz")
	p.AddName("Hero2", "blitz")
	ps.Add(p)

	assert.Equal(t, uint32(10), ps.UserID("Hero", "blitz"))
	assert.Equal(t, uint32(10), ps.UserID("Hero2", "blitz"))
	assert.Equal(t, uint32(0), ps.UserID("Hero", "yr"))
	assert.Equal(t, uint32(0), ps.UserID("Nobody", "blitz"))
	assert.True(t, ps.Exists("Hero"))
	assert.False(t, ps.Exists("Nobody"))
}

func TestMarkDuplicatesRedirectsNames(t *testing.T) {
	ps := NewPlayers()

	primary := New(10, 10, "main", gamemode.Blitz)
	primary.AddName("Main", "blitz")
	ps.Add(primary)

	smurf := New(20, 10, "smurf", gamemode.Blitz)
	smurf.AddName("Smurf", "blitz")
	ps.Add(smurf)

	ps.MarkDuplicates(10, map[uint32]struct{}{20: {}})

	assert.Equal(t, uint32(10), ps.UserID("Smurf", "blitz"))
	assert.Equal(t, uint32(10), ps.UserID("Main", "blitz"))
}

func TestUserIDFromAlias(t *testing.T) {
	ps := NewPlayers()

	p := New(10, 10, "acct", gamemode.Blitz)
	p.SetAlias("Hero")
	ps.Add(p)
	ps.Add(New(20, 20, "other", gamemode.Blitz))

	assert.Equal(t, uint32(10), ps.UserIDFromAlias("Hero"))
	assert.Equal(t, uint32(0), ps.UserIDFromAlias("Nobody"))
}

func TestRatingSource(t *testing.T) {
	ps := NewPlayers()
	ps.Add(New(10, 10, "acct", gamemode.Blitz))

	r, ok := ps.Rating(10, faction.Soviet)
	require.True(t, ok)
	assert.InDelta(t, 1500.0, r.Elo(), 1e-9)

	_, ok = ps.Rating(99, faction.Soviet)
	assert.False(t, ok)

	assert.False(t, ps.WasActive(10))
	assert.False(t, ps.WasActive(99))
}

func TestHasPendingGames(t *testing.T) {
	ps := twoPlayers(t)
	assert.False(t, ps.HasPendingGames())

	play(t, ps, newGame(1, day(2025, time.March, 1), 10, 20, faction.Soviet, faction.Allied, true))
	assert.True(t, ps.HasPendingGames())

	ps.Update()
	assert.False(t, ps.HasPendingGames())
}

func TestActivePlayerCount(t *testing.T) {
	ps := twoPlayers(t)
	assert.Equal(t, 0, ps.ActivePlayerCount())

	forceActive(ps.MustGet(10))
	assert.Equal(t, 1, ps.ActivePlayerCount())
}

func TestActiveSortedByRating(t *testing.T) {
	ps := twoPlayers(t)
	ps.Add(New(30, 30, "three", gamemode.Blitz))

	date := day(2025, time.March, 1)
	for d := 0; d < 5; d++ {
		for i := 0; i < 8; i++ {
			id := uint32(d*8 + i + 1)
			// Ten wins three, so their active ratings diverge.
			play(t, ps, newGame(id, date.AddDate(0, 0, d), 10, 30, faction.Soviet, faction.Allied, true))
		}
		ps.Update()
		ps.Apply(date.AddDate(0, 0, d), true, gamemode.Blitz)
	}

	require.True(t, ps.MustGet(10).IsActive())
	require.True(t, ps.MustGet(30).IsActive())
	require.False(t, ps.MustGet(20).IsActive())

	ranked := ps.ActiveSortedByRating(gamemode.Blitz)
	require.Len(t, ranked, 2)
	assert.Equal(t, uint32(10), ranked[0].UserID())
	assert.Equal(t, uint32(30), ranked[1].UserID())

	yesterdays := ps.ActiveSortedByYesterdaysRating(gamemode.Blitz)
	require.Len(t, yesterdays, 2)
	assert.Equal(t, uint32(10), yesterdays[0].UserID())

	peaks := ps.PeakSorted(gamemode.Blitz)
	require.Len(t, peaks, 2)
	assert.Equal(t, uint32(10), peaks[0].UserID())
}

func TestFinalizeFreezesRecords(t *testing.T) {
	ps := twoPlayers(t)
	play(t, ps, newGame(1, day(2025, time.March, 1), 10, 20, faction.Soviet, faction.Allied, true))

	ps.Finalize()

	probs := ps.MustGet(10).VsOtherPlayers()[20]
	require.NotNil(t, probs)
	assert.True(t, probs.IsFinalized())
	assert.Panics(t, func() { probs.AddGame(0.5, day(2025, time.March, 2), true) })
}
