// Package store defines the persistence contracts of the rating engine:
// where games and accounts come from and where finished ratings go.
package store

import (
	"context"
	"time"

	"github.com/blitzladder/blitzrate/internal/game"
	"github.com/blitzladder/blitzrate/internal/player"
)

// GameSource produces the raw inputs of a run: the full game history of
// a ladder plus the account records behind it.
type GameSource interface {
	// FetchGames loads the complete game history of the ladder, keyed
	// by game id.
	FetchGames(ctx context.Context, ladder string) (map[uint32]*game.Game, error)

	// LoadPlayers loads the accounts for all resolved user ids into the
	// collection.
	LoadPlayers(ctx context.Context, userIDs []uint32, players *player.Players, ladder string) error

	// PlayerFromAlias loads a single account by community alias,
	// returning 0 when the alias is unknown.
	PlayerFromAlias(alias string, players *player.Players) (uint32, error)

	// RelatedUsers lists accounts sharing the most recent IP address.
	RelatedUsers(userID uint32) ([]uint32, error)

	// Alias returns the community alias of an account, empty when none.
	Alias(userID uint32) (string, error)

	// Exists reports whether the account still exists.
	Exists(userID uint32) bool
}

// RatingRow is one finished rating entry to publish.
type RatingRow struct {
	UserID       uint32    `db:"user_id"`
	Alias        string    `db:"alias"`
	Faction      string    `db:"faction"`
	Elo          float64   `db:"elo"`
	Deviation    float64   `db:"deviation"`
	Games        int       `db:"games"`
	Active       bool      `db:"active"`
	RankActive   int       `db:"rank_active"`
	RankAllTime  int       `db:"rank_alltime"`
	PeakElo      float64   `db:"peak_elo"`
	LastGameDate time.Time `db:"last_game"`
}

// RatingSink publishes the finished ratings of a run.
type RatingSink interface {
	// WriteRatings replaces the ladder's rating rows in one
	// transaction, so readers never observe a half-written board.
	WriteRatings(ctx context.Context, ladder string, rows []RatingRow) error
}
