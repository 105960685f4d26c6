package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/blitzladder/blitzrate/internal/store"
)

// Sink implements store.RatingSink on the ladder database.
type Sink struct {
	db      *sqlx.DB
	timeout time.Duration
}

var _ store.RatingSink = (*Sink)(nil)

// NewSink creates a rating sink with the given per-call timeout.
func NewSink(db *sqlx.DB, timeout time.Duration) *Sink {
	return &Sink{db: db, timeout: timeout}
}

const insertRatingQuery = `
	INSERT INTO ladder_ratings (
		ladder, user_id, alias, faction, elo, deviation, games,
		active, rank_active, rank_alltime, peak_elo, last_game, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())`

// WriteRatings replaces the ladder's rating rows in a single
// transaction. Readers either see the previous run or this one.
func (s *Sink) WriteRatings(ctx context.Context, ladder string, rows []store.RatingRow) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ladder_ratings WHERE ladder = $1`, ladder); err != nil {
		return fmt.Errorf("failed to clear ratings of ladder %s: %w", ladder, err)
	}

	stmt, err := tx.PreparexContext(ctx, insertRatingQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare rating insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		_, err := stmt.ExecContext(ctx,
			ladder, row.UserID, row.Alias, row.Faction,
			row.Elo, row.Deviation, row.Games, row.Active,
			row.RankActive, row.RankAllTime, row.PeakElo, row.LastGameDate)
		if err != nil {
			return fmt.Errorf("failed to insert rating for user %d: %w", row.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ratings: %w", err)
	}

	log.Info().Str("ladder", ladder).Int("rows", len(rows)).Msg("ratings published")
	return nil
}
