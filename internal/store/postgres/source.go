package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/blitzladder/blitzrate/internal/domain/faction"
	"github.com/blitzladder/blitzrate/internal/domain/gamemode"
	"github.com/blitzladder/blitzrate/internal/domain/gametype"
	"github.com/blitzladder/blitzrate/internal/game"
	"github.com/blitzladder/blitzrate/internal/player"
	"github.com/blitzladder/blitzrate/internal/store"
)

// Games before this date predate the ladder reset and are ignored.
const historyStart = "2022-01-01"

// Source implements store.GameSource against the ladder database.
type Source struct {
	db      *sqlx.DB
	timeout time.Duration
	mode    gamemode.Mode
}

var _ store.GameSource = (*Source)(nil)

// NewSource creates a game source for one game mode.
func NewSource(db *sqlx.DB, timeout time.Duration, mode gamemode.Mode) *Source {
	return &Source{db: db, timeout: timeout, mode: mode}
}

// The per-participant row of the game history queries.
type gameRow struct {
	GameID     uint32 `db:"game_id"`
	UserID     uint32 `db:"user_id"`
	Username   string `db:"username"`
	Ladder     string `db:"ladder"`
	Won        bool   `db:"won"`
	Points     int    `db:"points"`
	Country    string `db:"country"`
	MapName    string `db:"map"`
	Duration   int    `db:"duration"`
	FPS        int    `db:"fps"`
	Timestamp  int64  `db:"timestamp"`
}

const ladderGamesQuery = `
	SELECT
		games.id AS game_id,
		players.user_id AS user_id,
		players.username AS username,
		ladders.abbreviation AS ladder,
		player_game_reports.won AS won,
		player_game_reports.points AS points,
		COALESCE(sides.name, '') AS country,
		COALESCE(maps.name, games.scen) AS map,
		game_reports.duration AS duration,
		game_reports.fps AS fps,
		EXTRACT(EPOCH FROM games.created_at)::bigint AS timestamp
	FROM games
	JOIN ladder_history ON games.ladder_history_id = ladder_history.id
	JOIN ladders ON ladder_history.ladder_id = ladders.id
	JOIN game_reports ON game_reports.id = games.game_report_id
	JOIN player_game_reports ON player_game_reports.game_report_id = games.game_report_id
	JOIN players ON players.id = player_game_reports.player_id
	JOIN stats2 ON stats2.id = player_game_reports.stats_id
	LEFT JOIN sides ON sides.local_id = stats2.cty AND sides.ladder_id = ladders.id
	LEFT JOIN qm_matches qmm ON qmm.id = games.qm_match_id
	LEFT JOIN qm_maps qmap ON qmm.qm_map_id = qmap.id
	LEFT JOIN maps maps ON maps.id = qmap.map_id
	WHERE ladders.abbreviation = $1 AND games.created_at >= $2
	ORDER BY games.updated_at ASC`

// The alternating ra2/yr ladder of early 2022 tracked RA2 games under
// the yr abbreviation with quoted map names, so the RA2 history picks
// those up and the YR history drops them.
const ladderGamesRA2Query = `
	SELECT
		games.id AS game_id,
		players.user_id AS user_id,
		players.username AS username,
		ladders.abbreviation AS ladder,
		player_game_reports.won AS won,
		player_game_reports.points AS points,
		COALESCE(sides.name, '') AS country,
		COALESCE(maps.name, games.scen) AS map,
		game_reports.duration AS duration,
		game_reports.fps AS fps,
		EXTRACT(EPOCH FROM games.created_at)::bigint AS timestamp
	FROM games
	JOIN ladder_history ON games.ladder_history_id = ladder_history.id
	JOIN ladders ON ladder_history.ladder_id = ladders.id
	JOIN game_reports ON game_reports.id = games.game_report_id
	JOIN player_game_reports ON player_game_reports.game_report_id = games.game_report_id
	JOIN players ON players.id = player_game_reports.player_id
	JOIN stats2 ON stats2.id = player_game_reports.stats_id
	LEFT JOIN sides ON sides.local_id = stats2.cty AND sides.ladder_id = ladders.id
	LEFT JOIN qm_matches qmm ON qmm.id = games.qm_match_id
	LEFT JOIN qm_maps qmap ON qmm.qm_map_id = qmap.id
	LEFT JOIN maps maps ON maps.id = qmap.map_id
	WHERE (
		ladders.abbreviation IN ('ra2', 'ra2-new-maps')
		OR (
			ladders.abbreviation = 'yr'
			AND games.created_at >= '2022-01-02'
			AND games.created_at < '2022-05-01'
			AND COALESCE(maps.name, games.scen) LIKE '"%'
			AND COALESCE(maps.name, games.scen) LIKE '%"'
		)
	)
	ORDER BY games.updated_at ASC`

const ladderGamesYRQuery = `
	SELECT
		games.id AS game_id,
		players.user_id AS user_id,
		players.username AS username,
		ladders.abbreviation AS ladder,
		player_game_reports.won AS won,
		player_game_reports.points AS points,
		COALESCE(sides.name, '') AS country,
		COALESCE(maps.name, games.scen) AS map,
		game_reports.duration AS duration,
		game_reports.fps AS fps,
		EXTRACT(EPOCH FROM games.created_at)::bigint AS timestamp
	FROM games
	JOIN ladder_history ON games.ladder_history_id = ladder_history.id
	JOIN ladders ON ladder_history.ladder_id = ladders.id
	JOIN game_reports ON game_reports.id = games.game_report_id
	JOIN player_game_reports ON player_game_reports.game_report_id = games.game_report_id
	JOIN players ON players.id = player_game_reports.player_id
	JOIN stats2 ON stats2.id = player_game_reports.stats_id
	LEFT JOIN sides ON sides.local_id = stats2.cty AND sides.ladder_id = ladders.id
	LEFT JOIN qm_matches qmm ON qmm.id = games.qm_match_id
	LEFT JOIN qm_maps qmap ON qmm.qm_map_id = qmap.id
	LEFT JOIN maps maps ON maps.id = qmap.map_id
	WHERE
		ladders.abbreviation = 'yr'
		AND games.created_at >= $1
		AND NOT (
			games.created_at >= '2022-01-01'
			AND games.created_at < '2022-05-01'
			AND COALESCE(maps.name, games.scen) LIKE '"%'
			AND COALESCE(maps.name, games.scen) LIKE '%"'
		)
	ORDER BY games.updated_at ASC`

// Red Alert maps sides by sid instead of cty.
const ladderGamesRAQuery = `
	SELECT
		games.id AS game_id,
		players.user_id AS user_id,
		players.username AS username,
		ladders.abbreviation AS ladder,
		player_game_reports.won AS won,
		player_game_reports.points AS points,
		COALESCE(sides.name, '') AS country,
		COALESCE(maps.name, games.scen) AS map,
		game_reports.duration AS duration,
		game_reports.fps AS fps,
		EXTRACT(EPOCH FROM games.created_at)::bigint AS timestamp
	FROM games
	JOIN ladder_history ON games.ladder_history_id = ladder_history.id
	JOIN ladders ON ladder_history.ladder_id = ladders.id
	JOIN game_reports ON game_reports.id = games.game_report_id
	JOIN player_game_reports ON player_game_reports.game_report_id = games.game_report_id
	JOIN players ON players.id = player_game_reports.player_id
	JOIN stats2 ON stats2.id = player_game_reports.stats_id
	LEFT JOIN sides ON sides.ladder_id = ladders.id AND sides.local_id = stats2.sid
	LEFT JOIN qm_matches qmm ON qmm.id = games.qm_match_id
	LEFT JOIN qm_maps qmap ON qmm.qm_map_id = qmap.id
	LEFT JOIN maps maps ON maps.id = qmap.map_id
	WHERE ladders.abbreviation = 'ra' AND games.created_at >= $1
	ORDER BY games.updated_at ASC`

// FetchGames loads the complete game history of the ladder.
func (s *Source) FetchGames(ctx context.Context, ladder string) (map[uint32]*game.Game, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rows *sqlx.Rows
	var err error

	switch s.mode {
	case gamemode.RedAlert2:
		rows, err = s.db.QueryxContext(ctx, ladderGamesRA2Query)
	case gamemode.RedAlert:
		rows, err = s.db.QueryxContext(ctx, ladderGamesRAQuery, historyStart)
	case gamemode.YurisRevenge:
		rows, err = s.db.QueryxContext(ctx, ladderGamesYRQuery, historyStart)
	default:
		rows, err = s.db.QueryxContext(ctx, ladderGamesQuery, ladder, historyStart)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query games: %w", err)
	}
	defer rows.Close()

	games := make(map[uint32]*game.Game)

	for rows.Next() {
		var row gameRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("failed to scan game row: %w", err)
		}

		g, ok := games[row.GameID]
		if !ok {
			g = game.New(row.GameID, row.MapName, row.Timestamp, row.FPS, row.Duration)
			g.Type = gametype.Quickmatch
			g.Ladder = row.Ladder
			games[row.GameID] = g
		}

		f := faction.FromCountry(row.Country)
		if f == faction.Unknown {
			log.Warn().Str("country", row.Country).Uint32("game_id", row.GameID).
				Msg("cannot determine faction, game will probably be invalid")
			continue
		}

		g.AddPlayer(row.UserID, row.Username, f, row.Won, row.Points, 0.0, 0.0)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating game rows: %w", err)
	}

	return games, nil
}

type playerNameRow struct {
	UserID   uint32         `db:"user_id"`
	Username string         `db:"username"`
	Ladder   string         `db:"ladder"`
	Alias    sql.NullString `db:"alias"`
	Account  sql.NullString `db:"account"`
}

const playerQuery = `
	SELECT players.user_id AS user_id,
	       players.username AS username,
	       ladders.abbreviation AS ladder,
	       users.alias AS alias,
	       users.name AS account
	FROM players
	JOIN ladders ON players.ladder_id = ladders.id
	JOIN users ON players.user_id = users.id
	WHERE players.user_id = $1 AND ladders.abbreviation = $2
	ORDER BY players.username`

// Accounts can survive in game reports after their users row was
// deleted. The names are still needed to resolve old games.
const playerWithoutUserQuery = `
	SELECT players.user_id AS user_id,
	       players.username AS username,
	       ladders.abbreviation AS ladder,
	       NULL AS alias,
	       NULL AS account
	FROM players
	JOIN ladders ON players.ladder_id = ladders.id
	WHERE players.user_id = $1
	ORDER BY players.username`

// LoadPlayers loads the accounts of all resolved user ids.
func (s *Source) LoadPlayers(ctx context.Context, userIDs []uint32, players *player.Players, ladder string) error {
	for _, userID := range userIDs {
		loaded, err := s.loadPlayer(ctx, userID, players, ladder)
		if err != nil {
			return err
		}
		if loaded {
			continue
		}

		loaded, err = s.loadPlayerWithoutUser(ctx, userID, players, ladder)
		if err != nil {
			return err
		}
		if !loaded {
			log.Warn().Uint32("user_id", userID).Msg("no player record for user")
		}
	}
	return nil
}

func (s *Source) loadPlayer(ctx context.Context, userID uint32, players *player.Players, ladder string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryxContext(ctx, playerQuery, userID, ladder)
	if err != nil {
		return false, fmt.Errorf("failed to query player %d: %w", userID, err)
	}
	defer rows.Close()

	var p *player.Player
	for rows.Next() {
		var row playerNameRow
		if err := rows.StructScan(&row); err != nil {
			return false, fmt.Errorf("failed to scan player row: %w", err)
		}

		if p == nil {
			p = player.New(userID, userID, row.Account.String, s.mode)
			if row.Alias.Valid && row.Alias.String != "" {
				p.SetAlias(row.Alias.String)
			}
		}
		p.AddName(row.Username, row.Ladder)
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("error iterating player rows: %w", err)
	}

	if p == nil {
		log.Debug().Uint32("user_id", userID).Msg("unable to load player from table users")
		return false, nil
	}

	players.Add(p)
	log.Debug().Uint32("user_id", userID).Msg("loaded player")
	return true, nil
}

func (s *Source) loadPlayerWithoutUser(ctx context.Context, userID uint32, players *player.Players, ladder string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryxContext(ctx, playerWithoutUserQuery, userID)
	if err != nil {
		return false, fmt.Errorf("failed to query player names for %d: %w", userID, err)
	}
	defer rows.Close()

	var p *player.Player
	for rows.Next() {
		var row playerNameRow
		if err := rows.StructScan(&row); err != nil {
			return false, fmt.Errorf("failed to scan player name row: %w", err)
		}
		if p == nil {
			p = player.New(userID, userID, "", s.mode)
		}
		p.AddName(row.Username, row.Ladder)
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("error iterating player name rows: %w", err)
	}

	if p == nil {
		return false, nil
	}

	players.Add(p)
	return true, nil
}

const playerByAliasQuery = `
	SELECT players.user_id AS user_id,
	       players.username AS username,
	       ladders.abbreviation AS ladder,
	       users.alias AS alias,
	       users.name AS account
	FROM players
	JOIN ladders ON players.ladder_id = ladders.id
	JOIN users ON users.id = players.user_id
	WHERE users.alias = $1`

// PlayerFromAlias loads one account by community alias. Player names of
// all ladders are registered, the tournament overlays mix ladders.
func (s *Source) PlayerFromAlias(alias string, players *player.Players) (uint32, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	rows, err := s.db.QueryxContext(ctx, playerByAliasQuery, alias)
	if err != nil {
		return 0, fmt.Errorf("failed to query player by alias %q: %w", alias, err)
	}
	defer rows.Close()

	var userID uint32
	var p *player.Player

	for rows.Next() {
		var row playerNameRow
		if err := rows.StructScan(&row); err != nil {
			return 0, fmt.Errorf("failed to scan alias row: %w", err)
		}

		if userID == 0 {
			userID = row.UserID
			p = player.New(userID, userID, row.Account.String, s.mode)
			p.SetAlias(alias)
		}
		p.AddName(row.Username, row.Ladder)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating alias rows: %w", err)
	}

	if p != nil {
		players.Add(p)
	}
	return userID, nil
}

// RelatedUsers implements identity.Directory via the IP history.
func (s *Source) RelatedUsers(userID uint32) ([]uint32, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var ipAddressID sql.NullInt64
	err := s.db.QueryRowxContext(ctx,
		`SELECT ip_address_id FROM users WHERE id = $1`, userID).Scan(&ipAddressID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query ip address of user %d: %w", userID, err)
	}
	if !ipAddressID.Valid || ipAddressID.Int64 <= 0 {
		return nil, nil
	}

	var related []uint32
	err = s.db.SelectContext(ctx, &related,
		`SELECT user_id FROM ip_address_histories WHERE ip_address_id = $1 AND user_id != $2`,
		ipAddressID.Int64, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ip history: %w", err)
	}

	return related, nil
}

// Alias implements identity.Directory.
func (s *Source) Alias(userID uint32) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var alias sql.NullString
	err := s.db.QueryRowxContext(ctx,
		`SELECT alias FROM users WHERE id = $1`, userID).Scan(&alias)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query alias of user %d: %w", userID, err)
	}

	return alias.String, nil
}

// Exists implements identity.Directory.
func (s *Source) Exists(userID uint32) bool {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var one int
	err := s.db.QueryRowxContext(ctx,
		`SELECT 1 FROM users WHERE id = $1`, userID).Scan(&one)
	return err == nil
}
