package mapstats

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/blitzladder/blitzrate/internal/domain/faction"
	"github.com/blitzladder/blitzrate/internal/domain/gamemode"
	"github.com/blitzladder/blitzrate/internal/player"
)

const dateFormat = "2006-01-02"

type column struct {
	Index  int    `json:"index"`
	Header string `json:"header"`
	Name   string `json:"name"`
	Info   string `json:"info,omitempty"`
}

type board struct {
	Description string   `json:"description"`
	Columns     []column `json:"columns"`
	Data        any      `json:"data"`
}

func writeJSON(directory, filename string, value any) error {
	raw, err := json.MarshalIndent(value, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filename, err)
	}
	if err := os.WriteFile(filepath.Join(directory, filename), append(raw, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	return nil
}

func alias(players *player.Players, userID uint32) string {
	p, err := players.Get(userID)
	if err != nil {
		return "???"
	}
	return p.Alias()
}

func formatDuration(seconds uint64) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// balanceVerdict spells out the win rate for the Blitz community page.
func balanceVerdict(result float64, first, second string) string {
	switch {
	case result > 0.55:
		return "Much better for " + first + "."
	case result > 0.525:
		return "Better for " + first + "."
	case result > 0.51:
		return "Slightly better for " + first + "."
	case result > 0.49:
		return "Even map for both factions."
	case result > 0.475:
		return "Slightly better for " + second + "."
	case result > 0.45:
		return "Better for " + second + "."
	default:
		return "Much better for " + second + "."
	}
}

// ExportMapStats writes one balance board per cross-faction setup.
// Maps need at least 50 rated games to appear.
func (s *Stats) ExportMapStats(directory string) error {
	for _, setup := range []faction.Setup{faction.AvS, faction.AvY, faction.YvS} {
		first := setup.First().String()
		second := setup.Second().String()
		loweredFirst := strings.ToLower(first)
		loweredSecond := strings.ToLower(second)

		records := s.balance[setup]
		mapNames := make([]string, 0, len(records))
		for name := range records {
			mapNames = append(mapNames, name)
		}
		sort.Strings(mapNames)

		rows := make([]map[string]any, 0, len(mapNames))
		rank := 1
		for _, name := range mapNames {
			record := records[name]
			if record.Count() < 50 {
				continue
			}

			row := map[string]any{
				"map":                    name,
				"expected":               record.Expected(),
				"actual":                 record.Actual(),
				"win_rate":               fmt.Sprintf("%.2f", record.NormalizedResult()*100),
				"win_rate_rounded":       uint32(record.NormalizedResult() * 100),
				loweredFirst + "_wins":   record.Wins(),
				loweredFirst + "_losses": record.Losses(),
				"game_count":             record.Count(),
				"rank":                   rank,
			}
			rank++

			if duration := s.averageDuration[name]; duration != nil && duration.games > 0 {
				row["average_duration"] = formatDuration(duration.seconds / duration.games)
			}
			if s.mode == gamemode.Blitz {
				row["result"] = balanceVerdict(record.NormalizedResult(), loweredFirst, loweredSecond)
			}

			rows = append(rows, row)
		}

		if len(rows) == 0 {
			continue
		}

		data := board{
			Description: "Map statistics, sorted by most " + loweredFirst + " favoured maps",
			Columns: []column{
				{Index: 0, Header: "#", Name: "rank"},
				{Index: 1, Header: "Map", Name: "map"},
				{Index: 2, Header: "Games", Name: "game_count",
					Info: "Number of games taken into account. Some games are sorted out, e.g. very low level games or games with players on high deviation."},
				{Index: 3, Header: first + " win rate", Name: "win_rate",
					Info: "The win rate considers elo. A value of e.g. 55% means that an " + loweredFirst + " player with the exact same elo as a " + loweredSecond + " player, is expected to win 55% of the games they play on this map."},
				{Index: 4, Header: "&#x2300; Duration", Name: "average_duration",
					Info: "The average game time on this map with this specific setup."},
			},
			Data: rows,
		}

		filename := s.mode.ShortName() + "_mapstats_" + strings.ToLower(setup.String()) + ".json"
		if err := writeJSON(directory, filename, data); err != nil {
			return err
		}
	}

	return nil
}

type playedRow struct {
	Rank             int    `json:"rank"`
	Name             string `json:"name"`
	Count            int    `json:"count"`
	DifferentPlayers int    `json:"different_players"`
}

func playedRows(maps map[string]*mapPlayed) []playedRow {
	names := make([]string, 0, len(maps))
	for name := range maps {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if maps[names[i]].count != maps[names[j]].count {
			return maps[names[i]].count > maps[names[j]].count
		}
		return names[i] < names[j]
	})

	rows := make([]playedRow, 0, len(names))
	for rank, name := range names {
		rows = append(rows, playedRow{
			Rank:             rank + 1,
			Name:             name,
			Count:            maps[name].count,
			DifferentPlayers: len(maps[name].players),
		})
	}
	return rows
}

// ExportMapsPlayed writes the monthly and yearly play counts.
func (s *Stats) ExportMapsPlayed(directory string) error {
	yearly := make(map[int]map[string]*mapPlayed)

	months := make([]int, 0, len(s.playedPerMonth))
	for month := range s.playedPerMonth {
		months = append(months, month)
	}
	sort.Ints(months)

	for _, month := range months {
		maps := s.playedPerMonth[month]

		year := month / 100
		if yearly[year] == nil {
			yearly[year] = make(map[string]*mapPlayed)
		}
		for name, played := range maps {
			merged := yearly[year][name]
			if merged == nil {
				merged = &mapPlayed{players: make(map[uint32]struct{})}
				yearly[year][name] = merged
			}
			merged.count += played.count
			for id := range played.players {
				merged.players[id] = struct{}{}
			}
		}

		filename := fmt.Sprintf("%s_maps_played_%d-%02d.json", s.mode.ShortName(), year, month%100)
		if err := writeJSON(directory, filename, playedRows(maps)); err != nil {
			return err
		}
	}

	years := make([]int, 0, len(yearly))
	for year := range yearly {
		years = append(years, year)
	}
	sort.Ints(years)

	for _, year := range years {
		filename := fmt.Sprintf("%s_maps_played_%d.json", s.mode.ShortName(), year)
		if err := writeJSON(directory, filename, playedRows(yearly[year])); err != nil {
			return err
		}
	}

	return nil
}

// joinSide renders one side of an upset row, with elos for teams.
func joinSide(players *player.Players, ids []uint32, elos []int) string {
	if len(ids) == 0 {
		return "???"
	}
	if len(ids) == 1 {
		return alias(players, ids[0])
	}
	return fmt.Sprintf("%s (%d) / %s (%d)", alias(players, ids[0]), elos[0], alias(players, ids[1]), elos[1])
}

func sideFaction(factions []faction.Faction) string {
	if len(factions) == 0 {
		return "?"
	}
	return factions[0].ShortName()
}

// ExportLongestGames writes the longest-game board.
func (s *Stats) ExportLongestGames(directory string, players *player.Players) error {
	rows := make([]map[string]any, 0, len(s.longestGames))

	for rank, upset := range s.longestGames {
		if len(upset.Winners) == 0 || len(upset.Losers) == 0 {
			log.Error().Msg("no winners or losers while exporting longest game")
			continue
		}

		rows = append(rows, map[string]any{
			"rank":             rank + 1,
			"date":             upset.Date.Format(dateFormat),
			"winner":           joinAliases(players, upset.Winners),
			"loser":            joinAliases(players, upset.Losers),
			"winner_faction":   sideFaction(upset.WinnerFactions),
			"loser_faction":    sideFaction(upset.LoserFactions),
			"map":              upset.Map,
			"duration_seconds": upset.Duration,
		})
	}

	return writeJSON(directory, s.mode.ShortName()+"_longest_games.json", rows)
}

func joinAliases(players *player.Players, ids []uint32) string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = alias(players, id)
	}
	return strings.Join(names, "/")
}

// ExportBestTeams writes the 2v2 team performance board, top 30.
func (s *Stats) ExportBestTeams(directory string, players *player.Players) error {
	if len(s.teams) == 0 {
		return nil
	}

	data := board{
		Description: "Top 40 teams with the highest performance above predicted ELO",
		Columns: []column{
			{Index: 0, Header: "#", Name: "rank"},
			{Index: 1, Header: "∆ #", Name: "delta_rank"},
			{Index: 2, Header: "Names", Name: "names"},
			{Index: 3, Header: "Games", Name: "games"},
			{Index: 4, Header: "∆ Games", Name: "delta_gamesplayed"},
			{Index: 5, Header: "Last game", Name: "last_game"},
			{Index: 6, Header: "Team ELO", Name: "elo_team"},
			{Index: 7, Header: "Performance", Name: "performance"},
			{Index: 8, Header: "Difference", Name: "diff", Info: "Performance above team ELO."},
			{Index: 9, Header: "∆", Name: "delta_diff", Info: "Performance above team ELO change since the day before."},
		},
	}

	rows := make([]map[string]any, 0, len(s.teams))
	for rank, team := range s.teams {
		if rank == 30 {
			break
		}

		lastElos := s.lastTeamElos[team.TeamID]
		var elo1, elo2 uint32
		if len(lastElos) > 0 {
			latest := lastElos[len(lastElos)-1]
			elo1 = uint32(math.Round(latest[0]))
			elo2 = uint32(math.Round(latest[1]))
		}

		diff := uint32(math.Round(team.EloDifference))

		row := map[string]any{
			"rank":      rank + 1,
			"last_game": team.LastGame.Format(dateFormat),
			"names": fmt.Sprintf("%s (%d) / %s (%d)",
				alias(players, team.Player1()), elo1, alias(players, team.Player2()), elo2),
			"elo_team":    fmt.Sprintf("%d", elo1+elo2),
			"games":       fmt.Sprintf("%d", team.Games),
			"performance": fmt.Sprintf("%d", elo1+elo2+diff),
			"diff":        fmt.Sprintf("%d", diff),
		}

		deltaRank, deltaGames, deltaDiff := 0, 0, 0
		for yesterdayRank, yesterday := range s.yesterdaysTeams {
			if yesterday.TeamID == team.TeamID {
				deltaRank = yesterdayRank - rank
				deltaGames = team.Games - yesterday.Games
				deltaDiff = int(team.EloDifference - yesterday.EloDifference)
				break
			}
		}
		row["delta_rank"] = deltaRank
		row["delta_gamesplayed"] = deltaGames
		row["delta_diff"] = deltaDiff

		rows = append(rows, row)
	}

	data.Data = rows
	return writeJSON(directory, s.mode.ShortName()+"_best_teams.json", data)
}

func upsetBoard(players *player.Players, upsets []Upset, description string) board {
	rows := make([]map[string]any, 0, len(upsets))
	for rank, upset := range upsets {
		rows = append(rows, map[string]any{
			"rank":              rank + 1,
			"date":              upset.Date.Format(dateFormat),
			"winner":            joinSide(players, upset.Winners, upset.WinnerElos),
			"loser":             joinSide(players, upset.Losers, upset.LoserElos),
			"faction_winner":    sideFaction(upset.WinnerFactions),
			"faction_loser":     sideFaction(upset.LoserFactions),
			"map":               upset.Map,
			"rating_difference": fmt.Sprintf("≥ %d", int(upset.EloDifference)),
		})
	}

	return board{
		Description: description,
		Columns: []column{
			{Index: 0, Header: "#", Name: "rank"},
			{Index: 1, Header: "Date", Name: "date"},
			{Index: 2, Header: "", Name: "faction_winner", Info: "Winners faction."},
			{Index: 3, Header: "Winner", Name: "winner"},
			{Index: 4, Header: "", Name: "faction_loser", Info: "Losers faction."},
			{Index: 5, Header: "Loser", Name: "loser"},
			{Index: 6, Header: "Map", Name: "map"},
			{Index: 7, Header: "Diff", Name: "rating_difference", Info: "Difference in ELO rating. Considers deviation."},
		},
		Data: rows,
	}
}

// ExportUpsets writes the monthly upset boards plus the rolling and
// all-time boards.
func (s *Stats) ExportUpsets(directory string, players *player.Players) error {
	months := make([]int, 0, len(s.upsetsMonthly))
	for month := range s.upsetsMonthly {
		months = append(months, month)
	}
	sort.Ints(months)

	for _, month := range months {
		filename := fmt.Sprintf("%s_upsets_%d-%02d.json", s.mode.ShortName(), month/100, month%100)
		if err := writeJSON(directory, filename, upsetBoard(players, s.upsetsMonthly[month], "")); err != nil {
			return err
		}
	}

	short := s.mode.ShortName()
	if err := writeJSON(directory, short+"_upsets_last12month.json",
		upsetBoard(players, s.upsetsLast12, "Upsets within the last 12 month")); err != nil {
		return err
	}
	if err := writeJSON(directory, short+"_upsets_last30days.json",
		upsetBoard(players, s.upsetsLast30Days, "Upsets within the last 30 days")); err != nil {
		return err
	}
	return writeJSON(directory, short+"_upsets_alltime.json",
		upsetBoard(players, s.upsetsAllTime, "Biggest upsets of all time"))
}
