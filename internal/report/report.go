// Package report writes the JSON boards and player detail files the
// ladder website serves.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/blitzladder/blitzrate/internal/domain/blitzmap"
	"github.com/blitzladder/blitzrate/internal/domain/faction"
	"github.com/blitzladder/blitzrate/internal/domain/gamemode"
	"github.com/blitzladder/blitzrate/internal/domain/knownplayers"
	"github.com/blitzladder/blitzrate/internal/game"
	"github.com/blitzladder/blitzrate/internal/player"
	"github.com/blitzladder/blitzrate/internal/prob"
)

const dateFormat = "2006-01-02"

// A peak within this many days puts the flame icon next to the name.
const onFireDays = 31

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

// Exporter writes all player reports of one run into one directory.
type Exporter struct {
	dir   string
	mode  gamemode.Mode
	today time.Time
	runID uuid.UUID
}

// NewExporter creates an exporter. today anchors the rolling windows.
func NewExporter(dir string, mode gamemode.Mode, today time.Time) *Exporter {
	return &Exporter{dir: dir, mode: mode, today: today, runID: uuid.New()}
}

// ExportAll writes every report. games carries the accepted games for
// the detail files.
func (e *Exporter) ExportAll(players *player.Players, games []*game.Game) error {
	for _, export := range []func(*player.Players) error{
		e.ExportActivePlayers,
		e.ExportBestOfAllTime,
		e.ExportMostDaysActive,
		e.ExportAlphabetical,
		e.ExportAllPlayers,
		e.ExportNewPlayers,
	} {
		if err := export(players); err != nil {
			return err
		}
	}
	if err := e.ExportPlayerDetails(players, games); err != nil {
		return err
	}
	return e.exportRunMetadata(players)
}

func (e *Exporter) write(filename string, value any) error {
	raw, err := json.MarshalIndent(value, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filename, err)
	}
	if err := os.WriteFile(filepath.Join(e.dir, filename), append(raw, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	return nil
}

func (e *Exporter) twoVsTwo() bool {
	return e.mode == gamemode.Blitz2v2 || e.mode == gamemode.RedAlert2_2v2
}

func (e *Exporter) onFire(p *player.Player) bool {
	peak := p.PeakRating()
	return peak.AdjustedElo > 0.0 && e.today.Sub(peak.Date).Hours()/24 < onFireDays
}

// perFactionRatings adds the per-faction elo/deviation/games columns a
// player has data for. Combined is skipped for the board exports.
func perFactionRatings(row map[string]any, p *player.Player, includeCombined bool) {
	for _, f := range faction.All() {
		if f == faction.Combined && !includeCombined {
			continue
		}
		if p.GameCountFaction(f) == 0 {
			continue
		}
		row[f.ShortName()+"_elo_deviation"] = fmt.Sprintf("%d ± %.1f", int(p.Elo(f)), p.Deviation(f))
		row[f.ShortName()+"_games"] = p.GameCountFaction(f)
	}
}

// ExportActivePlayers writes the main ladder standings.
func (e *Exporter) ExportActivePlayers(players *player.Players) error {
	log.Info().Msg("exporting list of active players")

	description := "Active players sorted by ELO"
	if e.twoVsTwo() {
		description = "Active players sorted by combined ELO"
	}

	sorted := players.ActiveSortedByRating(e.mode)
	yesterday := players.ActiveSortedByYesterdaysRating(e.mode)

	yesterdaysRank := make(map[uint32]int, len(yesterday))
	for i, p := range yesterday {
		yesterdaysRank[p.UserID()] = i + 1
	}

	rows := make([]map[string]any, 0, len(sorted))
	for i, p := range sorted {
		f := p.BestActiveFaction()
		if e.twoVsTwo() {
			f = faction.Combined
		}

		row := map[string]any{
			"rank":               i + 1,
			"delta_rank":         yesterdaysRank[p.UserID()] - (i + 1),
			"name":               p.Alias(),
			"faction":            f.ShortName(),
			"elo":                int(p.Elo(f)),
			"delta_elo":          int(p.Elo(f) - p.YesterdaysElo(f)),
			"deviation":          fmt.Sprintf("%.1f", p.Deviation(f)),
			"game_count":         p.GameCount(),
			"game_diff":          p.GameCount() - p.YesterdaysGameCount(),
			"days_to_inactivity": p.DaysToInactivity(e.mode),
			"active":             true,
		}
		if e.onFire(p) {
			row["on_fire"] = 1
		}
		perFactionRatings(row, p, false)
		rows = append(rows, row)
	}

	data := board{
		Description: description,
		Columns: []column{
			{0, "#", "rank", ""},
			{1, "∆ #", "delta_rank", ""},
			{2, "", "faction", "Indicating which of your faction ratings is your best."},
			{3, "Name", "name", ""},
			{4, "Elo", "elo", "Your current ELO."},
			{5, "∆ Elo", "delta_elo", "ELO change since the day before."},
			{6, "Deviation", "deviation", "The lower the deviation the more accurate the rating. It grows while you do not play."},
			{7, "Games", "game_count", "Total number of games played."},
			{8, "∆ Games", "game_diff", "Games played yesterday."},
			{9, "DTI", "days_to_inactivity", "Days until you count as inactive if you stop playing today."},
		},
		Data: rows,
	}

	return e.write(e.mode.ShortName()+"_active_players.json", data)
}

// ExportBestOfAllTime writes the peak-rating hall of fame.
func (e *Exporter) ExportBestOfAllTime(players *player.Players) error {
	log.Info().Msg("exporting best players of all time")

	peakOf := func(p *player.Player) player.PeakRating {
		if e.twoVsTwo() {
			return p.PeakRatingFaction(faction.Combined)
		}
		return p.PeakRating()
	}

	rows := make([]map[string]any, 0)
	for i, p := range players.PeakSorted(e.mode) {
		peak := peakOf(p)

		status := "INACTIVE"
		if p.IsActive() {
			status = "ACTIVE"
		}

		row := map[string]any{
			"rank":       i + 1,
			"name":       p.Alias(),
			"faction":    peak.Faction.ShortName(),
			"peak":       fmt.Sprintf("%d", int(peak.AdjustedElo)),
			"deviation":  fmt.Sprintf("%d", int(peak.Deviation)),
			"date":       peak.Date.Format(dateFormat),
			"game_count": p.GameCount(),
			"status":     status,
		}
		if p.IsActive() && p.MaxRating(false) > 0 {
			row["current"] = fmt.Sprintf("%d", int(p.MaxRating(false)))
		}
		rows = append(rows, row)
	}

	data := board{
		Description: "Best ranked match players of all time",
		Columns: []column{
			{0, "#", "rank", ""},
			{1, "", "faction", "Indicating which faction rating is used."},
			{2, "Name", "name", ""},
			{3, "Date", "date", "The date on which the peak was reached."},
			{4, "Peak", "peak", "Peak rating is ELO minus deviation at the given point of time."},
			{5, "Status", "status", ""},
		},
		Data: rows,
	}

	return e.write(e.mode.ShortName()+"_bestofalltime.json", data)
}

// ExportMostDaysActive writes the loyalty board, capped at 30 rows.
func (e *Exporter) ExportMostDaysActive(players *player.Players) error {
	log.Info().Msg("exporting most loyal players")

	var loyal []*player.Player
	for _, id := range players.UserIDs() {
		if p := players.MustGet(id); p.DaysActive() > 0 {
			loyal = append(loyal, p)
		}
	}
	sort.SliceStable(loyal, func(i, j int) bool { return loyal[i].DaysActive() > loyal[j].DaysActive() })

	rows := make([]map[string]any, 0, 30)
	for i, p := range loyal {
		if i >= 30 {
			break
		}
		rows = append(rows, map[string]any{
			"rank":       i + 1,
			"name":       p.Alias(),
			"first_game": p.FirstGame().Format(dateFormat),
			"last_game":  p.LastGame().Format(dateFormat),
			"days":       p.DaysActive(),
		})
	}

	data := board{
		Description: "Days being an active player since ranked match start in July 2022",
		Columns: []column{
			{0, "#", "rank", ""},
			{1, "Name", "name", ""},
			{2, "First game", "first_game", ""},
			{3, "Last game", "last_game", ""},
			{4, "Days active", "days", ""},
		},
		Data: rows,
	}

	return e.write(e.mode.ShortName()+"_daysactive.json", data)
}

func statusRow(p *player.Player) map[string]any {
	status := "INACTIVE"
	if p.IsActive() {
		status = "ACTIVE"
	}
	row := map[string]any{
		"name":   p.Alias(),
		"status": status,
		"date":   p.LastGame().Format(dateFormat),
	}
	for _, f := range faction.All() {
		if p.GameCountFaction(f) == 0 {
			continue
		}
		row[f.ShortName()+"_elo"] = fmt.Sprintf("%d", int(p.Elo(f)))
		row[f.ShortName()+"_games"] = p.GameCountFaction(f)
		row["deviation"] = fmt.Sprintf("%.1f", p.Deviation(f))
	}
	return row
}

var statusColumns = []column{
	{0, "Name", "name", ""},
	{1, "Status", "status", ""},
	{2, "Last game", "date", ""},
	{3, "Games", "mix_games", "Total number of games played."},
	{4, "Elo", "sov_elo", ""},
	{5, "Games", "sov_games", ""},
	{6, "Elo", "all_elo", ""},
	{7, "Games", "all_games", ""},
	{8, "Elo", "mix_elo", ""},
}

// ExportAlphabetical writes every current or former active player,
// sorted by name.
func (e *Exporter) ExportAlphabetical(players *player.Players) error {
	log.Info().Msg("exporting all active and formerly active players in alphabetical order")

	var actives []*player.Player
	for _, id := range players.UserIDs() {
		if p := players.MustGet(id); p.WasActive() {
			actives = append(actives, p)
		}
	}
	sort.SliceStable(actives, func(i, j int) bool { return actives[i].LowerLexicalOrder(actives[j]) })

	rows := make([]map[string]any, 0, len(actives))
	for _, p := range actives {
		row := statusRow(p)
		if e.onFire(p) {
			row["on_fire"] = 1
		}
		rows = append(rows, row)
	}

	data := board{
		Description: "All players, who are or were active, in alphabetical order",
		Columns:     statusColumns,
		Data:        rows,
	}

	return e.write(e.mode.ShortName()+"_players_all_alphabetical.json", data)
}

// ExportAllPlayers writes every player in user id order.
func (e *Exporter) ExportAllPlayers(players *player.Players) error {
	log.Info().Msg("exporting all players in the order of their ids")

	rows := make([]map[string]any, 0, players.Count())
	for _, id := range players.UserIDs() {
		p := players.MustGet(id)
		row := statusRow(p)
		row["id"] = fmt.Sprintf("#%d", id)
		rows = append(rows, row)
	}

	data := board{
		Description: "All players in the order of their ids",
		Columns:     statusColumns,
		Data:        rows,
	}

	return e.write(e.mode.ShortName()+"_all_players.json", data)
}

// ExportNewPlayers writes players who are not active yet but played
// recently. The game-count gate keeps empty alt accounts off the list.
func (e *Exporter) ExportNewPlayers(players *player.Players) error {
	log.Info().Msg("exporting new players")

	var newcomers []*player.Player
	for _, id := range players.UserIDs() {
		p := players.MustGet(id)
		if !p.IsActive() && p.GameCount() > 0 && p.DaysFromLastGame(e.today) <= 30 {
			newcomers = append(newcomers, p)
		}
	}
	sort.SliceStable(newcomers, func(i, j int) bool { return newcomers[i].LowerLexicalOrder(newcomers[j]) })

	rows := make([]map[string]any, 0, len(newcomers))
	for _, p := range newcomers {
		row := map[string]any{
			"name": p.Alias(),
			"date": p.LastGame().Format(dateFormat),
		}
		for _, f := range faction.All() {
			if p.GameCountFaction(f) == 0 {
				continue
			}
			row[f.ShortName()+"_elo"] = fmt.Sprintf("%d", int(p.Elo(f)))
			row[f.ShortName()+"_deviation"] = fmt.Sprintf("%.1f", p.Deviation(f))
			row[f.ShortName()+"_games"] = p.GameCountFaction(f)
		}
		rows = append(rows, row)
	}

	data := board{
		Description: "All players, who are not active, but played a game within the last 30 days, in alphabetical order",
		Columns: []column{
			{0, "Name", "name", ""},
			{1, "Last game", "date", ""},
			{2, "Elo", "sov_elo", ""},
			{3, "Deviation", "sov_deviation", ""},
			{4, "Games", "sov_games", ""},
			{5, "Elo", "all_elo", ""},
			{6, "Deviation", "all_deviation", ""},
			{7, "Games", "all_games", ""},
			{8, "Elo", "mix_elo", ""},
			{9, "Deviation", "mix_deviation", ""},
			{10, "Games", "mix_games", ""},
		},
		Data: rows,
	}

	return e.write(e.mode.ShortName()+"_new_players.json", data)
}

// ExportPlayerDetails writes one file per player with games: rating
// history, head-to-head records, map stats, boards and peaks.
func (e *Exporter) ExportPlayerDetails(players *player.Players, games []*game.Game) error {
	gamesByID := make(map[uint32]*game.Game, len(games))
	for _, g := range games {
		gamesByID[g.ID] = g
	}

	for _, id := range players.UserIDs() {
		p := players.MustGet(id)
		if p.GameCount() == 0 {
			continue
		}
		if err := e.exportPlayerDetail(p, players, gamesByID); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exporter) exportPlayerDetail(p *player.Player, players *player.Players, games map[uint32]*game.Game) error {
	detail := map[string]any{
		"alias":     p.Alias(),
		"is_active": p.IsActive(),
		"wins":      p.Wins(),
		"losses":    p.Losses(),
		"draws":     p.Draws(),
	}

	detail["highest_rated_victories"] = e.ratedGameRows(p.HighestRatedVictories(), players, games, true)
	detail["lowest_rated_defeats"] = e.ratedGameRows(p.LowestRatedDefeats(), players, games, false)
	detail["vs"] = e.headToHeadRows(p, players)
	detail["mapstats"] = e.mapStatRows(p)
	detail["historical_elo"] = historicalEloRows(p)
	detail["peak_elo"] = peakRows(p)
	detail["current_elo"] = currentEloRows(p)

	filename := fmt.Sprintf("%s_player_%d.json", e.mode.ShortName(), p.UserID())
	return e.write(filename, detail)
}

// ratedGameRows renders a victory or defeat board, best entries first.
// Entries without a positive gap are dropped.
func (e *Exporter) ratedGameRows(list []player.RatedGame, players *player.Players, games map[uint32]*game.Game, victories bool) []map[string]any {
	rows := make([]map[string]any, 0, len(list))

	for i := len(list) - 1; i >= 0; i-- {
		entry := list[i]
		if entry.RatingDifference <= 0.0 {
			break
		}

		g, ok := games[entry.GameID]
		if !ok {
			log.Warn().Uint32("game_id", entry.GameID).Msg("board game not in accepted set")
			continue
		}

		us := g.WinnerIndex()
		if !victories {
			us ^= 1
		}
		them := us ^ 1
		if us < 0 || them < 0 {
			continue
		}

		opponentID := g.Participants[them].UserID
		opponentAlias := "???"
		if opponent, err := players.Get(opponentID); err == nil {
			opponentAlias = opponent.Alias()
		}

		rows = append(rows, map[string]any{
			"id":               g.ID,
			"faction":          g.Participants[us].Faction.ShortName(),
			"opponent":         opponentID,
			"opponent_alias":   opponentAlias,
			"opponent_faction": g.Participants[them].Faction.ShortName(),
			"map":              g.MapName,
			"diff":             entry.RatingDifference,
			"date":             g.Date().Format(dateFormat),
			"rank":             len(rows) + 1,
		})
	}

	return rows
}

// headToHeadRows keeps rivalries of at least 20 games against opponents
// who still matter: active, recently active, or pros within a year.
// Best matchups come first.
func (e *Exporter) headToHeadRows(p *player.Player, players *player.Players) []map[string]any {
	vs := p.VsOtherPlayers()

	opponentIDs := make([]uint32, 0, len(vs))
	for id := range vs {
		opponentIDs = append(opponentIDs, id)
	}
	sort.Slice(opponentIDs, func(i, j int) bool { return opponentIDs[i] < opponentIDs[j] })

	type rivalry struct {
		opponent *player.Player
		record   *prob.Probabilities
	}

	rivalries := make([]rivalry, 0)
	for _, opponentID := range opponentIDs {
		record := vs[opponentID]
		if record.Count() < 20 {
			continue
		}

		opponent, err := players.Get(opponentID)
		if err != nil {
			continue
		}

		relevant := opponent.IsActive() ||
			opponent.DaysInactive() < 180 ||
			(knownplayers.IsProPlayer(opponentID) && opponent.DaysInactive() < 365)
		if !relevant {
			continue
		}

		rivalries = append(rivalries, rivalry{opponent: opponent, record: record})
	}

	sort.SliceStable(rivalries, func(i, j int) bool {
		return prob.Less(rivalries[i].record, rivalries[j].record)
	})

	rows := make([]map[string]any, 0, len(rivalries))
	for _, r := range rivalries {
		rows = append(rows, map[string]any{
			"index":        len(rows) + 1,
			"alias":        r.opponent.Alias(),
			"expected":     r.record.Expected(),
			"actual":       r.record.Actual(),
			"value":        r.record.NormalizedResult(),
			"wins":         r.record.Wins(),
			"losses":       r.record.Losses(),
			"daysinactive": r.opponent.DaysInactive(),
		})
	}

	return rows
}

// mapStatRows renders per-setup map records with more than 12 games.
func (e *Exporter) mapStatRows(p *player.Player) []map[string]any {
	rows := make([]map[string]any, 0)

	for setup := faction.Setup(0); setup < faction.UnknownSetup; setup++ {
		maps := make([]map[string]any, 0)
		for mapIndex := 0; mapIndex < blitzmap.Count; mapIndex++ {
			record, err := p.MapStats(setup, mapIndex)
			if err != nil || record.Count() <= 12 {
				continue
			}
			maps = append(maps, map[string]any{
				"name":     blitzmap.Name(mapIndex),
				"value":    record.NormalizedResult(),
				"actual":   record.Actual(),
				"expected": record.Expected(),
				"wins":     record.Wins(),
				"losses":   record.Losses(),
				"rank":     len(maps) + 1,
			})
		}
		if len(maps) > 0 {
			rows = append(rows, map[string]any{
				"faction": setup.String(),
				"maps":    maps,
			})
		}
	}

	return rows
}

func historicalEloRows(p *player.Player) []map[string]any {
	rows := make([]map[string]any, 0)

	for _, f := range faction.All() {
		history := p.HistoricalElo(f)
		if len(history) == 0 {
			continue
		}

		keys := make([]uint32, 0, len(history))
		for key := range history {
			keys = append(keys, key)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		values := make([]map[string]any, 0, len(keys))
		for _, key := range keys {
			entry := history[key]
			values = append(values, map[string]any{
				"date":      player.DateFromKey(key).Format(dateFormat),
				"rating":    entry.Elo,
				"deviation": entry.Deviation,
			})
		}

		rows = append(rows, map[string]any{
			"faction": f.ShortName(),
			"values":  values,
		})
	}

	return rows
}

func peakRows(p *player.Player) []map[string]any {
	rows := make([]map[string]any, 0)
	for _, f := range faction.All() {
		if !p.WasActiveFaction(f) {
			continue
		}
		peak := p.PeakRatingFaction(f)
		if peak.AdjustedElo <= 0.0 {
			continue
		}
		rows = append(rows, map[string]any{
			"faction":   f.ShortName(),
			"elo":       peak.AdjustedElo + peak.Deviation,
			"deviation": peak.Deviation,
			"date":      peak.Date.Format(dateFormat),
		})
	}
	return rows
}

func currentEloRows(p *player.Player) []map[string]any {
	rows := make([]map[string]any, 0)
	for _, f := range faction.All() {
		if !p.IsActiveFaction(f) {
			continue
		}
		rows = append(rows, map[string]any{
			"faction":   f.ShortName(),
			"elo":       p.Elo(f),
			"deviation": p.Deviation(f),
		})
	}
	return rows
}

// exportRunMetadata records what produced the files in this directory.
func (e *Exporter) exportRunMetadata(players *player.Players) error {
	meta := map[string]any{
		"run_id":         e.runID.String(),
		"generated_at":   e.today.Format(time.RFC3339),
		"ladder":         e.mode.ShortName(),
		"mode":           e.mode.String(),
		"players":        players.Count(),
		"active_players": players.ActivePlayerCount(),
	}
	return e.write(e.mode.ShortName()+"_run.json", meta)
}
