// Command blitzrate recomputes the ratings of one CnCNet ladder from its
// full game history and publishes the standings.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/blitzladder/blitzrate/internal/config"
	"github.com/blitzladder/blitzrate/internal/domain/gamemode"
	"github.com/blitzladder/blitzrate/internal/identity"
	"github.com/blitzladder/blitzrate/internal/metrics"
	"github.com/blitzladder/blitzrate/internal/pipeline"
	"github.com/blitzladder/blitzrate/internal/store/postgres"
)

const (
	appName = "blitzrate"
	version = "v1.4.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("unable to load .env file")
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Glicko-2 rating engine for CnCNet ladders",
		Version: version,
		Long: appName + ` replays the complete ranked-match history of a ladder in
daily batches, computes per-faction Glicko-2 ratings, and writes the
JSON boards the ladder website serves.`,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a full rating pass over one ladder",
		RunE:  runRating,
	}

	runCmd.Flags().String("config", "blitzrate.yaml", "Path to the YAML configuration")
	runCmd.Flags().String("mode", "", "Ladder to rate (blitz, blitz-2v2, ra2, yr, ra, ...)")
	runCmd.Flags().String("output", "", "Directory for the JSON report files")
	runCmd.Flags().String("end-date", "", "Stop the replay at this day (YYYY-MM-DD)")
	runCmd.Flags().String("duplicates", "", "Duplicate policy: full, web-like or passthrough")
	runCmd.Flags().String("tournament", "", "Tournament overlay file")
	runCmd.Flags().Int("time-shift", 0, "Shift the rating-day boundary by this many hours")
	runCmd.Flags().Bool("dry-run", false, "Skip the database write-back")

	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func runRating(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	applyFlags(cmd.Flags(), cfg)

	mode := cfg.GameMode()
	if mode == gamemode.Unknown {
		return fmt.Errorf("unknown game mode %q", cfg.Mode)
	}

	policy, err := identity.PolicyFromName(cfg.DuplicatePolicy)
	if err != nil {
		return err
	}

	endDate, err := cfg.EndTime()
	if err != nil {
		return err
	}

	metrics.Serve(cfg.MetricsAddr)

	db, err := postgres.Open(cfg.Database.DSN(), cfg.Database.MaxOpenConns)
	if err != nil {
		return fmt.Errorf("failed to connect to the ladder database: %w", err)
	}
	defer db.Close()

	log.Info().Str("mode", mode.String()).Str("policy", policy.String()).
		Bool("dry_run", cfg.DryRun).Msg("starting rating run")

	source := postgres.NewSource(db, cfg.Database.Timeout(), mode)
	sink := postgres.NewSink(db, cfg.Database.Timeout())

	p := pipeline.New(source, sink, pipeline.Options{
		Mode:           mode,
		TimeShift:      time.Duration(cfg.TimeShiftHours) * time.Hour,
		EndDate:        endDate,
		Policy:         policy,
		TournamentFile: cfg.TournamentFile,
		OutputDir:      cfg.OutputDir,
		DryRun:         cfg.DryRun,
	})

	return p.Run(cmd.Context())
}

// applyFlags lets explicit command line flags win over the file and the
// environment.
func applyFlags(flags *pflag.FlagSet, cfg *config.Config) {
	if flags.Changed("mode") {
		cfg.Mode, _ = flags.GetString("mode")
	}
	if flags.Changed("output") {
		cfg.OutputDir, _ = flags.GetString("output")
	}
	if flags.Changed("end-date") {
		cfg.EndDate, _ = flags.GetString("end-date")
	}
	if flags.Changed("duplicates") {
		cfg.DuplicatePolicy, _ = flags.GetString("duplicates")
	}
	if flags.Changed("tournament") {
		cfg.TournamentFile, _ = flags.GetString("tournament")
	}
	if flags.Changed("time-shift") {
		cfg.TimeShiftHours, _ = flags.GetInt("time-shift")
	}
	if flags.Changed("dry-run") {
		cfg.DryRun, _ = flags.GetBool("dry-run")
	}
}
