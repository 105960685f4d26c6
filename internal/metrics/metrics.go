// Package metrics exposes Prometheus instrumentation for rating runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	GamesFetched = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "blitzrate_games_fetched_total",
		Help: "Games loaded from the database per ladder.",
	}, []string{"ladder"})

	GamesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blitzrate_games_rejected_total",
		Help: "Games dropped before rating, by reason.",
	}, []string{"ladder", "reason"})

	GamesRated = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "blitzrate_games_rated_total",
		Help: "Games that entered the rating calculation per ladder.",
	}, []string{"ladder"})

	PlayersLoaded = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "blitzrate_players_loaded_total",
		Help: "Accounts loaded after identity resolution per ladder.",
	}, []string{"ladder"})

	ActivePlayers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "blitzrate_active_players",
		Help: "Players counted as active at the end of a run.",
	}, []string{"ladder"})

	RatingPeriods = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "blitzrate_rating_periods_total",
		Help: "Daily rating periods applied during a run.",
	}, []string{"ladder"})

	RunDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "blitzrate_run_duration_seconds",
		Help: "Wall-clock duration of the last rating run.",
	}, []string{"ladder"})
)

// ObserveRun records the duration of a finished run.
func ObserveRun(ladder string, started time.Time) {
	RunDuration.WithLabelValues(ladder).Set(time.Since(started).Seconds())
}

// Serve exposes /metrics on addr in the background. Batch runs are
// short-lived, so scrape failures after exit are expected and fine.
func Serve(addr string) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		log.Info().Str("addr", addr).Msg("serving metrics")
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()
}
