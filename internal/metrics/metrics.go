// Package metrics exposes Prometheus instrumentation for experiment sessions.
//
// Metrics are registered on the Registerer passed to New so tests can use a
// private registry. The server exposes the default registry on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vstask"

// Outcome label values.
const (
	OutcomeCorrect   = "correct"
	OutcomeIncorrect = "incorrect"
	StatusSuccess    = "success"
	StatusError      = "error"
)

// Metrics holds every collector the experiment reports.
type Metrics struct {
	// SessionsStarted counts sessions whose trials were generated and recorded.
	SessionsStarted prometheus.Counter
	// GenerationAttempts observes how many candidate batches one generation drew.
	// Labels: result (accepted, exhausted)
	GenerationAttempts *prometheus.HistogramVec
	// ChoicesLogged counts intermediate choices appended to records.
	ChoicesLogged prometheus.Counter
	// GamesFinalized counts finished games.
	// Labels: outcome (correct, incorrect)
	GamesFinalized *prometheus.CounterVec
	// GameDuration observes total game duration.
	GameDuration prometheus.Histogram
	// StatsRefreshDuration observes full statistics rescans.
	// Labels: status (success, error)
	StatsRefreshDuration *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of experiment sessions started.",
		}),
		GenerationAttempts: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_attempts",
			Help:      "Candidate batches drawn per trial generation.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"result"}),
		ChoicesLogged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "choices_logged_total",
			Help:      "Total number of intermediate choices recorded.",
		}),
		GamesFinalized: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_finalized_total",
			Help:      "Total number of finished games by outcome.",
		}, []string{"outcome"}),
		GameDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "game_duration_seconds",
			Help:      "Time from game start to final choice.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600},
		}),
		StatsRefreshDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stats_refresh_duration_seconds",
			Help:      "Duration of full statistics recomputations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
	}
}

// GenerationObserved records one finished generation.
func (m *Metrics) GenerationObserved(attempts int, accepted bool) {
	result := "accepted"
	if !accepted {
		result = "exhausted"
	}
	m.GenerationAttempts.WithLabelValues(result).Observe(float64(attempts))
}

// SessionStarted counts a started session.
func (m *Metrics) SessionStarted() {
	m.SessionsStarted.Inc()
}

// ChoiceLogged counts an appended choice.
func (m *Metrics) ChoiceLogged() {
	m.ChoicesLogged.Inc()
}

// GameFinalized records the outcome and duration of a finished game.
func (m *Metrics) GameFinalized(correct bool, duration time.Duration) {
	outcome := OutcomeIncorrect
	if correct {
		outcome = OutcomeCorrect
	}
	m.GamesFinalized.WithLabelValues(outcome).Inc()
	m.GameDuration.Observe(duration.Seconds())
}

// StatsRefreshed records one statistics rescan.
func (m *Metrics) StatsRefreshed(elapsed time.Duration, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.StatsRefreshDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}
