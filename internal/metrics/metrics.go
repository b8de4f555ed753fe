package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MergesApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_merges_applied_total",
		Help: "Messages merged into an active timeline.",
	})
	DuplicatesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_duplicates_dropped_total",
		Help: "Messages discarded because the id was already present.",
	})
	CrossConversationDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_cross_conversation_dropped_total",
		Help: "Events discarded because they belonged to a different conversation. A non-zero rate points at a channel filter bug.",
	})
	RetryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_retry_attempts_total",
		Help: "Setup attempts by operation.",
	}, []string{"op"})
	SetupFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_setup_failures_total",
		Help: "Setup operations that exhausted their retries.",
	}, []string{"op"})
	LiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatsync_live_sessions",
		Help: "Sync sessions currently in the live state.",
	})
)

// Handler returns the scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
