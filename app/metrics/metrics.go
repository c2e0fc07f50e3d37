// Package metrics exposes Prometheus metrics for refreshes, ingestion and the relay.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "harvest"

var (
	RefreshRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_runs_total",
			Help:      "Total number of batch refresh runs",
		},
	)

	RefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of batch refresh runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	SourceRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_refreshes_total",
			Help:      "Total number of single source refreshes",
		},
		[]string{"outcome"},
	)

	ArticlesIngestedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_ingested_total",
			Help:      "Total number of newly stored articles",
		},
	)

	IngestStatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_states_total",
			Help:      "Ingestion state transitions",
		},
		[]string{"state"},
	)

	RelayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_requests_total",
			Help:      "Relay requests by endpoint and response status",
		},
		[]string{"endpoint", "status"},
	)

	RelayCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_cache_total",
			Help:      "Relay cache lookups by result",
		},
		[]string{"kind", "result"},
	)
)

func RecordRefreshRun(duration time.Duration) {
	RefreshRunsTotal.Inc()
	RefreshDuration.Observe(duration.Seconds())
}

func RecordSourceRefresh(ok bool, newArticles int) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	SourceRefreshesTotal.WithLabelValues(outcome).Inc()
	if newArticles > 0 {
		ArticlesIngestedTotal.Add(float64(newArticles))
	}
}

func RecordIngestState(state string) {
	IngestStatesTotal.WithLabelValues(state).Inc()
}

func RecordRelay(endpoint string, status int) {
	RelayRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

func RecordRelayCache(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	RelayCacheTotal.WithLabelValues(kind, result).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
