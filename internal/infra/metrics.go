package infra

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks refresh and conversion activity on a private registry
type Metrics struct {
	registry *prometheus.Registry

	RateFetches       prometheus.Counter
	RateFetchErrors   prometheus.Counter
	SnapshotCacheHits prometheus.Counter
	FlagDownloads     *prometheus.CounterVec // result: ok, cached, error
	StaleResponses    *prometheus.CounterVec // slot
	Conversions       *prometheus.CounterVec // result: ok, unavailable
	ActiveSessions    prometheus.Gauge
	SnapshotAge       prometheus.Gauge
}

// NewMetrics creates and registers all collectors
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		RateFetches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "currency",
			Name:      "rate_fetches_total",
			Help:      "Rate table requests sent to the backend.",
		}),
		RateFetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "currency",
			Name:      "rate_fetch_errors_total",
			Help:      "Rate table requests that failed.",
		}),
		SnapshotCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "currency",
			Name:      "snapshot_cache_hits_total",
			Help:      "Freshness checks satisfied by the stored snapshot.",
		}),
		FlagDownloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "currency",
			Name:      "flag_downloads_total",
			Help:      "Flag image lookups by result.",
		}, []string{"result"}),
		StaleResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "currency",
			Name:      "stale_responses_dropped_total",
			Help:      "Async responses discarded because a newer request was issued for the slot.",
		}, []string{"slot"}),
		Conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "currency",
			Name:      "conversions_total",
			Help:      "Conversions computed by result.",
		}, []string{"result"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "currency",
			Name:      "active_sessions",
			Help:      "Connected converter panels.",
		}),
		SnapshotAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "currency",
			Name:      "snapshot_age_seconds",
			Help:      "Age of the installed rate snapshot at the last check.",
		}),
	}

	reg.MustRegister(
		m.RateFetches,
		m.RateFetchErrors,
		m.SnapshotCacheHits,
		m.FlagDownloads,
		m.StaleResponses,
		m.Conversions,
		m.ActiveSessions,
		m.SnapshotAge,
	)

	return m
}

// Handler exposes the registry in Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordConversion counts a conversion outcome
func (m *Metrics) RecordConversion(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Conversions.WithLabelValues("unavailable").Inc()
		return
	}
	m.Conversions.WithLabelValues("ok").Inc()
}
