package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	figuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "figcrop",
			Name:      "figures_total",
			Help:      "Figures extracted by mode (auto, manual, caption)",
		},
		[]string{"mode"},
	)

	anchorsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "figcrop",
			Name:      "anchors_skipped_total",
			Help:      "Anchors that produced no figure, by reason",
		},
		[]string{"reason"},
	)

	renderLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "figcrop",
			Name:      "render_duration_seconds",
			Help:      "Duration of region renders",
			Buckets:   prometheus.DefBuckets,
		},
	)

	trimOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "figcrop",
			Name:      "trim_outcomes_total",
			Help:      "Trim results by outcome (trimmed, unchanged, failed)",
		},
		[]string{"outcome"},
	)

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "figcrop",
			Name:      "sessions_active",
			Help:      "Open document sessions",
		},
	)

	exportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "figcrop",
			Name:      "exports_total",
			Help:      "Exports by format (zip, deck) and destination (download, s3)",
		},
		[]string{"format", "destination"},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(figuresTotal, anchorsSkipped, renderLatency, trimOutcomes, sessionsActive, exportsTotal)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func IncFigures(mode string)       { figuresTotal.WithLabelValues(mode).Inc() }
func IncSkipped(reason string)     { anchorsSkipped.WithLabelValues(reason).Inc() }
func IncTrim(outcome string)       { trimOutcomes.WithLabelValues(outcome).Inc() }
func ObserveRender(d time.Duration) { renderLatency.Observe(d.Seconds()) }

func SetSessions(n int) { sessionsActive.Set(float64(n)) }

func IncExport(format, destination string) { exportsTotal.WithLabelValues(format, destination).Inc() }
