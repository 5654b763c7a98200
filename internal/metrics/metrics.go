// Package metrics exposes Prometheus instruments for the sampling daemon.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	samplesRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hubwatch",
		Name:      "samples_recorded_total",
		Help:      "Activity samples successfully recorded.",
	})
	samplesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hubwatch",
		Name:      "samples_failed_total",
		Help:      "Per-user sampling failures (lookup or store).",
	})
	samplesPruned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hubwatch",
		Name:      "samples_pruned_total",
		Help:      "Samples removed by retention pruning.",
	})
	ticksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hubwatch",
		Name:      "ticks_total",
		Help:      "Completed sampling ticks.",
	})
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hubwatch",
		Name:      "tick_duration_seconds",
		Help:      "Wall time of one sampling tick.",
		Buckets:   prometheus.DefBuckets,
	})
	trackedUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "hubwatch",
		Name:      "tracked_users",
		Help:      "Users in the roster at the last tick.",
	})
	usersByLevel = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "hubwatch",
		Name:      "users_by_level",
		Help:      "Users per activity level at the last report.",
	}, []string{"level"})
)

func RecordSampleRecorded() { samplesRecorded.Inc() }

func RecordSampleFailed() { samplesFailed.Inc() }

func RecordPruned(count int64) { samplesPruned.Add(float64(count)) }

func RecordTick() { ticksTotal.Inc() }

func ObserveTickDuration(d time.Duration) { tickDuration.Observe(d.Seconds()) }

func SetTrackedUsers(count int) { trackedUsers.Set(float64(count)) }

func SetUsersAtLevel(level string, count int) {
	usersByLevel.WithLabelValues(level).Set(float64(count))
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
