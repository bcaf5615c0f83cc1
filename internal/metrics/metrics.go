// Package metrics exposes Prometheus collectors for archive fetches and record writes.
package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	fetchAttemptsTotal   *prometheus.CounterVec
	rateLimitHitsTotal   *prometheus.CounterVec
	fetchFailuresTotal   *prometheus.CounterVec
	fetchDurationSeconds *prometheus.HistogramVec
	backoffDelaySeconds  *prometheus.HistogramVec
	recordsStoredTotal   *prometheus.CounterVec
	rawArchivedTotal     *prometheus.CounterVec
	throttleDelaySeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wayback_fetch_attempts_total",
				Help: "Total number of HTTP attempts against archive endpoints.",
			},
			[]string{"endpoint"},
		)

		rateLimitHitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wayback_rate_limit_hits_total",
				Help: "Total number of HTTP 429 answers received from the archive.",
			},
			[]string{"endpoint"},
		)

		fetchFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wayback_fetch_failures_total",
				Help: "Total number of fetches abandoned after exhausting every attempt.",
			},
			[]string{"endpoint"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wayback_fetch_duration_seconds",
				Help:    "Histogram of single-attempt archive request latencies.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
			},
			[]string{"endpoint"},
		)

		backoffDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wayback_backoff_delay_seconds",
				Help:    "Histogram of waits between archive request attempts.",
				Buckets: []float64{1, 2, 4, 8, 16, 32},
			},
			[]string{"endpoint"},
		)

		recordsStoredTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wayback_records_stored_total",
				Help: "Total number of normalized records inserted into the document store.",
			},
			[]string{"endpoint"},
		)

		rawArchivedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wayback_raw_payloads_archived_total",
				Help: "Total number of raw payloads written to the blob archive.",
			},
			[]string{"endpoint"},
		)

		throttleDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wayback_throttle_delay_seconds",
				Help:    "Histogram of time spent waiting on the client-side request pacer.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
			},
			[]string{"host"},
		)
	})
}

// ObserveAttempt counts one HTTP attempt.
func ObserveAttempt(endpoint string, duration time.Duration) {
	Init()
	fetchAttemptsTotal.WithLabelValues(endpoint).Inc()
	fetchDurationSeconds.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// ObserveRateLimit counts one HTTP 429 answer.
func ObserveRateLimit(endpoint string) {
	Init()
	rateLimitHitsTotal.WithLabelValues(endpoint).Inc()
}

// ObserveBackoff records a wait between attempts.
func ObserveBackoff(endpoint string, delay time.Duration) {
	Init()
	backoffDelaySeconds.WithLabelValues(endpoint).Observe(delay.Seconds())
}

// ObserveFetchFailure counts a fetch that ran out of attempts.
func ObserveFetchFailure(endpoint string) {
	Init()
	fetchFailuresTotal.WithLabelValues(endpoint).Inc()
}

// ObserveRecordStored counts a successful insert.
func ObserveRecordStored(endpoint string) {
	Init()
	recordsStoredTotal.WithLabelValues(endpoint).Inc()
}

// ObserveRawArchived counts a raw payload written to the blob archive.
func ObserveRawArchived(endpoint string) {
	Init()
	rawArchivedTotal.WithLabelValues(endpoint).Inc()
}

// ObserveThrottle records time spent waiting for the request pacer.
func ObserveThrottle(host string, delay time.Duration) {
	Init()
	throttleDelaySeconds.WithLabelValues(host).Observe(delay.Seconds())
}

// Push sends the default registry to a Pushgateway under the given job name.
func Push(ctx context.Context, gatewayURL, job string) error {
	Init()
	if err := push.New(gatewayURL, job).Gatherer(prometheus.DefaultGatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
