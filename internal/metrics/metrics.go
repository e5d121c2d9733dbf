package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	DownloadEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quip",
			Name:      "download_events_total",
			Help:      "Count of download events processed by the reconciler.",
		},
		[]string{"type"},
	)

	HTTPRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "quip",
			Name:      "http_retries_total",
			Help:      "Requests re-issued after a non-2xx response.",
		},
	)

	HTTPRequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "quip",
			Name:      "http_request_duration_seconds",
			Help:      "Time to response headers for upstream download requests.",
		},
		[]string{"code"},
	)

	ActiveDownloads = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "quip",
			Name:      "active_downloads",
			Help:      "Number of transfers currently running in the engine.",
		},
	)

	BytesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "quip",
			Name:      "bytes_written_total",
			Help:      "Bytes appended to output files.",
		},
	)
)

var registerOnce sync.Once

// Register registers the quip metrics into the default registry. Safe to call
// more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(DownloadEvents, HTTPRetries, HTTPRequestLatency, ActiveDownloads, BytesWritten)
	})
}
