package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAndGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(DownloadEvents, HTTPRetries, HTTPRequestLatency, ActiveDownloads, BytesWritten)

	DownloadEvents.WithLabelValues("Complete").Inc()
	HTTPRetries.Add(3)
	ActiveDownloads.Set(2)
	BytesWritten.Add(1000)

	expectedEvents := `# HELP quip_download_events_total Count of download events processed by the reconciler.
# TYPE quip_download_events_total counter
quip_download_events_total{type="Complete"} 1
`
	if err := testutil.CollectAndCompare(DownloadEvents, strings.NewReader(expectedEvents)); err != nil {
		t.Fatalf("unexpected events metric: %v", err)
	}

	if got := testutil.ToFloat64(HTTPRetries); got != 3 {
		t.Fatalf("expected 3 retries got %v", got)
	}
	if got := testutil.ToFloat64(BytesWritten); got != 1000 {
		t.Fatalf("expected 1000 bytes got %v", got)
	}

	expectedGauge := `# HELP quip_active_downloads Number of transfers currently running in the engine.
# TYPE quip_active_downloads gauge
quip_active_downloads 2
`
	if err := testutil.CollectAndCompare(ActiveDownloads, strings.NewReader(expectedGauge)); err != nil {
		t.Fatalf("unexpected active downloads gauge: %v", err)
	}
}

func TestRequestLatencyHistogram(t *testing.T) {
	HTTPRequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "quip",
			Name:      "http_request_duration_seconds",
			Help:      "Time to response headers for upstream download requests.",
		},
		[]string{"code"},
	)

	HTTPRequestLatency.WithLabelValues("2xx").Observe(0.03)
	HTTPRequestLatency.WithLabelValues("2xx").Observe(0.6)

	expected := `# HELP quip_http_request_duration_seconds Time to response headers for upstream download requests.
# TYPE quip_http_request_duration_seconds histogram
quip_http_request_duration_seconds_bucket{code="2xx",le="0.005"} 0
quip_http_request_duration_seconds_bucket{code="2xx",le="0.01"} 0
quip_http_request_duration_seconds_bucket{code="2xx",le="0.025"} 0
quip_http_request_duration_seconds_bucket{code="2xx",le="0.05"} 1
quip_http_request_duration_seconds_bucket{code="2xx",le="0.1"} 1
quip_http_request_duration_seconds_bucket{code="2xx",le="0.25"} 1
quip_http_request_duration_seconds_bucket{code="2xx",le="0.5"} 1
quip_http_request_duration_seconds_bucket{code="2xx",le="1"} 2
quip_http_request_duration_seconds_bucket{code="2xx",le="2.5"} 2
quip_http_request_duration_seconds_bucket{code="2xx",le="5"} 2
quip_http_request_duration_seconds_bucket{code="2xx",le="10"} 2
quip_http_request_duration_seconds_bucket{code="2xx",le="+Inf"} 2
quip_http_request_duration_seconds_sum{code="2xx"} 0.63
quip_http_request_duration_seconds_count{code="2xx"} 2
`
	if err := testutil.CollectAndCompare(HTTPRequestLatency, strings.NewReader(expected)); err != nil {
		t.Fatalf("unexpected histogram: %v", err)
	}
}
