package transport

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/tinoosan/quip/internal/metrics"
)

// DefaultMaxRetry is the number of re-issues after the first attempt.
const DefaultMaxRetry = 3

// RetryTransport re-issues a request immediately while the response status is
// outside 2xx, up to MaxRetry extra times, and hands back the last response
// whatever its status. Connection errors are returned at once.
type RetryTransport struct {
	Base     http.RoundTripper
	MaxRetry int
}

var _ http.RoundTripper = (*RetryTransport)(nil)

func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.do(req)
	if err != nil {
		return nil, err
	}
	for retries := 0; !IsSuccess(resp.StatusCode) && retries < t.MaxRetry; retries++ {
		discard(resp)
		metrics.HTTPRetries.Inc()
		resp, err = t.do(req)
		if err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func (t *RetryTransport) do(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	start := time.Now()
	resp, err := base.RoundTrip(req)
	code := "error"
	if err == nil {
		code = statusClass(resp.StatusCode)
	}
	metrics.HTTPRequestLatency.WithLabelValues(code).Observe(time.Since(start).Seconds())
	return resp, err
}

// IsSuccess reports whether code is in [200, 300).
func IsSuccess(code int) bool { return code >= 200 && code < 300 }

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

// discard drains a bounded amount so the connection can be reused, then closes.
func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, resp.Body, 64<<10)
	_ = resp.Body.Close()
}
