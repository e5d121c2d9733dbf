package transport

import (
	"net/http"
	"time"
)

// Options configures the download HTTP client.
type Options struct {
	// MaxRetry is the number of re-issues on a non-2xx response. Negative
	// values disable retries.
	MaxRetry int
	// Timeout bounds a whole request including the body read. Zero means no
	// limit: transfers may legitimately run for hours.
	Timeout time.Duration
	Base    http.RoundTripper
}

// NewClient builds an http.Client whose transport retries non-2xx responses.
func NewClient(opts Options) *http.Client {
	retry := opts.MaxRetry
	if retry < 0 {
		retry = 0
	}
	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: &RetryTransport{Base: opts.Base, MaxRetry: retry},
	}
}
