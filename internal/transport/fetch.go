package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// ErrStatus matches any Error caused by a non-2xx final response.
var ErrStatus = errors.New("unexpected http status")

// Error is returned when no usable response could be obtained, either because
// the connection failed or because the final response was not 2xx.
type Error struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("GET %s: http %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("GET %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	if e.StatusCode != 0 {
		return ErrStatus
	}
	return e.Err
}

// Request describes one download attempt.
type Request struct {
	URL     string
	Headers map[string]string
	// Offset asks for the resource from this byte on. It is only sent to
	// the server when Ranged is set.
	Offset int64
	Ranged bool
}

// Response is a successful upstream response.
type Response struct {
	Raw *http.Response
	// Total is the full resource length, 0 when the server did not say.
	Total int64
	// Partial is true when the server honoured the range and the body
	// starts at the requested offset.
	Partial bool
}

// Fetch issues the GET described by r. A non-2xx final status is turned into
// an *Error and its body is closed.
func Fetch(ctx context.Context, c *http.Client, r Request) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return nil, &Error{URL: r.URL, Err: err}
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	if r.Ranged && r.Offset > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(r.Offset, 10)+"-")
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, &Error{URL: r.URL, Err: err}
	}
	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && r.Ranged && r.Offset > 0 {
		// "bytes */N" with N == Offset: the earlier attempts already
		// wrote the whole resource.
		if total, ok := unsatisfiedRange(resp.Header.Get("Content-Range")); ok && total == r.Offset {
			discard(resp)
			resp.Body = http.NoBody
			return &Response{Raw: resp, Total: total, Partial: true}, nil
		}
	}
	if !IsSuccess(resp.StatusCode) {
		discard(resp)
		return nil, &Error{URL: r.URL, StatusCode: resp.StatusCode}
	}

	out := &Response{Raw: resp, Total: max(resp.ContentLength, 0)}
	if resp.StatusCode == http.StatusPartialContent && r.Ranged && r.Offset > 0 {
		total, start, ok := ParseContentRange(resp.Header.Get("Content-Range"))
		if !ok || start != r.Offset {
			discard(resp)
			return nil, &Error{URL: r.URL, StatusCode: resp.StatusCode}
		}
		out.Partial = true
		out.Total = total
	}
	return out, nil
}

// ParseContentRange parses "bytes start-end/total". total is 0 when the
// server sent "*".
func ParseContentRange(v string) (total, start int64, ok bool) {
	v, found := strings.CutPrefix(strings.TrimSpace(v), "bytes ")
	if !found {
		return 0, 0, false
	}
	span, size, found := strings.Cut(v, "/")
	if !found {
		return 0, 0, false
	}
	first, _, found := strings.Cut(span, "-")
	if !found {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, false
	}
	if size != "*" {
		if total, err = strconv.ParseInt(size, 10, 64); err != nil {
			return 0, 0, false
		}
	}
	return total, start, true
}

// unsatisfiedRange parses the "bytes */total" form sent with a 416.
func unsatisfiedRange(v string) (int64, bool) {
	size, found := strings.CutPrefix(strings.TrimSpace(v), "bytes */")
	if !found {
		return 0, false
	}
	total, err := strconv.ParseInt(size, 10, 64)
	if err != nil || total < 0 {
		return 0, false
	}
	return total, true
}
