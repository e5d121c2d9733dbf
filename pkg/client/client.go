// Package client talks to a quip server over its HTTP and websocket API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	v1 "github.com/tinoosan/quip/api/v1"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("quip: %d %s", e.StatusCode, e.Message)
}

// DownloadError is a failed attempt reported on the progress stream. The
// download is left in Status and can be resumed.
type DownloadError struct {
	ID      string
	Status  string
	Message string
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s failed: %s", e.ID, e.Message)
}

// ErrStreamEnded is returned by Download when the progress stream closes
// before the download reaches a terminal status.
var ErrStreamEnded = errors.New("progress stream ended")

type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
}

// AddRequest mirrors the POST /v1/downloads body.
type AddRequest struct {
	URL      string            `json:"url"`
	FileName string            `json:"fileName,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
}

// New returns a client for the server at baseURL. hc may be nil.
func New(baseURL, token string, hc *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: u, token: token, http: hc}, nil
}

func (c *Client) Add(ctx context.Context, req AddRequest) (*v1.DownloadView, error) {
	var out v1.DownloadView
	if err := c.do(ctx, http.MethodPost, "/v1/downloads", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Get(ctx context.Context, id string) (*v1.DownloadView, error) {
	var out v1.DownloadView
	if err := c.do(ctx, http.MethodGet, "/v1/downloads/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) List(ctx context.Context) ([]v1.DownloadView, error) {
	var out []v1.DownloadView
	if err := c.do(ctx, http.MethodGet, "/v1/downloads", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetDesiredStatus asks the server to move a download to Active, Paused or
// Cancelled.
func (c *Client) SetDesiredStatus(ctx context.Context, id, status string) (*v1.DownloadView, error) {
	var out v1.DownloadView
	body := map[string]string{"desiredStatus": status}
	if err := c.do(ctx, http.MethodPatch, "/v1/downloads/"+url.PathEscape(id), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/downloads/"+url.PathEscape(id), nil, nil)
}

// Progress streams progress updates for id. The channel is closed when the
// server ends the stream or ctx is cancelled.
func (c *Client) Progress(ctx context.Context, id string) (<-chan v1.ProgressView, error) {
	wsURL := *c.baseURL
	switch wsURL.Scheme {
	case "http":
		wsURL.Scheme = "ws"
	case "https":
		wsURL.Scheme = "wss"
	}
	wsURL.Path += "/v1/downloads/" + url.PathEscape(id) + "/progress"

	conn, _, err := websocket.Dial(ctx, wsURL.String(), &websocket.DialOptions{
		HTTPClient: c.http,
		HTTPHeader: c.authHeader(),
	})
	if err != nil {
		return nil, err
	}
	ch := make(chan v1.ProgressView, 8)
	go func() {
		defer close(ch)
		defer func() { _ = conn.Close(websocket.StatusNormalClosure, "done") }()
		for {
			var p v1.ProgressView
			if err := wsjson.Read(ctx, conn, &p); err != nil {
				return
			}
			select {
			case ch <- p:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Download adds url and blocks until it is Completed or Cancelled, calling
// onProgress for every update. A failed attempt ends it with a
// *DownloadError. A paused download keeps Download waiting until it is
// resumed or ctx ends.
func (c *Client) Download(ctx context.Context, rawURL string, onProgress func(v1.ProgressView)) (*v1.DownloadView, error) {
	d, err := c.Add(ctx, AddRequest{URL: rawURL})
	if err != nil {
		return nil, err
	}
	updates, err := c.Progress(ctx, d.ID)
	if err != nil {
		return d, err
	}
	for p := range updates {
		if onProgress != nil {
			onProgress(p)
		}
		if p.Failed {
			return c.final(ctx, d, p), &DownloadError{ID: d.ID, Status: p.Status, Message: p.Error}
		}
		if p.Status == "Completed" || p.Status == "Cancelled" {
			return c.final(ctx, d, p), nil
		}
	}
	if err := ctx.Err(); err != nil {
		return d, err
	}
	return d, ErrStreamEnded
}

// final reads the stored download and lays the last stream frame over it,
// since the stored row can lag the live stream by one write.
func (c *Client) final(ctx context.Context, d *v1.DownloadView, p v1.ProgressView) *v1.DownloadView {
	out, err := c.Get(ctx, d.ID)
	if err != nil {
		out = d
	}
	out.Status = p.Status
	out.BytesTransferred = p.BytesTransferred
	out.TotalBytes = p.TotalBytes
	out.Percent = p.Percent
	out.Display = p.Display
	out.Error = p.Error
	return out
}

func (c *Client) authHeader() http.Header {
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	return h
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return err
	}
	req.Header = c.authHeader()
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
