package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/tinoosan/quip/internal/data"
	"github.com/tinoosan/quip/internal/reqid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const wsWriteTimeout = 5 * time.Second

// StreamProgress upgrades to a websocket and pushes a ProgressView for every
// update of one download. The stream ends with a normal closure once the
// download is Completed or Cancelled.
func (dh *DownloadHandler) StreamProgress(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := dh.svc.Get(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		markErr(w, err)
		return
	}
	defer func() { _ = c.CloseNow() }()

	// Clients only listen; CloseRead cancels ctx when they go away.
	ctx := c.CloseRead(r.Context())
	updates, err := dh.svc.Progress(ctx, id)
	if err != nil {
		_ = c.Close(websocket.StatusInternalError, "progress unavailable")
		return
	}

	for p := range updates {
		if err := writeWS(ctx, c, newProgressView(id, p)); err != nil {
			dh.logWSErr(r.Context(), id, err)
			return
		}
		if data.IsTerminal(p.Status) {
			_ = c.Close(websocket.StatusNormalClosure, data.FormatStatus(p.Status))
			return
		}
	}
	_ = c.Close(websocket.StatusNormalClosure, "")
}

// WatchDownloads pushes the full download list after every change.
func (dh *DownloadHandler) WatchDownloads(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		markErr(w, err)
		return
	}
	defer func() { _ = c.CloseNow() }()

	ctx := c.CloseRead(r.Context())
	lists, err := dh.svc.Watch(ctx)
	if err != nil {
		_ = c.Close(websocket.StatusInternalError, "watch unavailable")
		return
	}
	for list := range lists {
		if err := writeWS(ctx, c, newDownloadViews(list)); err != nil {
			dh.logWSErr(r.Context(), "", err)
			return
		}
	}
	_ = c.Close(websocket.StatusNormalClosure, "")
}

func writeWS(ctx context.Context, c *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, c, v)
}

func (dh *DownloadHandler) logWSErr(ctx context.Context, id string, err error) {
	if errors.Is(err, context.Canceled) || websocket.CloseStatus(err) != -1 {
		return
	}
	reqid.Logger(ctx, dh.l).Warn("websocket write failed", "id", id, "err", err)
}
