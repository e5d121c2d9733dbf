package v1

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/tinoosan/quip/internal/data"
	"github.com/tinoosan/quip/internal/service"
)

type DownloadHandler struct {
	l   *slog.Logger
	svc service.Download
}

type addBody struct {
	URL      string            `json:"url"`
	FileName string            `json:"fileName,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
}

type patchBody struct {
	DesiredStatus string `json:"desiredStatus"`
}

type rwLogger struct {
	http.ResponseWriter
	status int
	bytes  int
	err    error
}

func (w *rwLogger) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *rwLogger) SetErr(err error) {
	w.err = err
}

func (w *rwLogger) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}

	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Hijack lets websocket upgrades pass through the logging wrapper.
func (w *rwLogger) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	w.status = http.StatusSwitchingProtocols
	return http.NewResponseController(w.ResponseWriter).Hijack()
}

type errorSetter interface {
	SetErr(error)
}

func markErr(w http.ResponseWriter, err error) {
	if es, ok := w.(errorSetter); ok {
		es.SetErr(err)
	}
}

// writeError maps service errors onto status codes.
func writeError(w http.ResponseWriter, err error) {
	markErr(w, err)
	switch {
	case errors.Is(err, data.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, data.ErrBadStatus):
		http.Error(w, "Invalid desiredStatus (allowed: Active|Paused|Cancelled)", http.StatusBadRequest)
	case errors.Is(err, data.ErrInvalidSource):
		http.Error(w, "url must be an absolute http or https URL", http.StatusBadRequest)
	case errors.Is(err, data.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// context keys
type ctxKeyDownload struct{}
type ctxKeyPatch struct{}

func NewDownloadHandler(l *slog.Logger, svc service.Download) *DownloadHandler {
	return &DownloadHandler{l: l, svc: svc}
}

func (dh *DownloadHandler) GetDownloads(w http.ResponseWriter, r *http.Request) {
	list, err := dh.svc.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, newDownloadViews(list)); err != nil {
		markErr(w, err)
	}
}

func (dh *DownloadHandler) GetDownload(w http.ResponseWriter, r *http.Request) {
	d, err := dh.svc.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	_ = writeJSON(w, http.StatusOK, newDownloadView(d))
}

func (dh *DownloadHandler) AddDownload(w http.ResponseWriter, r *http.Request) {
	body, ok := r.Context().Value(ctxKeyDownload{}).(addBody)
	if !ok {
		markErr(w, ErrDownloadCtx)
		http.Error(w, ErrDownloadCtx.Error(), http.StatusInternalServerError)
		return
	}

	d, err := dh.svc.Add(r.Context(), service.AddRequest{
		URL:      body.URL,
		FileName: body.FileName,
		Headers:  body.Headers,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Location", "/v1/downloads/"+d.ID)
	_ = writeJSON(w, http.StatusCreated, newDownloadView(d))
}

func (dh *DownloadHandler) UpdateDownload(w http.ResponseWriter, r *http.Request) {
	body, ok := r.Context().Value(ctxKeyPatch{}).(patchBody)
	if !ok || body.DesiredStatus == "" {
		markErr(w, ErrDesiredStatus)
		http.Error(w, ErrDesiredStatus.Error(), http.StatusInternalServerError)
		return
	}

	updated, err := dh.svc.UpdateDesiredStatus(r.Context(), mux.Vars(r)["id"], service.DesiredStatus(body.DesiredStatus))
	if err != nil {
		writeError(w, err)
		return
	}
	_ = writeJSON(w, http.StatusOK, newDownloadView(updated))
}

func (dh *DownloadHandler) DeleteDownload(w http.ResponseWriter, r *http.Request) {
	if err := dh.svc.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
