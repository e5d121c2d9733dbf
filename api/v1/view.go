package v1

import (
	"time"

	"github.com/tinoosan/quip/internal/data"
)

// DownloadView is the wire shape of a download. Request headers are never
// echoed back since they often carry credentials.
type DownloadView struct {
	ID               string    `json:"id"`
	URL              string    `json:"url"`
	FileName         string    `json:"fileName"`
	Size             int64     `json:"size"`
	FileSize         int64     `json:"fileSize"`
	Status           string    `json:"status"`
	BytesTransferred int64     `json:"bytesTransferred"`
	TotalBytes       int64     `json:"totalBytes"`
	Percent          *int      `json:"percent,omitempty"`
	Display          string    `json:"display"`
	Checksum         string    `json:"checksum,omitempty"`
	Error            string    `json:"error,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// ProgressView is one message on the progress websocket. Failed marks the
// end of an attempt that did not finish; the download stays resumable.
type ProgressView struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	BytesTransferred int64  `json:"bytesTransferred"`
	TotalBytes       int64  `json:"totalBytes"`
	Percent          *int   `json:"percent,omitempty"`
	Display          string `json:"display"`
	Failed           bool   `json:"failed,omitempty"`
	Error            string `json:"error,omitempty"`
}

func percent(p data.Progress) *int {
	if pct, ok := data.Percent(p); ok {
		return &pct
	}
	return nil
}

func newDownloadView(d *data.Download) DownloadView {
	return DownloadView{
		ID:               d.ID,
		URL:              d.URL,
		FileName:         d.FileName,
		Size:             d.Size,
		FileSize:         d.FileSize,
		Status:           data.FormatStatus(d.Progress.Status),
		BytesTransferred: d.Progress.BytesTransferred,
		TotalBytes:       d.Progress.TotalBytes,
		Percent:          percent(d.Progress),
		Display:          data.FormatProgress(d.Progress),
		Checksum:         d.Checksum,
		Error:            d.Progress.Error,
		CreatedAt:        d.CreatedAt,
	}
}

func newDownloadViews(ds data.Downloads) []DownloadView {
	out := make([]DownloadView, 0, len(ds))
	for _, d := range ds {
		out = append(out, newDownloadView(d))
	}
	return out
}

func newProgressView(id string, p data.Progress) ProgressView {
	return ProgressView{
		ID:               id,
		Status:           data.FormatStatus(p.Status),
		BytesTransferred: p.BytesTransferred,
		TotalBytes:       p.TotalBytes,
		Percent:          percent(p),
		Display:          data.FormatProgress(p),
		Failed:           p.Error != "",
		Error:            p.Error,
	}
}
