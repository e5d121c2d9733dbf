package data

import (
	"errors"
	"maps"
	"net/url"
	"time"
)

// Download is a single resumable transfer. ID stays the same across pause and
// resume; everything else describing the attempt lives in Progress.
type Download struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	FileName string `json:"fileName"`
	// Size is the total length declared by the server, 0 until known.
	Size int64 `json:"size"`
	// FileSize is the byte length of the output file on disk.
	FileSize int64             `json:"fileSize"`
	Headers  map[string]string `json:"headers,omitempty"`
	// Checksum is the hex SHA-256 of the output file, set on completion.
	Checksum  string    `json:"checksum,omitempty"`
	Progress  Progress  `json:"progress"`
	CreatedAt time.Time `json:"createdAt"`
}

// Progress is the snapshot observers receive while a transfer runs.
type Progress struct {
	BytesTransferred int64  `json:"bytesTransferred"`
	TotalBytes       int64  `json:"totalBytes"`
	Status           Status `json:"status"`
	// Error is why the last attempt failed. A new attempt clears it.
	Error string `json:"error,omitempty"`
}

type Downloads []*Download

var (
	ErrNotFound      = errors.New("download not found")
	ErrBadStatus     = errors.New("invalid status")
	ErrConflict      = errors.New("download conflict")
	ErrInvalidSource = errors.New("invalid source url")
)

// Clone returns a deep copy so callers never share the header map.
func (d *Download) Clone() *Download {
	if d == nil {
		return nil
	}
	cp := *d
	if d.Headers != nil {
		cp.Headers = maps.Clone(d.Headers)
	}
	return &cp
}

// Clone deep-copies every element.
func (ds Downloads) Clone() Downloads {
	if ds == nil {
		return nil
	}
	out := make(Downloads, len(ds))
	for i, d := range ds {
		out[i] = d.Clone()
	}
	return out
}

// ValidateURL accepts absolute http and https URLs with a host.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidSource
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidSource
	}
	return nil
}
