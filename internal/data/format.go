package data

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Percent returns the completed percentage of p. ok is false when the total
// is not known yet and the progress is indeterminate.
func Percent(p Progress) (pct int, ok bool) {
	if p.TotalBytes <= 0 {
		return 0, false
	}
	pct = int(p.BytesTransferred * 100 / p.TotalBytes)
	if pct > 100 {
		pct = 100
	}
	return pct, true
}

// FormatProgress renders "transferred / total", e.g. "1.2 MB / 4.0 MB".
func FormatProgress(p Progress) string {
	done := humanize.Bytes(uint64(max(p.BytesTransferred, 0)))
	if p.TotalBytes <= 0 {
		return fmt.Sprintf("%s / ?", done)
	}
	return fmt.Sprintf("%s / %s", done, humanize.Bytes(uint64(p.TotalBytes)))
}
