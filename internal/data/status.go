package data

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a download. The numeric values are the
// persisted encoding and must not be reordered.
type Status int

const (
	StatusPending     Status = 1
	StatusDownloading Status = 2
	StatusPaused      Status = 3
	StatusCompleted   Status = 4
	StatusCancelled   Status = 5
)

var statusNames = map[Status]string{
	StatusPending:     "Pending",
	StatusDownloading: "Downloading",
	StatusPaused:      "Paused",
	StatusCompleted:   "Completed",
	StatusCancelled:   "Cancelled",
}

// FormatStatus returns the display label for s.
func FormatStatus(s Status) string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "Unknown"
}

// ParseStatus is the inverse of FormatStatus, case-insensitive.
func ParseStatus(s string) (Status, error) {
	for st, name := range statusNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return st, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrBadStatus, s)
}

// IsTerminal reports whether no further transitions are possible from s.
func IsTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusCancelled
}
