package reports

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// AssignedLayout is the wall-clock layout used for server-assigned
// timestamps. A literal "Z" is appended without converting to UTC.
const AssignedLayout = "2006-01-02T15:04:05.000000"

var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
}

// FormatTimestamp renders t's local wall clock with a trailing "Z".
func FormatTimestamp(t time.Time) string {
	return t.Format(AssignedLayout) + "Z"
}

// ParseTimestamp accepts the ISO-8601 forms browsers and the legacy server
// produce. Any offset is parsed and then dropped: the result carries the
// written wall-clock fields in UTC so it can be compared with WallClock.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) > 10 && s[10] == ' ' {
		s = s[:10] + "T" + s[11:]
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return WallClock(t), nil
		}
	}
	return time.Time{}, errors.Errorf("unrecognized timestamp %q", s)
}

// WallClock strips the location from t, keeping its clock reading.
func WallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
