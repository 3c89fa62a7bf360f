package wallclock

import (
	"fmt"
	"time"
)

const (
	zonedLayout = "2006-01-02T15:04:05-07:00"
	naiveLayout = "2006-01-02T15:04:05"
)

// Layouts accepted by Parse, tried in order. The API mixes naive local
// times ("2024-01-01T10:00:00") with offset ones.
var layouts = []struct {
	layout string
	zoned  bool
}{
	{time.RFC3339Nano, true},
	{"2006-01-02T15:04:05Z0700", true},
	{"2006-01-02T15:04Z07:00", true},
	{"2006-01-02T15:04:05.999999999", false},
	{"2006-01-02 15:04:05", false},
	{"2006-01-02T15:04", false},
	{"2006-01-02 15:04", false},
	{"2006-01-02", false},
}

// Stamp is a parsed timestamp that remembers whether the source carried a
// UTC offset.
type Stamp struct {
	Time  time.Time
	Zoned bool
}

func Parse(s string) (Stamp, error) {
	for _, l := range layouts {
		t, err := time.Parse(l.layout, s)
		if err == nil {
			return Stamp{Time: t, Zoned: l.zoned}, nil
		}
	}
	return Stamp{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// IsoString renders the stamp as ISO-8601, with the offset only when the
// source had one. Fractional seconds are written as microseconds.
func (s Stamp) IsoString() string {
	layout := naiveLayout
	if s.Zoned {
		layout = zonedLayout
	}
	if s.Time.Nanosecond() != 0 {
		if s.Zoned {
			layout = "2006-01-02T15:04:05.000000-07:00"
		} else {
			layout = "2006-01-02T15:04:05.000000"
		}
	}
	return s.Time.Format(layout)
}

// Naive drops the location of t and keeps its wall clock reading.
func Naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// Compare orders a and b by their wall clock components only.
func Compare(a, b time.Time) int {
	return Naive(a).Compare(Naive(b))
}
