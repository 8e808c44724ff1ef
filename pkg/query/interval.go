package query

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/absmach/sparkpipe/pkg/errors"
)

type Unit uint8

const (
	Nanosecond Unit = iota + 1
	Microsecond
	Millisecond
	Second
	Minute
	Hour
	Day
	Week
	Month
	Year
)

var units = map[string]Unit{
	"nanosecond":  Nanosecond,
	"microsecond": Microsecond,
	"millisecond": Millisecond,
	"second":      Second,
	"minute":      Minute,
	"hour":        Hour,
	"day":         Day,
	"week":        Week,
	"month":       Month,
	"year":        Year,
}

var unitDurations = map[Unit]time.Duration{
	Nanosecond:  time.Nanosecond,
	Microsecond: time.Microsecond,
	Millisecond: time.Millisecond,
	Second:      time.Second,
	Minute:      time.Minute,
	Hour:        time.Hour,
	Day:         24 * time.Hour,
	Week:        7 * 24 * time.Hour,
	// Upper bounds, only used to estimate bucket counts.
	Month: 31 * 24 * time.Hour,
	Year:  366 * 24 * time.Hour,
}

func (u Unit) String() string {
	for name, v := range units {
		if v == u {
			return name
		}
	}

	return "unknown"
}

// Interval is a bucket width. Month and year widths are calendar aligned and
// only allowed with N == 1.
type Interval struct {
	N    int64
	Unit Unit
}

func (i Interval) IsZero() bool {
	return i.N == 0
}

// Calendar reports whether the interval has no fixed duration.
func (i Interval) Calendar() bool {
	return i.Unit == Month || i.Unit == Year
}

// Duration is exact for fixed units and an upper bound for calendar units.
func (i Interval) Duration() time.Duration {
	return time.Duration(i.N) * unitDurations[i.Unit]
}

func (i Interval) String() string {
	if i.IsZero() {
		return ""
	}
	s := fmt.Sprintf("%d %s", i.N, i.Unit)
	if i.N != 1 {
		s += "s"
	}

	return s
}

// Truncate returns the start of the bucket containing t. Fixed widths are
// aligned to origin, or to the UNIX epoch when origin is zero. Calendar widths
// always start at the UTC month or year.
func (i Interval) Truncate(t, origin time.Time) time.Time {
	t = t.UTC()
	switch i.Unit {
	case Month:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case Year:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	}

	var base int64
	if !origin.IsZero() {
		base = origin.UnixNano()
	}
	w := int64(i.Duration())
	ns := t.UnixNano() - base
	floor := ns / w * w
	if ns < 0 && ns%w != 0 {
		floor -= w
	}

	return time.Unix(0, base+floor).UTC()
}

// ParseInterval accepts forms such as "1 hour", "15 minutes", "interval '2 days'" and "week".
func ParseInterval(s string) (Interval, error) {
	in := strings.ToLower(strings.TrimSpace(s))
	in = strings.TrimSpace(strings.TrimPrefix(in, "interval"))
	in = strings.Trim(in, `'" `)

	fields := strings.Fields(in)
	var (
		n    int64 = 1
		unit string
	)
	switch len(fields) {
	case 1:
		unit = fields[0]
	case 2:
		v, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil || v <= 0 {
			return Interval{}, fmt.Errorf("%w: invalid interval count %q", pkgerrors.ErrQueryValidation, fields[0])
		}
		n = v
		unit = fields[1]
	default:
		return Interval{}, fmt.Errorf("%w: invalid interval %q", pkgerrors.ErrQueryValidation, s)
	}

	u, ok := units[strings.TrimSuffix(unit, "s")]
	if !ok {
		return Interval{}, fmt.Errorf("%w: unsupported interval unit %q", pkgerrors.ErrQueryValidation, unit)
	}
	if (u == Month || u == Year) && n != 1 {
		return Interval{}, fmt.Errorf("%w: %s buckets only support a width of 1", pkgerrors.ErrQueryValidation, u)
	}
	if n > math.MaxInt64/int64(unitDurations[u]) {
		return Interval{}, fmt.Errorf("%w: interval %q is too large", pkgerrors.ErrQueryValidation, s)
	}

	return Interval{N: n, Unit: u}, nil
}

var standardIntervals = []Interval{
	{1, Millisecond}, {10, Millisecond}, {100, Millisecond},
	{1, Second}, {5, Second}, {10, Second}, {30, Second},
	{1, Minute}, {5, Minute}, {15, Minute}, {30, Minute},
	{1, Hour}, {3, Hour}, {6, Hour}, {12, Hour},
	{1, Day}, {1, Week}, {1, Month}, {1, Year},
}

// SuggestInterval picks the smallest standard width that keeps the number of
// buckets between start and end at or below target.
func SuggestInterval(start, end time.Time, target int) Interval {
	if target <= 0 {
		target = DefaultTargetRows
	}
	span := end.Sub(start)
	for _, iv := range standardIntervals {
		if bucketCount(span, iv) <= int64(target) {
			return iv
		}
	}

	return standardIntervals[len(standardIntervals)-1]
}

func bucketCount(span time.Duration, iv Interval) int64 {
	if span <= 0 {
		return 1
	}
	w := iv.Duration()
	n := int64((span + w - 1) / w)
	// Calendar buckets do not follow the range start.
	if iv.Calendar() {
		n++
	}

	return n
}
