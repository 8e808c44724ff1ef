package query

import (
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/absmach/sparkpipe/pkg/errors"
)

// TimeLayout is the rendering used for every timestamp returned to callers.
const TimeLayout = "2006-01-02 15:04:05.000-0700"

var zonedLayouts = []string{
	"2006-01-02 15:04:05-0700",
	"2006-01-02 15:04:05.999999999-0700",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	time.RFC3339Nano,
}

var localLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime reads a timestamp literal. Literals without a zone offset are
// interpreted in loc, or UTC when loc is nil.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: invalid time %q", pkgerrors.ErrQueryValidation, s)
}

func FormatTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}

	return t.In(loc).Format(TimeLayout)
}
