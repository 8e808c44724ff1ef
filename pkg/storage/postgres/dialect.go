package postgres

import (
	"fmt"
	"time"

	"github.com/absmach/sparkpipe/pkg/query"
)

type dialect struct{}

// Bucket uses date_bin anchored at origin. PostgreSQL intervals have
// microsecond resolution, so sub-microsecond widths round up to 1us.
func (dialect) Bucket(column string, iv query.Interval, origin time.Time) (string, []any, error) {
	switch iv.Unit {
	case query.Month:
		return fmt.Sprintf("date_trunc('month', %s, 'UTC')", column), nil, nil
	case query.Year:
		return fmt.Sprintf("date_trunc('year', %s, 'UTC')", column), nil, nil
	}

	us := iv.Duration().Microseconds()
	if us < 1 {
		us = 1
	}
	if origin.IsZero() {
		origin = time.Unix(0, 0)
	}

	return fmt.Sprintf("date_bin(CAST(? AS INTERVAL), %s, CAST(? AS TIMESTAMPTZ))", column),
		[]any{fmt.Sprintf("%d microseconds", us), origin.UTC()}, nil
}

func (dialect) Float(column string) string {
	return fmt.Sprintf("CAST(%s AS DOUBLE PRECISION)", column)
}

func (dialect) Time(t time.Time) any {
	return t.UTC()
}
