package sqlite

import (
	"fmt"
	"time"

	"github.com/absmach/sparkpipe/pkg/query"
)

type dialect struct{}

// Bucket works on UNIX nanoseconds. Rows never precede origin because it is
// the lower bound of the same filter.
func (dialect) Bucket(column string, iv query.Interval, origin time.Time) (string, []any, error) {
	switch iv.Unit {
	case query.Month:
		return fmt.Sprintf("CAST(strftime('%%s', %s / 1000000000, 'unixepoch', 'start of month') AS INTEGER) * 1000000000", column), nil, nil
	case query.Year:
		return fmt.Sprintf("CAST(strftime('%%s', %s / 1000000000, 'unixepoch', 'start of year') AS INTEGER) * 1000000000", column), nil, nil
	}

	w := int64(iv.Duration())
	if origin.IsZero() {
		return fmt.Sprintf("(%s / ?) * ?", column), []any{w, w}, nil
	}
	base := origin.UnixNano()

	return fmt.Sprintf("((%s - ?) / ?) * ? + ?", column), []any{base, w, w, base}, nil
}

func (dialect) Float(column string) string {
	return fmt.Sprintf("CAST(%s AS REAL)", column)
}

func (dialect) Time(t time.Time) any {
	return t.UnixNano()
}
