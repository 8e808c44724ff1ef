// Package query validates historian queries and evaluates them in memory for
// backends that cannot push the work down to SQL.
package query

import (
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/absmach/sparkpipe/pkg/errors"
)

// NoResults is returned to tool callers in place of an empty result set.
const NoResults = "No results found"

const (
	DefaultTargetRows = 300
	DefaultMaxRows    = 1000
)

type Table uint8

const (
	StatusTable Table = iota
	TagTable
)

func (t Table) String() string {
	if t == TagTable {
		return "tags"
	}

	return "status"
}

type Aggregate string

const (
	AggNone  Aggregate = ""
	AggCount Aggregate = "count"
	AggAvg   Aggregate = "avg"
	AggMin   Aggregate = "min"
	AggMax   Aggregate = "max"
)

func ParseAggregate(s string) (Aggregate, error) {
	switch a := Aggregate(strings.ToLower(strings.TrimSpace(s))); a {
	case AggNone, AggCount, AggAvg, AggMin, AggMax:
		return a, nil
	default:
		return AggNone, fmt.Errorf("%w: unsupported aggregate %q", pkgerrors.ErrQueryValidation, s)
	}
}

type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "asc":
		return Asc, nil
	case "desc":
		return Desc, nil
	default:
		return Asc, fmt.Errorf("%w: unsupported order %q", pkgerrors.ErrQueryValidation, s)
	}
}

// Query is a validated request against one table. A zero Bucket means raw rows.
type Query struct {
	Filter    Filter
	Bucket    Interval
	Aggregate Aggregate
	Order     Order
	Limit     int
}

func (q Query) Bucketed() bool {
	return !q.Bucket.IsZero()
}

// Origin is the instant fixed-width buckets are aligned to: the lower time
// bound of the filter, or zero for the UNIX epoch when the range is open.
func (q Query) Origin() time.Time {
	if q.Bucket.Calendar() {
		return time.Time{}
	}
	start, _ := q.Filter.Range()

	return start
}

type TagRow struct {
	Timestamp time.Time `db:"ts"`
	Group     string    `db:"group_name"`
	Node      string    `db:"node"`
	Device    string    `db:"device"`
	Tag       string    `db:"tag"`
	Value     string    `db:"value"`
	DataType  string    `db:"datatype"`
	Seq       uint64    `db:"seq"`
}

type StatusRow struct {
	Timestamp time.Time `db:"ts"`
	Group     string    `db:"group_name"`
	Node      string    `db:"node"`
	Device    string    `db:"device"`
	Status    string    `db:"status"`
	Seq       uint64    `db:"seq"`
}

// Bucket is one aggregated time slot. Count is the number of rows that
// contributed to Value.
type Bucket struct {
	Start time.Time `db:"bucket"`
	Value float64   `db:"value"`
	Count int64     `db:"n"`
}

// NumericType reports whether values persisted with the given datatype name can be cast to a number.
func NumericType(datatype string) bool {
	switch datatype {
	case "int32", "int64", "float32", "float64":
		return true
	default:
		return false
	}
}

var NumericTypes = []string{"int32", "int64", "float32", "float64"}
