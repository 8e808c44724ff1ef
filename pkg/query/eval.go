package query

import (
	"math"
	"regexp"
	"slices"
	"strconv"
	"time"
)

// Matcher evaluates a Filter against rows held in memory.
type Matcher struct {
	conds []Condition
	likes map[int]*regexp.Regexp
}

func NewMatcher(f Filter) (*Matcher, error) {
	m := &Matcher{conds: f.Conditions, likes: map[int]*regexp.Regexp{}}
	for i, c := range f.Conditions {
		if c.Op != OpLike {
			continue
		}
		re, err := LikePattern(c.Value)
		if err != nil {
			return nil, err
		}
		m.likes[i] = re
	}

	return m, nil
}

func (m *Matcher) MatchTag(r TagRow) bool {
	return m.match(func(f Field) string {
		switch f {
		case FieldGroup:
			return r.Group
		case FieldNode:
			return r.Node
		case FieldDevice:
			return r.Device
		case FieldTag:
			return r.Tag
		case FieldValue:
			return r.Value
		}

		return ""
	}, r.Timestamp)
}

func (m *Matcher) MatchStatus(r StatusRow) bool {
	return m.match(func(f Field) string {
		switch f {
		case FieldGroup:
			return r.Group
		case FieldNode:
			return r.Node
		case FieldDevice:
			return r.Device
		case FieldStatus:
			return r.Status
		}

		return ""
	}, r.Timestamp)
}

func (m *Matcher) match(column func(Field) string, ts time.Time) bool {
	for i, c := range m.conds {
		if c.Field == FieldTS {
			if !compareTime(ts, c.Op, c.Time) {
				return false
			}

			continue
		}

		v := column(c.Field)
		switch c.Op {
		case OpEq:
			if v != c.Value {
				return false
			}
		case OpNe:
			if v == c.Value {
				return false
			}
		case OpLike:
			if !m.likes[i].MatchString(v) {
				return false
			}
		default:
			return false
		}
	}

	return true
}

func compareTime(ts time.Time, op Op, ref time.Time) bool {
	c := ts.Compare(ref)
	switch op {
	case OpEq:
		return c == 0
	case OpNe:
		return c != 0
	case OpLt:
		return c < 0
	case OpLe:
		return c <= 0
	case OpGt:
		return c > 0
	case OpGe:
		return c >= 0
	}

	return false
}

// Point is the projection of a row the aggregator needs. Numeric is false for
// values that must be skipped by avg, min and max.
type Point struct {
	Timestamp time.Time
	Value     float64
	Numeric   bool
}

func TagPoint(r TagRow) Point {
	p := Point{Timestamp: r.Timestamp}
	if !NumericType(r.DataType) {
		return p
	}
	if v, err := strconv.ParseFloat(r.Value, 64); err == nil {
		p.Value = v
		p.Numeric = true
	}

	return p
}

func StatusPoint(r StatusRow) Point {
	return Point{Timestamp: r.Timestamp}
}

// Fold aggregates points into the buckets described by q. Buckets with no
// contributing rows are omitted. The result is ordered by bucket start.
func Fold(points []Point, q Query) []Bucket {
	origin := q.Origin()
	type acc struct {
		sum, min, max float64
		count, rows   int64
	}
	accs := map[time.Time]*acc{}
	for _, p := range points {
		start := q.Bucket.Truncate(p.Timestamp, origin)
		a, ok := accs[start]
		if !ok {
			a = &acc{min: math.Inf(1), max: math.Inf(-1)}
			accs[start] = a
		}
		a.rows++
		if !p.Numeric {
			continue
		}
		a.count++
		a.sum += p.Value
		a.min = math.Min(a.min, p.Value)
		a.max = math.Max(a.max, p.Value)
	}

	buckets := make([]Bucket, 0, len(accs))
	for start, a := range accs {
		b := Bucket{Start: start}
		switch q.Aggregate {
		case AggCount:
			b.Value = float64(a.rows)
			b.Count = a.rows
		case AggMin, AggMax, AggAvg:
			if a.count == 0 {
				continue
			}
			b.Count = a.count
			switch q.Aggregate {
			case AggMin:
				b.Value = a.min
			case AggMax:
				b.Value = a.max
			default:
				b.Value = a.sum / float64(a.count)
			}
		}
		buckets = append(buckets, b)
	}

	slices.SortFunc(buckets, func(x, y Bucket) int {
		return x.Start.Compare(y.Start)
	})
	if q.Order == Desc {
		slices.Reverse(buckets)
	}

	return buckets
}

// SortTags orders rows by timestamp then sequence.
func SortTags(rows []TagRow, order Order) {
	slices.SortStableFunc(rows, func(a, b TagRow) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}

		return cmpSeq(a.Seq, b.Seq)
	})
	if order == Desc {
		slices.Reverse(rows)
	}
}

func SortStatuses(rows []StatusRow, order Order) {
	slices.SortStableFunc(rows, func(a, b StatusRow) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}

		return cmpSeq(a.Seq, b.Seq)
	})
	if order == Desc {
		slices.Reverse(rows)
	}
}

func cmpSeq(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Limit truncates s to at most n elements when n is positive.
func Limit[T any](s []T, n int) []T {
	if n > 0 && len(s) > n {
		return s[:n]
	}

	return s
}
