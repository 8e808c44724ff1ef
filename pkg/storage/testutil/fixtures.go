package testutil

import (
	"fmt"
	"time"

	"github.com/absmach/sparkpipe/pkg/query"
)

// Epoch is a bucket-aligned base time used by fixtures.
var Epoch = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func TestTag(group, device, tag, value string, ts time.Time, seq uint64) query.TagRow {
	return query.TagRow{
		Timestamp: ts,
		Group:     group,
		Node:      "edge1",
		Device:    device,
		Tag:       tag,
		Value:     value,
		DataType:  "float64",
		Seq:       seq,
	}
}

func TestStatus(group, device, status string, ts time.Time, seq uint64) query.StatusRow {
	return query.StatusRow{
		Timestamp: ts,
		Group:     group,
		Node:      "edge1",
		Device:    device,
		Status:    status,
		Seq:       seq,
	}
}

// Series spreads n float64 samples for one tag evenly over span starting at
// from. Sample i has value i.
func Series(group, device, tag string, from time.Time, span time.Duration, n int) []query.TagRow {
	step := span / time.Duration(n)
	rows := make([]query.TagRow, n)
	for i := range rows {
		rows[i] = TestTag(group, device, tag, fmt.Sprint(i), from.Add(time.Duration(i)*step), uint64(i+1))
	}

	return rows
}
