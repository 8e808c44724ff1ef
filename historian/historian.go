// Package historian ties the Sparkplug ingest path to the query surface.
// The Ingestor consumes broker messages into the device state store and the
// write batcher; the Service answers current-value and history questions.
package historian

import (
	"context"
	"time"

	"github.com/absmach/sparkpipe/pkg/devicestate"
)

type Service interface {
	// Topology returns the live device tree, optionally narrowed to one device
	// reference.
	Topology(ctx context.Context, device string) (Topology, error)
	CurrentTime(ctx context.Context) (string, error)
	CurrentTagValue(ctx context.Context, device, tag string) (TagValue, error)

	Status(ctx context.Context, req Request) (Result, error)
	StatusCount(ctx context.Context, req Request) (uint64, error)
	TagHistory(ctx context.Context, req Request) (Result, error)
	TagHistoryCount(ctx context.Context, req Request) (uint64, error)
}

type Config struct {
	// Location renders and parses timestamps without an explicit offset.
	Location   *time.Location `env:"-"`
	Timezone   string         `env:"TIMEZONE"    envDefault:"UTC"`
	TargetRows int            `env:"TARGET_ROWS" envDefault:"300"`
	MaxRows    int            `env:"MAX_ROWS"    envDefault:"1000"`
}

// Request is a bounded history or status query. Filter is an SQL-like
// predicate; the remaining fields are conveniences ANDed onto it.
type Request struct {
	Filter    string `json:"filter,omitempty"`
	Device    string `json:"device,omitempty"`
	Tag       string `json:"tag,omitempty"`
	Status    string `json:"status,omitempty"`
	Start     string `json:"start,omitempty"`
	End       string `json:"end,omitempty"`
	Bucket    string `json:"bucket,omitempty"`
	Aggregate string `json:"aggregate,omitempty"`
	Order     string `json:"order,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

type Row struct {
	Timestamp string `json:"timestamp"`
	Group     string `json:"group"`
	Node      string `json:"node"`
	Device    string `json:"device"`
	Tag       string `json:"tag,omitempty"`
	Value     string `json:"value,omitempty"`
	DataType  string `json:"datatype,omitempty"`
	Status    string `json:"status,omitempty"`
}

type BucketRow struct {
	Bucket string  `json:"bucket"`
	Value  float64 `json:"value"`
	Count  int64   `json:"count"`
}

// Result carries either raw rows or aggregated buckets. Message holds the
// no-results sentinel when nothing matched.
type Result struct {
	Rows      []Row       `json:"rows,omitempty"`
	Buckets   []BucketRow `json:"buckets,omitempty"`
	Interval  string      `json:"interval,omitempty"`
	Aggregate string      `json:"aggregate,omitempty"`
	Truncated bool        `json:"truncated,omitempty"`
	Message   string      `json:"message,omitempty"`
}

func (r Result) Empty() bool {
	return len(r.Rows) == 0 && len(r.Buckets) == 0
}

type TagValue struct {
	Device    string `json:"device"`
	Tag       string `json:"tag"`
	Value     string `json:"value"`
	DataType  string `json:"datatype"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
}

// MetricPath is one leaf of the topology flattened to
// "{namespace}/{group}/{node}/{device}/{tag}".
type MetricPath struct {
	Path      string `json:"path"`
	Value     string `json:"value"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
}

type Topology struct {
	Tree    devicestate.Topology `json:"tree"`
	Paths   []MetricPath         `json:"paths"`
	Message string               `json:"message,omitempty"`
}
