package storage

import (
	"context"

	"github.com/absmach/sparkpipe/pkg/query"
)

// Repository persists tag values and device status transitions and answers
// historical queries over them.
type Repository interface {
	SaveTags(ctx context.Context, rows []query.TagRow) error
	SaveStatuses(ctx context.Context, rows []query.StatusRow) error

	// QueryTags returns raw rows ordered by timestamp.
	QueryTags(ctx context.Context, q query.Query) ([]query.TagRow, error)
	// AggregateTags returns one row per non-empty bucket ordered by bucket start.
	AggregateTags(ctx context.Context, q query.Query) ([]query.Bucket, error)
	CountTags(ctx context.Context, f query.Filter) (uint64, error)

	QueryStatuses(ctx context.Context, q query.Query) ([]query.StatusRow, error)
	AggregateStatuses(ctx context.Context, q query.Query) ([]query.Bucket, error)
	CountStatuses(ctx context.Context, f query.Filter) (uint64, error)
}
