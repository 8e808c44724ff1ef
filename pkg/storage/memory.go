package storage

import (
	"context"
	"sync"

	"github.com/absmach/sparkpipe/pkg/query"
)

type tagKey struct {
	group, node, device, tag string
	ts                       int64
	seq                      uint64
}

type statusKey struct {
	group, node, device string
	ts                  int64
	seq                 uint64
}

type inMemoryRepository struct {
	sync.RWMutex

	tags     []query.TagRow
	tagKeys  map[tagKey]struct{}
	statuses []query.StatusRow
	statKeys map[statusKey]struct{}
}

// NewInMemoryRepository returns a Repository that keeps every row in process memory.
func NewInMemoryRepository() Repository {
	return &inMemoryRepository{
		tagKeys:  make(map[tagKey]struct{}),
		statKeys: make(map[statusKey]struct{}),
	}
}

func (r *inMemoryRepository) SaveTags(_ context.Context, rows []query.TagRow) error {
	r.Lock()
	defer r.Unlock()

	for _, row := range rows {
		k := tagKey{row.Group, row.Node, row.Device, row.Tag, row.Timestamp.UnixNano(), row.Seq}
		if _, ok := r.tagKeys[k]; ok {
			continue
		}
		r.tagKeys[k] = struct{}{}
		row.Timestamp = row.Timestamp.UTC()
		r.tags = append(r.tags, row)
	}

	return nil
}

func (r *inMemoryRepository) SaveStatuses(_ context.Context, rows []query.StatusRow) error {
	r.Lock()
	defer r.Unlock()

	for _, row := range rows {
		k := statusKey{row.Group, row.Node, row.Device, row.Timestamp.UnixNano(), row.Seq}
		if _, ok := r.statKeys[k]; ok {
			continue
		}
		r.statKeys[k] = struct{}{}
		row.Timestamp = row.Timestamp.UTC()
		r.statuses = append(r.statuses, row)
	}

	return nil
}

func (r *inMemoryRepository) QueryTags(ctx context.Context, q query.Query) ([]query.TagRow, error) {
	rows, err := r.matchTags(ctx, q.Filter)
	if err != nil {
		return nil, err
	}
	query.SortTags(rows, q.Order)

	return query.Limit(rows, q.Limit), nil
}

func (r *inMemoryRepository) AggregateTags(ctx context.Context, q query.Query) ([]query.Bucket, error) {
	rows, err := r.matchTags(ctx, q.Filter)
	if err != nil {
		return nil, err
	}
	points := make([]query.Point, len(rows))
	for i, row := range rows {
		points[i] = query.TagPoint(row)
	}

	return query.Limit(query.Fold(points, q), q.Limit), nil
}

func (r *inMemoryRepository) CountTags(ctx context.Context, f query.Filter) (uint64, error) {
	rows, err := r.matchTags(ctx, f)
	if err != nil {
		return 0, err
	}

	return uint64(len(rows)), nil
}

func (r *inMemoryRepository) QueryStatuses(ctx context.Context, q query.Query) ([]query.StatusRow, error) {
	rows, err := r.matchStatuses(ctx, q.Filter)
	if err != nil {
		return nil, err
	}
	query.SortStatuses(rows, q.Order)

	return query.Limit(rows, q.Limit), nil
}

func (r *inMemoryRepository) AggregateStatuses(ctx context.Context, q query.Query) ([]query.Bucket, error) {
	rows, err := r.matchStatuses(ctx, q.Filter)
	if err != nil {
		return nil, err
	}
	points := make([]query.Point, len(rows))
	for i, row := range rows {
		points[i] = query.StatusPoint(row)
	}

	return query.Limit(query.Fold(points, q), q.Limit), nil
}

func (r *inMemoryRepository) CountStatuses(ctx context.Context, f query.Filter) (uint64, error) {
	rows, err := r.matchStatuses(ctx, f)
	if err != nil {
		return 0, err
	}

	return uint64(len(rows)), nil
}

func (r *inMemoryRepository) matchTags(ctx context.Context, f query.Filter) ([]query.TagRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := query.NewMatcher(f)
	if err != nil {
		return nil, err
	}

	r.RLock()
	defer r.RUnlock()

	out := make([]query.TagRow, 0)
	for _, row := range r.tags {
		if m.MatchTag(row) {
			out = append(out, row)
		}
	}

	return out, nil
}

func (r *inMemoryRepository) matchStatuses(ctx context.Context, f query.Filter) ([]query.StatusRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := query.NewMatcher(f)
	if err != nil {
		return nil, err
	}

	r.RLock()
	defer r.RUnlock()

	out := make([]query.StatusRow, 0)
	for _, row := range r.statuses {
		if m.MatchStatus(row) {
			out = append(out, row)
		}
	}

	return out, nil
}
