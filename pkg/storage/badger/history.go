package badger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/absmach/sparkpipe/pkg/query"
)

var (
	tagPrefix    = []byte("tag:")
	statusPrefix = []byte("status:")
)

// Repository is a storage.Repository backed by Badger. Filtering and
// aggregation run in process over a time-bounded key range.
type Repository struct {
	db *Database
}

func NewRepository(db *Database) *Repository {
	return &Repository{db: db}
}

func (r *Repository) SaveTags(_ context.Context, rows []query.TagRow) error {
	entries := make([]entry, 0, len(rows))
	for _, row := range rows {
		val, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("marshal error: %w", err)
		}
		entries = append(entries, entry{key: key(tagPrefix, row.Timestamp, row.Seq, row.Group, row.Node, row.Device, row.Tag), val: val})
	}

	return r.db.setBatch(entries)
}

func (r *Repository) SaveStatuses(_ context.Context, rows []query.StatusRow) error {
	entries := make([]entry, 0, len(rows))
	for _, row := range rows {
		val, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("marshal error: %w", err)
		}
		entries = append(entries, entry{key: key(statusPrefix, row.Timestamp, row.Seq, row.Group, row.Node, row.Device), val: val})
	}

	return r.db.setBatch(entries)
}

func (r *Repository) QueryTags(ctx context.Context, q query.Query) ([]query.TagRow, error) {
	rows, err := r.tags(ctx, q.Filter)
	if err != nil {
		return nil, err
	}
	query.SortTags(rows, q.Order)

	return query.Limit(rows, q.Limit), nil
}

func (r *Repository) AggregateTags(ctx context.Context, q query.Query) ([]query.Bucket, error) {
	rows, err := r.tags(ctx, q.Filter)
	if err != nil {
		return nil, err
	}
	points := make([]query.Point, len(rows))
	for i, row := range rows {
		points[i] = query.TagPoint(row)
	}

	return query.Limit(query.Fold(points, q), q.Limit), nil
}

func (r *Repository) CountTags(ctx context.Context, f query.Filter) (uint64, error) {
	rows, err := r.tags(ctx, f)
	if err != nil {
		return 0, err
	}

	return uint64(len(rows)), nil
}

func (r *Repository) QueryStatuses(ctx context.Context, q query.Query) ([]query.StatusRow, error) {
	rows, err := r.statuses(ctx, q.Filter)
	if err != nil {
		return nil, err
	}
	query.SortStatuses(rows, q.Order)

	return query.Limit(rows, q.Limit), nil
}

func (r *Repository) AggregateStatuses(ctx context.Context, q query.Query) ([]query.Bucket, error) {
	rows, err := r.statuses(ctx, q.Filter)
	if err != nil {
		return nil, err
	}
	points := make([]query.Point, len(rows))
	for i, row := range rows {
		points[i] = query.StatusPoint(row)
	}

	return query.Limit(query.Fold(points, q), q.Limit), nil
}

func (r *Repository) CountStatuses(ctx context.Context, f query.Filter) (uint64, error) {
	rows, err := r.statuses(ctx, f)
	if err != nil {
		return 0, err
	}

	return uint64(len(rows)), nil
}

func (r *Repository) tags(ctx context.Context, f query.Filter) ([]query.TagRow, error) {
	m, err := query.NewMatcher(f)
	if err != nil {
		return nil, err
	}
	start, end := f.Range()

	rows := make([]query.TagRow, 0)
	err = r.db.scan(ctx, tagPrefix, start, end, func(val []byte) error {
		var row query.TagRow
		if err := json.Unmarshal(val, &row); err != nil {
			return fmt.Errorf("unmarshal error: %w", err)
		}
		if m.MatchTag(row) {
			rows = append(rows, row)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return rows, nil
}

func (r *Repository) statuses(ctx context.Context, f query.Filter) ([]query.StatusRow, error) {
	m, err := query.NewMatcher(f)
	if err != nil {
		return nil, err
	}
	start, end := f.Range()

	rows := make([]query.StatusRow, 0)
	err = r.db.scan(ctx, statusPrefix, start, end, func(val []byte) error {
		var row query.StatusRow
		if err := json.Unmarshal(val, &row); err != nil {
			return fmt.Errorf("unmarshal error: %w", err)
		}
		if m.MatchStatus(row) {
			rows = append(rows, row)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return rows, nil
}
