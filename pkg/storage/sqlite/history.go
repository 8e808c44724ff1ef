package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/absmach/sparkpipe/pkg/query"
	"github.com/absmach/sparkpipe/pkg/storage/sqlbuilder"
)

// maxBatchRows keeps multi-row inserts below SQLITE_MAX_VARIABLE_NUMBER.
const maxBatchRows = 500

// Repository is a storage.Repository backed by SQLite.
type Repository struct {
	db      *Database
	builder *sqlbuilder.Builder
}

type dbTag struct {
	TS       int64  `db:"ts"`
	Group    string `db:"group_name"`
	Node     string `db:"node"`
	Device   string `db:"device"`
	Tag      string `db:"tag"`
	Value    string `db:"value"`
	DataType string `db:"datatype"`
	Seq      int64  `db:"seq"`
}

type dbStatus struct {
	TS     int64  `db:"ts"`
	Group  string `db:"group_name"`
	Node   string `db:"node"`
	Device string `db:"device"`
	Status string `db:"status"`
	Seq    int64  `db:"seq"`
}

type dbBucket struct {
	Start int64   `db:"bucket"`
	Value float64 `db:"value"`
	Count int64   `db:"n"`
}

func NewRepository(db *Database, schema sqlbuilder.Schema) (*Repository, error) {
	b, err := sqlbuilder.New(schema, dialect{})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(schema); err != nil {
		return nil, err
	}

	return &Repository{db: db, builder: b}, nil
}

func (r *Repository) SaveTags(ctx context.Context, rows []query.TagRow) error {
	for start := 0; start < len(rows); start += maxBatchRows {
		end := min(start+maxBatchRows, len(rows))
		stmt, args := r.builder.InsertTags(rows[start:end])
		if _, err := r.db.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("%w: %w", ErrCreate, err)
		}
	}

	return nil
}

func (r *Repository) SaveStatuses(ctx context.Context, rows []query.StatusRow) error {
	for start := 0; start < len(rows); start += maxBatchRows {
		end := min(start+maxBatchRows, len(rows))
		stmt, args := r.builder.InsertStatuses(rows[start:end])
		if _, err := r.db.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("%w: %w", ErrCreate, err)
		}
	}

	return nil
}

func (r *Repository) QueryTags(ctx context.Context, q query.Query) ([]query.TagRow, error) {
	stmt, args, err := r.builder.SelectTags(q)
	if err != nil {
		return nil, err
	}

	var dbRows []dbTag
	if err := r.db.SelectContext(ctx, &dbRows, stmt, args...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	rows := make([]query.TagRow, len(dbRows))
	for i, d := range dbRows {
		rows[i] = query.TagRow{
			Timestamp: time.Unix(0, d.TS).UTC(),
			Group:     d.Group,
			Node:      d.Node,
			Device:    d.Device,
			Tag:       d.Tag,
			Value:     d.Value,
			DataType:  d.DataType,
			Seq:       uint64(d.Seq),
		}
	}

	return rows, nil
}

func (r *Repository) AggregateTags(ctx context.Context, q query.Query) ([]query.Bucket, error) {
	return r.aggregate(ctx, query.TagTable, q)
}

func (r *Repository) CountTags(ctx context.Context, f query.Filter) (uint64, error) {
	return r.count(ctx, query.TagTable, f)
}

func (r *Repository) QueryStatuses(ctx context.Context, q query.Query) ([]query.StatusRow, error) {
	stmt, args, err := r.builder.SelectStatuses(q)
	if err != nil {
		return nil, err
	}

	var dbRows []dbStatus
	if err := r.db.SelectContext(ctx, &dbRows, stmt, args...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	rows := make([]query.StatusRow, len(dbRows))
	for i, d := range dbRows {
		rows[i] = query.StatusRow{
			Timestamp: time.Unix(0, d.TS).UTC(),
			Group:     d.Group,
			Node:      d.Node,
			Device:    d.Device,
			Status:    d.Status,
			Seq:       uint64(d.Seq),
		}
	}

	return rows, nil
}

func (r *Repository) AggregateStatuses(ctx context.Context, q query.Query) ([]query.Bucket, error) {
	return r.aggregate(ctx, query.StatusTable, q)
}

func (r *Repository) CountStatuses(ctx context.Context, f query.Filter) (uint64, error) {
	return r.count(ctx, query.StatusTable, f)
}

func (r *Repository) aggregate(ctx context.Context, table query.Table, q query.Query) ([]query.Bucket, error) {
	stmt, args, err := r.builder.Aggregate(table, q)
	if err != nil {
		return nil, err
	}

	var dbRows []dbBucket
	if err := r.db.SelectContext(ctx, &dbRows, stmt, args...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	buckets := make([]query.Bucket, len(dbRows))
	for i, d := range dbRows {
		buckets[i] = query.Bucket{
			Start: time.Unix(0, d.Start).UTC(),
			Value: d.Value,
			Count: d.Count,
		}
	}

	return buckets, nil
}

func (r *Repository) count(ctx context.Context, table query.Table, f query.Filter) (uint64, error) {
	stmt, args, err := r.builder.Count(table, f)
	if err != nil {
		return 0, err
	}

	var total uint64
	if err := r.db.GetContext(ctx, &total, stmt, args...); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return total, nil
}
