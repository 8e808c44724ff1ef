package postgres

import (
	"context"
	"fmt"

	"github.com/absmach/sparkpipe/pkg/query"
	"github.com/absmach/sparkpipe/pkg/storage/sqlbuilder"
)

// maxBatchRows keeps multi-row inserts well below the 65535 bind parameter limit.
const maxBatchRows = 1000

// Repository is a storage.Repository backed by PostgreSQL.
type Repository struct {
	db      *Database
	builder *sqlbuilder.Builder
}

// NewRepository migrates the schema and returns a repository backed by db.
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
		if _, err := r.db.ExecContext(ctx, r.db.Rebind(stmt), args...); err != nil {
			return fmt.Errorf("%w: %w", ErrCreate, err)
		}
	}

	return nil
}

func (r *Repository) SaveStatuses(ctx context.Context, rows []query.StatusRow) error {
	for start := 0; start < len(rows); start += maxBatchRows {
		end := min(start+maxBatchRows, len(rows))
		stmt, args := r.builder.InsertStatuses(rows[start:end])
		if _, err := r.db.ExecContext(ctx, r.db.Rebind(stmt), args...); err != nil {
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

	rows := make([]query.TagRow, 0)
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(stmt), args...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
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

	rows := make([]query.StatusRow, 0)
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(stmt), args...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
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

	buckets := make([]query.Bucket, 0)
	if err := r.db.SelectContext(ctx, &buckets, r.db.Rebind(stmt), args...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}
	for i := range buckets {
		buckets[i].Start = buckets[i].Start.UTC()
	}

	return buckets, nil
}

func (r *Repository) count(ctx context.Context, table query.Table, f query.Filter) (uint64, error) {
	stmt, args, err := r.builder.Count(table, f)
	if err != nil {
		return 0, err
	}

	var total uint64
	if err := r.db.GetContext(ctx, &total, r.db.Rebind(stmt), args...); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return total, nil
}
