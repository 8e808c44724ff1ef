// Package sqlbuilder renders historian queries into SQL shared by the
// postgres and sqlite backends. Statements use `?` placeholders; callers
// rebind them for their driver.
package sqlbuilder

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	pkgerrors "github.com/absmach/sparkpipe/pkg/errors"
	"github.com/absmach/sparkpipe/pkg/query"
)

var (
	errInvalidIdentifier = errors.New("invalid SQL identifier")

	identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)
)

// Columns maps logical fields to physical column names.
type Columns struct {
	TS       string `env:"TS"       envDefault:"ts"`
	Group    string `env:"GROUP"    envDefault:"group_name"`
	Node     string `env:"NODE"     envDefault:"node"`
	Device   string `env:"DEVICE"   envDefault:"device"`
	Tag      string `env:"TAG"      envDefault:"tag_name"`
	Value    string `env:"VALUE"    envDefault:"value"`
	DataType string `env:"DATATYPE" envDefault:"datatype"`
	Status   string `env:"STATUS"   envDefault:"status"`
	Seq      string `env:"SEQ"      envDefault:"seq"`
}

// Schema names the two historian tables and their columns.
type Schema struct {
	StatusTable string  `env:"STATUS_TABLE" envDefault:"devices"`
	TagTable    string  `env:"TAG_TABLE"    envDefault:"tag_values"`
	Columns     Columns `envPrefix:"COLUMN_"`
}

func DefaultSchema() Schema {
	return Schema{
		StatusTable: "devices",
		TagTable:    "tag_values",
		Columns: Columns{
			TS:       "ts",
			Group:    "group_name",
			Node:     "node",
			Device:   "device",
			Tag:      "tag_name",
			Value:    "value",
			DataType: "datatype",
			Status:   "status",
			Seq:      "seq",
		},
	}
}

// Validate rejects names that would have to be quoted, since they are
// interpolated into statements.
func (s Schema) Validate() error {
	c := s.Columns
	for _, id := range []string{
		s.StatusTable, s.TagTable,
		c.TS, c.Group, c.Node, c.Device, c.Tag, c.Value, c.DataType, c.Status, c.Seq,
	} {
		if !identRe.MatchString(id) {
			return fmt.Errorf("%w: %q", errInvalidIdentifier, id)
		}
	}

	return nil
}

// Dialect captures the few places where backends differ.
type Dialect interface {
	// Bucket returns an expression truncating the ts column to iv. Fixed
	// widths are aligned to origin, or to the UNIX epoch when it is zero.
	Bucket(column string, iv query.Interval, origin time.Time) (string, []any, error)
	// Float casts a text column to a floating point number.
	Float(column string) string
	// Time converts a timestamp into the value stored in the ts column.
	Time(t time.Time) any
}

type Builder struct {
	schema  Schema
	dialect Dialect
}

func New(schema Schema, dialect Dialect) (*Builder, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	return &Builder{schema: schema, dialect: dialect}, nil
}

func (b *Builder) Schema() Schema {
	return b.schema
}

func (b *Builder) column(table query.Table, f query.Field) (string, error) {
	c := b.schema.Columns
	switch f {
	case query.FieldTS:
		return c.TS, nil
	case query.FieldGroup:
		return c.Group, nil
	case query.FieldNode:
		return c.Node, nil
	case query.FieldDevice:
		return c.Device, nil
	case query.FieldTag:
		if table == query.TagTable {
			return c.Tag, nil
		}
	case query.FieldValue:
		if table == query.TagTable {
			return c.Value, nil
		}
	case query.FieldStatus:
		if table == query.StatusTable {
			return c.Status, nil
		}
	}

	return "", fmt.Errorf("%w: field %q not available on %s", pkgerrors.ErrQueryValidation, f, table)
}

func (b *Builder) table(t query.Table) string {
	if t == query.TagTable {
		return b.schema.TagTable
	}

	return b.schema.StatusTable
}

// Where renders the filter as a WHERE clause, or an empty string for no conditions.
func (b *Builder) Where(table query.Table, f query.Filter) (string, []any, error) {
	if len(f.Conditions) == 0 {
		return "", nil, nil
	}

	clauses := make([]string, 0, len(f.Conditions))
	args := make([]any, 0, len(f.Conditions))
	for _, c := range f.Conditions {
		col, err := b.column(table, c.Field)
		if err != nil {
			return "", nil, err
		}
		var op string
		switch c.Op {
		case query.OpEq, query.OpNe, query.OpLt, query.OpLe, query.OpGt, query.OpGe:
			op = string(c.Op)
		case query.OpLike:
			op = "LIKE"
		default:
			return "", nil, fmt.Errorf("%w: unsupported operator %q", pkgerrors.ErrQueryValidation, c.Op)
		}
		clauses = append(clauses, fmt.Sprintf("%s %s ?", col, op))
		if c.Field == query.FieldTS {
			args = append(args, b.dialect.Time(c.Time))

			continue
		}
		args = append(args, c.Value)
	}

	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func direction(o query.Order) string {
	if o == query.Desc {
		return "DESC"
	}

	return "ASC"
}

func (b *Builder) SelectTags(q query.Query) (string, []any, error) {
	where, args, err := b.Where(query.TagTable, q.Filter)
	if err != nil {
		return "", nil, err
	}
	c := b.schema.Columns
	stmt := fmt.Sprintf(
		"SELECT %s AS ts, %s AS group_name, %s AS node, %s AS device, %s AS tag, %s AS value, %s AS datatype, %s AS seq FROM %s%s ORDER BY %s %s, %s %s",
		c.TS, c.Group, c.Node, c.Device, c.Tag, c.Value, c.DataType, c.Seq,
		b.schema.TagTable, where,
		c.TS, direction(q.Order), c.Seq, direction(q.Order),
	)
	stmt, args = limit(stmt, args, q.Limit)

	return stmt, args, nil
}

func (b *Builder) SelectStatuses(q query.Query) (string, []any, error) {
	where, args, err := b.Where(query.StatusTable, q.Filter)
	if err != nil {
		return "", nil, err
	}
	c := b.schema.Columns
	stmt := fmt.Sprintf(
		"SELECT %s AS ts, %s AS group_name, %s AS node, %s AS device, %s AS status, %s AS seq FROM %s%s ORDER BY %s %s, %s %s",
		c.TS, c.Group, c.Node, c.Device, c.Status, c.Seq,
		b.schema.StatusTable, where,
		c.TS, direction(q.Order), c.Seq, direction(q.Order),
	)
	stmt, args = limit(stmt, args, q.Limit)

	return stmt, args, nil
}

// Aggregate renders a bucketed aggregation returning (bucket, value, n) rows.
// avg, min and max only consider rows whose datatype is numeric.
func (b *Builder) Aggregate(table query.Table, q query.Query) (string, []any, error) {
	if !q.Bucketed() {
		return "", nil, fmt.Errorf("%w: aggregation requires a bucket interval", pkgerrors.ErrQueryValidation)
	}
	c := b.schema.Columns

	filter := q.Filter
	var value string
	switch q.Aggregate {
	case query.AggCount:
		value = "COUNT(*)"
	case query.AggAvg, query.AggMin, query.AggMax:
		if table != query.TagTable {
			return "", nil, fmt.Errorf("%w: %s is only supported on tag values", pkgerrors.ErrQueryValidation, q.Aggregate)
		}
		value = fmt.Sprintf("%s(%s)", strings.ToUpper(string(q.Aggregate)), b.dialect.Float(c.Value))
	default:
		return "", nil, fmt.Errorf("%w: unsupported aggregate %q", pkgerrors.ErrQueryValidation, q.Aggregate)
	}

	bucket, bucketArgs, err := b.dialect.Bucket(c.TS, q.Bucket, q.Origin())
	if err != nil {
		return "", nil, err
	}
	where, whereArgs, err := b.Where(table, filter)
	if err != nil {
		return "", nil, err
	}
	if q.Aggregate != query.AggCount {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(query.NumericTypes)), ", ")
		numeric := fmt.Sprintf("%s IN (%s)", c.DataType, placeholders)
		if where == "" {
			where = " WHERE " + numeric
		} else {
			where += " AND " + numeric
		}
		for _, t := range query.NumericTypes {
			whereArgs = append(whereArgs, t)
		}
	}

	stmt := fmt.Sprintf(
		"SELECT %s AS bucket, %s AS value, COUNT(*) AS n FROM %s%s GROUP BY 1 ORDER BY 1 %s",
		bucket, value, b.table(table), where, direction(q.Order),
	)
	args := append(bucketArgs, whereArgs...)
	stmt, args = limit(stmt, args, q.Limit)

	return stmt, args, nil
}

func (b *Builder) Count(table query.Table, f query.Filter) (string, []any, error) {
	where, args, err := b.Where(table, f)
	if err != nil {
		return "", nil, err
	}

	return fmt.Sprintf("SELECT COUNT(*) FROM %s%s", b.table(table), where), args, nil
}

func (b *Builder) InsertTags(rows []query.TagRow) (string, []any) {
	c := b.schema.Columns
	const width = 8
	args := make([]any, 0, len(rows)*width)
	values := make([]string, 0, len(rows))
	for _, r := range rows {
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, b.dialect.Time(r.Timestamp), r.Group, r.Node, r.Device, r.Tag, r.Value, r.DataType, int64(r.Seq))
	}

	stmt := fmt.Sprintf(
		"INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s, %s) VALUES %s ON CONFLICT DO NOTHING",
		b.schema.TagTable, c.TS, c.Group, c.Node, c.Device, c.Tag, c.Value, c.DataType, c.Seq,
		strings.Join(values, ", "),
	)

	return stmt, args
}

func (b *Builder) InsertStatuses(rows []query.StatusRow) (string, []any) {
	c := b.schema.Columns
	const width = 6
	args := make([]any, 0, len(rows)*width)
	values := make([]string, 0, len(rows))
	for _, r := range rows {
		values = append(values, "(?, ?, ?, ?, ?, ?)")
		args = append(args, b.dialect.Time(r.Timestamp), r.Group, r.Node, r.Device, r.Status, int64(r.Seq))
	}

	stmt := fmt.Sprintf(
		"INSERT INTO %s (%s, %s, %s, %s, %s, %s) VALUES %s ON CONFLICT DO NOTHING",
		b.schema.StatusTable, c.TS, c.Group, c.Node, c.Device, c.Status, c.Seq,
		strings.Join(values, ", "),
	)

	return stmt, args
}

func limit(stmt string, args []any, n int) (string, []any) {
	if n <= 0 {
		return stmt, args
	}

	return stmt + " LIMIT ?", append(args, n)
}
