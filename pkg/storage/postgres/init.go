package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/absmach/sparkpipe/pkg/storage/sqlbuilder"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	migrate "github.com/rubenv/sql-migrate"
)

var (
	ErrDBConnection = errors.New("database connection error")
	ErrDBQuery      = errors.New("database query error")
	ErrDBScan       = errors.New("database scan error")
	ErrMigration    = errors.New("database migration error")
	ErrCreate       = errors.New("create error")
)

type Database struct {
	*sqlx.DB
}

func NewDatabase(host, port, user, pass, name, sslMode string) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s", host, port, user, pass, name, sslMode)
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Database{DB: db}, nil
}

// Migrate creates the status and tag tables named by schema.
func (db *Database) Migrate(schema sqlbuilder.Schema) error {
	if err := schema.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrMigration, err)
	}
	s, c := schema.StatusTable, schema.Columns
	t := schema.TagTable

	migrations := &migrate.MemoryMigrationSource{
		Migrations: []*migrate.Migration{
			{
				Id: "1_create_history_tables",
				Up: []string{
					fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
						%[2]s TIMESTAMPTZ NOT NULL,
						%[3]s TEXT NOT NULL,
						%[4]s TEXT NOT NULL,
						%[5]s TEXT NOT NULL DEFAULT '',
						%[6]s TEXT NOT NULL,
						%[7]s BIGINT NOT NULL,
						PRIMARY KEY (%[3]s, %[4]s, %[5]s, %[2]s, %[7]s)
					)`, s, c.TS, c.Group, c.Node, c.Device, c.Status, c.Seq),
					fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_%[2]s ON %[1]s(%[2]s)`, s, c.TS),
					fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
						%[2]s TIMESTAMPTZ NOT NULL,
						%[3]s TEXT NOT NULL,
						%[4]s TEXT NOT NULL,
						%[5]s TEXT NOT NULL DEFAULT '',
						%[6]s TEXT NOT NULL,
						%[7]s TEXT NOT NULL,
						%[8]s TEXT NOT NULL,
						%[9]s BIGINT NOT NULL,
						PRIMARY KEY (%[3]s, %[4]s, %[5]s, %[6]s, %[2]s, %[9]s)
					)`, t, c.TS, c.Group, c.Node, c.Device, c.Tag, c.Value, c.DataType, c.Seq),
					fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_%[2]s ON %[1]s(%[2]s)`, t, c.TS),
					fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_%[3]s_%[4]s ON %[1]s(%[3]s, %[4]s, %[2]s)`, t, c.TS, c.Device, c.Tag),
				},
				Down: []string{
					fmt.Sprintf(`DROP TABLE IF EXISTS %s`, t),
					fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s),
				},
			},
		},
	}

	// Each tag table keeps its own migration records so that databases shared
	// by several schemas migrate independently.
	set := migrate.MigrationSet{TableName: "migrations_" + t}
	if _, err := set.Exec(db.DB.DB, "postgres", migrations, migrate.Up); err != nil {
		return fmt.Errorf("%w: %w", ErrMigration, err)
	}

	return nil
}
