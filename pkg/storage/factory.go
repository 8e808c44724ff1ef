package storage

import (
	"fmt"
	"io"

	"github.com/absmach/sparkpipe/pkg/storage/badger"
	"github.com/absmach/sparkpipe/pkg/storage/postgres"
	"github.com/absmach/sparkpipe/pkg/storage/sqlbuilder"
	"github.com/absmach/sparkpipe/pkg/storage/sqlite"
)

type Config struct {
	Type string `env:"SPARKPIPE_STORAGE_TYPE" envDefault:"memory"`

	PostgresHost    string `env:"SPARKPIPE_POSTGRES_HOST"    envDefault:"localhost"`
	PostgresPort    string `env:"SPARKPIPE_POSTGRES_PORT"    envDefault:"5432"`
	PostgresUser    string `env:"SPARKPIPE_POSTGRES_USER"    envDefault:"sparkpipe"`
	PostgresPass    string `env:"SPARKPIPE_POSTGRES_PASS"    envDefault:"sparkpipe"`
	PostgresDB      string `env:"SPARKPIPE_POSTGRES_DB"      envDefault:"sparkpipe"`
	PostgresSSLMode string `env:"SPARKPIPE_POSTGRES_SSLMODE" envDefault:"disable"`

	SQLitePath string `env:"SPARKPIPE_SQLITE_PATH" envDefault:"./sparkpipe.db"`

	BadgerPath string `env:"SPARKPIPE_BADGER_PATH" envDefault:"./data/badger"`

	// Schema applies to the SQL backends.
	Schema sqlbuilder.Schema `envPrefix:"SPARKPIPE_DB_"`
}

type Repositories struct {
	History Repository
	// Closer closes the underlying persistent storage connection.
	// It is nil for the in-memory backend.
	Closer io.Closer
}

func NewRepositories(cfg Config) (*Repositories, error) {
	switch cfg.Type {
	case "postgres":
		return newPostgresRepositories(cfg)
	case "sqlite":
		return newSQLiteRepositories(cfg)
	case "badger":
		return newBadgerRepositories(cfg)
	case "memory":
		return &Repositories{History: NewInMemoryRepository()}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, cfg.Type)
	}
}

func newPostgresRepositories(cfg Config) (*Repositories, error) {
	db, err := postgres.NewDatabase(
		cfg.PostgresHost,
		cfg.PostgresPort,
		cfg.PostgresUser,
		cfg.PostgresPass,
		cfg.PostgresDB,
		cfg.PostgresSSLMode,
	)
	if err != nil {
		return nil, err
	}

	repo, err := postgres.NewRepository(db, cfg.Schema)
	if err != nil {
		db.Close()

		return nil, err
	}

	return &Repositories{History: repo, Closer: db}, nil
}

func newSQLiteRepositories(cfg Config) (*Repositories, error) {
	db, err := sqlite.NewDatabase(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}

	repo, err := sqlite.NewRepository(db, cfg.Schema)
	if err != nil {
		db.Close()

		return nil, err
	}

	return &Repositories{History: repo, Closer: db}, nil
}

func newBadgerRepositories(cfg Config) (*Repositories, error) {
	db, err := badger.NewDatabase(cfg.BadgerPath)
	if err != nil {
		return nil, err
	}

	return &Repositories{History: badger.NewRepository(db), Closer: db}, nil
}
