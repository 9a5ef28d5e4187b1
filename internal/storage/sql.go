package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"rssreader/internal/config"
)

const (
	driverPostgres = "pgx"
	driverSQLite   = "sqlite3"
)

// SQLStore implements Store on top of sqlx for Postgres and SQLite.
type SQLStore struct {
	db     *sqlx.DB
	driver string
	logger *slog.Logger
	now    func() time.Time
}

// NewStorage opens the database selected by cfg and applies the schema.
// A DATABASE_URL starting with "postgres" selects Postgres, otherwise a
// SQLite file under DataDir is used.
func NewStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		store *SQLStore
		err   error
	)
	if isPostgresURL(cfg.DatabaseURL) {
		store, err = OpenPostgres(cfg.DatabaseURL, logger)
	} else {
		store, err = OpenSQLite(cfg.DataDir, logger)
	}
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func isPostgresURL(url string) bool {
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}

// OpenPostgres connects through the pgx stdlib driver.
func OpenPostgres(dsn string, logger *slog.Logger) (*SQLStore, error) {
	db, err := sqlx.Open(driverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	logger.Info("using postgres storage")
	return newSQLStore(db, driverPostgres, logger), nil
}

// OpenSQLite opens (or creates) rssreader.db inside dataDir.
func OpenSQLite(dataDir string, logger *slog.Logger) (*SQLStore, error) {
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "rssreader.db")
	logger.Info("using sqlite storage", "path", dbPath)

	db, err := sqlx.Open(driverSQLite, "file:"+dbPath+"?_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	return newSQLStore(db, driverSQLite, logger), nil
}

func newSQLStore(db *sqlx.DB, driver string, logger *slog.Logger) *SQLStore {
	return &SQLStore{
		db:     db,
		driver: driver,
		logger: logger.With("component", "storage"),
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Second) },
	}
}

// Driver returns the database/sql driver name in use.
func (s *SQLStore) Driver() string {
	return s.driver
}

func (s *SQLStore) Migrate(ctx context.Context) error {
	schema := sqliteSchema
	if s.driver == driverPostgres {
		schema = postgresSchema
	}

	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// inTx runs fn in a transaction, rolling back when fn fails.
func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// in expands IN (?) placeholders and rebinds for the active driver.
func in(ext sqlx.ExtContext, query string, args ...interface{}) (string, []interface{}, error) {
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return ext.Rebind(query), args, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func rowsAffected(res sql.Result) int {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return int(n)
}
