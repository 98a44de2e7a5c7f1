package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver (cgo)
	_ "modernc.org/sqlite"          // sqlite driver (pure Go)

	"lexsign/custodian/pkg/records"
)

// Supported database/sql driver names.
const (
	DriverSQLite3  = "sqlite3"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Dialect selects placeholder style and schema flavor.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

// Config contains configuration for the relational store.
type Config struct {
	// Driver is one of "sqlite3", "sqlite" or "postgres".
	// Default: "sqlite3"
	Driver string

	// DSN is the file path for the SQLite drivers or a connection string
	// for postgres.
	DSN string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// BusyTimeout is how long SQLite waits on a locked database.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() *Config {
	return &Config{
		Driver:       DriverSQLite3,
		DSN:          "data/custodian.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		BusyTimeout:  5 * time.Second,
	}
}

// Querier is the subset of database/sql shared by Store and Tx. Queries are
// written with "?" placeholders and rebound for the active dialect.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the relational store shared by every component.
type Store struct {
	db      *sql.DB
	driver  string
	dialect Dialect
	logger  *slog.Logger
}

// Open connects to the database described by cfg. It does not migrate.
func Open(cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite3
	}

	dialect, dsn, err := buildDSN(driver, cfg)
	if err != nil {
		return nil, records.NewStorageError(driver, "open", err)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, records.NewStorageError(driver, "open", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, records.NewStorageError(driver, "ping", err)
	}

	logger := slog.Default().With("component", "store."+driver)
	logger.Info("store opened", "driver", driver)

	return &Store{db: db, driver: driver, dialect: dialect, logger: logger}, nil
}

// New wraps an existing handle. Used with sqlmock in tests.
func New(db *sql.DB, driver string) *Store {
	dialect := DialectSQLite
	if driver == DriverPostgres {
		dialect = DialectPostgres
	}
	return &Store{
		db:      db,
		driver:  driver,
		dialect: dialect,
		logger:  slog.Default().With("component", "store."+driver),
	}
}

func buildDSN(driver string, cfg *Config) (Dialect, string, error) {
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	switch driver {
	case DriverSQLite3:
		if cfg.DSN == "" {
			return 0, "", fmt.Errorf("sqlite path cannot be empty")
		}
		return DialectSQLite, fmt.Sprintf("%s?_busy_timeout=%d&_journal_mode=WAL&_txlock=immediate",
			cfg.DSN, busy.Milliseconds()), nil
	case DriverSQLite:
		if cfg.DSN == "" {
			return 0, "", fmt.Errorf("sqlite path cannot be empty")
		}
		return DialectSQLite, fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_txlock=immediate",
			cfg.DSN, busy.Milliseconds()), nil
	case DriverPostgres:
		if cfg.DSN == "" {
			return 0, "", fmt.Errorf("postgres dsn cannot be empty")
		}
		return DialectPostgres, cfg.DSN, nil
	default:
		return 0, "", fmt.Errorf("unsupported driver %q", driver)
	}
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Driver returns the database/sql driver name.
func (s *Store) Driver() string { return s.driver }

// Dialect returns the SQL dialect in use.
func (s *Store) Dialect() Dialect { return s.dialect }

// Rebind rewrites "?" placeholders into the dialect's style.
func (s *Store) Rebind(query string) string {
	return Rebind(s.dialect, query)
}

// Rebind rewrites "?" placeholders as "$1, $2, ..." for postgres.
// Question marks inside single-quoted literals are left alone.
func Rebind(d Dialect, query string) string {
	if d != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// ExecContext executes a statement outside any transaction.
func (s *Store) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.Rebind(query), args...)
}

// QueryContext runs a query outside any transaction.
func (s *Store) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.Rebind(query), args...)
}

// QueryRowContext runs a single-row query outside any transaction.
func (s *Store) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.Rebind(query), args...)
}

// Tx is a transaction that rebinds placeholders like Store does.
type Tx struct {
	tx      *sql.Tx
	dialect Dialect
}

// Dialect returns the SQL dialect of the transaction.
func (t *Tx) Dialect() Dialect { return t.dialect }

// ExecContext executes a statement inside the transaction.
func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, Rebind(t.dialect, query), args...)
}

// QueryContext runs a query inside the transaction.
func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, Rebind(t.dialect, query), args...)
}

// QueryRowContext runs a single-row query inside the transaction.
func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, Rebind(t.dialect, query), args...)
}

// InTx runs fn inside one transaction. It commits when fn returns nil and
// rolls back otherwise.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return records.NewStorageError(s.driver, "begin", err)
	}
	defer sqlTx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(&Tx{tx: sqlTx, dialect: s.dialect}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return records.NewStorageError(s.driver, "commit", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return records.NewStorageError(s.driver, "close", err)
	}
	s.logger.Info("store closed")
	return nil
}
