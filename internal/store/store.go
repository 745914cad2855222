// internal/store/store.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // dialect registration
	"github.com/doug-martin/goqu/v9/exp"
	_ "github.com/jackc/pgx/v5/stdlib" // driver "pgx"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // driver "postgres"
	_ "github.com/mattn/go-sqlite3" // driver "sqlite3"
)

const (
	DriverPostgres = "postgres"
	DriverPGX      = "pgx"
	DriverSQLite   = "sqlite3"
)

var ErrUnsupportedDriver = errors.New("unsupported database driver")

// DB owns the connection pool and hands out one Session per transaction.
type DB struct {
	db      *sqlx.DB
	driver  string
	dialect goqu.DialectWrapper
	logger  *slog.Logger
	retry   []RetryOption
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger used for retries and migrations.
func WithLogger(logger *slog.Logger) Option {
	return func(d *DB) {
		d.logger = logger
	}
}

// WithRetryOptions overrides the retry policy applied to every transaction.
func WithRetryOptions(opts ...RetryOption) Option {
	return func(d *DB) {
		d.retry = opts
	}
}

// WithMaxOpenConns caps the pool size.
func WithMaxOpenConns(n int) Option {
	return func(d *DB) {
		if n > 0 {
			d.db.SetMaxOpenConns(n)
		}
	}
}

// Open connects with one of the supported drivers and verifies the connection.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*DB, error) {
	dialect, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	conn, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	d := &DB{
		db:      conn,
		driver:  driver,
		dialect: goqu.Dialect(dialect),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func dialectFor(driver string) (string, error) {
	switch driver {
	case DriverPostgres, DriverPGX:
		return "postgres", nil
	case DriverSQLite:
		return "sqlite3", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
}

// sqliteDSN makes every transaction take the write lock up front, so
// check-then-act sequences are serialized the way FOR UPDATE does on Postgres.
func sqliteDSN(dsn string) string {
	params := []string{"_txlock=immediate", "_busy_timeout=5000", "_foreign_keys=1"}
	for _, p := range params {
		key := p[:strings.Index(p, "=")+1]
		if strings.Contains(dsn, key) {
			continue
		}
		if strings.Contains(dsn, "?") {
			dsn += "&" + p
		} else {
			dsn += "?" + p
		}
	}
	return dsn
}

// Close releases the pool.
func (d *DB) Close() error {
	return d.db.Close()
}

// Driver reports the driver name the pool was opened with.
func (d *DB) Driver() string {
	return d.driver
}

// Update runs fn inside a read-write transaction. The transaction commits
// only if fn returns nil; retryable conflicts rerun fn from scratch.
func (d *DB) Update(ctx context.Context, fn func(ctx context.Context, s *Session) error) error {
	return d.run(ctx, nil, fn)
}

// View runs fn inside a read-only transaction.
func (d *DB) View(ctx context.Context, fn func(ctx context.Context, s *Session) error) error {
	return d.run(ctx, &sql.TxOptions{ReadOnly: true}, fn)
}

func (d *DB) run(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, s *Session) error) error {
	retryOpts := append([]RetryOption{withOnRetry(func(attempt int, err error) {
		d.logger.Warn("retrying transaction", "attempt", attempt, "error", err)
	})}, d.retry...)

	return RetryWithExponentialBackoff(ctx, func(ctx context.Context) error {
		return d.attempt(ctx, opts, fn)
	}, retryOpts...)
}

func (d *DB) attempt(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, s *Session) error) (err error) {
	tx, err := d.db.BeginTxx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, &Session{tx: tx, dialect: d.dialect, locking: d.driver != DriverSQLite}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// QueryFloat runs a single-value query outside any transaction.
func (d *DB) QueryFloat(ctx context.Context, query string) (float64, error) {
	var v float64
	if err := d.db.QueryRowxContext(ctx, query).Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

type sqlBuilder interface {
	ToSQL() (string, []interface{}, error)
}

// Session is the unit of work handed to repositories. It lives for exactly
// one transaction and must not be retained after fn returns.
type Session struct {
	tx      *sqlx.Tx
	dialect goqu.DialectWrapper
	locking bool
}

// From starts a prepared SELECT.
func (s *Session) From(table string) *goqu.SelectDataset {
	return s.dialect.From(table).Prepared(true)
}

// Insert starts a prepared INSERT.
func (s *Session) Insert(table string) *goqu.InsertDataset {
	return s.dialect.Insert(table).Prepared(true)
}

// Update starts a prepared UPDATE.
func (s *Session) Update(table string) *goqu.UpdateDataset {
	return s.dialect.Update(table).Prepared(true)
}

// ForUpdate adds a row lock where the dialect has one. SQLite sessions are
// already serialized by the immediate transaction lock.
func (s *Session) ForUpdate(ds *goqu.SelectDataset) *goqu.SelectDataset {
	if s.locking {
		return ds.ForUpdate(exp.Wait)
	}
	return ds
}

// Get scans exactly one row into dest; sql.ErrNoRows when there is none.
func (s *Session) Get(ctx context.Context, dest any, b sqlBuilder) error {
	query, args, err := b.ToSQL()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return sqlx.GetContext(ctx, s.tx, dest, query, args...)
}

// Select scans all rows into the slice pointed to by dest.
func (s *Session) Select(ctx context.Context, dest any, b sqlBuilder) error {
	query, args, err := b.ToSQL()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return sqlx.SelectContext(ctx, s.tx, dest, query, args...)
}

// Exec runs a statement and returns the affected row count.
func (s *Session) Exec(ctx context.Context, b sqlBuilder) (int64, error) {
	query, args, err := b.ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	res, err := s.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ExecRaw runs a literal statement. Used by migrations and test fixtures.
func (s *Session) ExecRaw(ctx context.Context, query string, args ...any) error {
	_, err := s.tx.ExecContext(ctx, query, args...)
	return err
}
