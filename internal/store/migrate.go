// internal/store/migrate.go
package store

import (
	"context"
	"fmt"
	"strings"
)

const schemaVersion = 1

// Foreign keys carry no ON DELETE action: loans, fines and members are
// history and the database refuses to delete anything they reference.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS members (
		id UUID PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		max_checkouts INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS credentials (
		member_id UUID PRIMARY KEY REFERENCES members(id),
		password_hash TEXT NOT NULL,
		salt TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS books (
		id UUID PRIMARY KEY,
		isbn TEXT NOT NULL,
		title TEXT NOT NULL,
		author TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS book_copies (
		id UUID PRIMARY KEY,
		book_id UUID NOT NULL REFERENCES books(id),
		barcode TEXT NOT NULL UNIQUE,
		available BOOLEAN NOT NULL DEFAULT TRUE,
		shelf_location TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS loans (
		id UUID PRIMARY KEY,
		member_id UUID NOT NULL REFERENCES members(id),
		book_copy_id UUID NOT NULL REFERENCES book_copies(id),
		loan_date TIMESTAMPTZ NOT NULL,
		expected_return_date TIMESTAMPTZ NOT NULL,
		actual_return_date TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS loans_one_open_per_copy ON loans (book_copy_id) WHERE actual_return_date IS NULL`,
	`CREATE INDEX IF NOT EXISTS loans_open_by_member ON loans (member_id) WHERE actual_return_date IS NULL`,
	`CREATE TABLE IF NOT EXISTS fine_types (
		id BIGINT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		daily_rate NUMERIC(12,2) NOT NULL CHECK (daily_rate >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS fines (
		id UUID PRIMARY KEY,
		member_id UUID NOT NULL REFERENCES members(id),
		loan_id UUID REFERENCES loans(id),
		fine_type_id BIGINT NOT NULL REFERENCES fine_types(id),
		amount NUMERIC(12,2) NOT NULL CHECK (amount >= 0),
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL CHECK (status IN ('active', 'paid', 'revoked')),
		issued_at TIMESTAMPTZ NOT NULL,
		settled_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS fines_by_member_status ON fines (member_id, status)`,
	`CREATE TABLE IF NOT EXISTS events (
		id BIGSERIAL PRIMARY KEY,
		aggregate_id UUID NOT NULL,
		aggregate_type TEXT NOT NULL,
		event_type TEXT NOT NULL,
		event_data JSONB NOT NULL,
		version INT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (aggregate_id, version)
	)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		max_checkouts INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS credentials (
		member_id TEXT PRIMARY KEY REFERENCES members(id),
		password_hash TEXT NOT NULL,
		salt TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS books (
		id TEXT PRIMARY KEY,
		isbn TEXT NOT NULL,
		title TEXT NOT NULL,
		author TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS book_copies (
		id TEXT PRIMARY KEY,
		book_id TEXT NOT NULL REFERENCES books(id),
		barcode TEXT NOT NULL UNIQUE,
		available BOOLEAN NOT NULL DEFAULT 1,
		shelf_location TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL REFERENCES members(id),
		book_copy_id TEXT NOT NULL REFERENCES book_copies(id),
		loan_date TIMESTAMP NOT NULL,
		expected_return_date TIMESTAMP NOT NULL,
		actual_return_date TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS loans_one_open_per_copy ON loans (book_copy_id) WHERE actual_return_date IS NULL`,
	`CREATE INDEX IF NOT EXISTS loans_open_by_member ON loans (member_id) WHERE actual_return_date IS NULL`,
	`CREATE TABLE IF NOT EXISTS fine_types (
		id INTEGER PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		daily_rate NUMERIC NOT NULL CHECK (daily_rate >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS fines (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL REFERENCES members(id),
		loan_id TEXT REFERENCES loans(id),
		fine_type_id INTEGER NOT NULL REFERENCES fine_types(id),
		amount NUMERIC NOT NULL CHECK (amount >= 0),
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL CHECK (status IN ('active', 'paid', 'revoked')),
		issued_at TIMESTAMP NOT NULL,
		settled_at TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS fines_by_member_status ON fines (member_id, status)`,
	`CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		aggregate_id TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		event_type TEXT NOT NULL,
		event_data TEXT NOT NULL,
		version INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (aggregate_id, version)
	)`,
}

// Seeded reference data. Rates are per overdue day.
var fineTypeSeed = `INSERT INTO fine_types (id, code, name, daily_rate) VALUES
	(1, 'overdue', 'Overdue return', 1.00),
	(2, 'damage', 'Damaged item', 0),
	(3, 'lost', 'Lost item', 0)
	ON CONFLICT (id) DO NOTHING`

// Migrate creates the schema and seeds the fine types. It is idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	schema := postgresSchema
	if d.driver == DriverSQLite {
		schema = sqliteSchema
		if _, err := d.db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			return fmt.Errorf("enable WAL: %w", err)
		}
	}

	meta := `CREATE TABLE IF NOT EXISTS schema_meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`
	if _, err := d.db.ExecContext(ctx, meta); err != nil {
		return fmt.Errorf("create schema_meta: %w", err)
	}

	var current string
	_ = d.db.QueryRowxContext(ctx, `SELECT value FROM schema_meta WHERE key = 'schema_version'`).Scan(&current)
	if current == fmt.Sprint(schemaVersion) {
		return nil
	}

	return d.Update(ctx, func(ctx context.Context, s *Session) error {
		for _, stmt := range schema {
			if err := s.ExecRaw(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %q: %w", firstLine(stmt), err)
			}
		}
		if err := s.ExecRaw(ctx, fineTypeSeed); err != nil {
			return fmt.Errorf("seed fine types: %w", err)
		}

		version := fmt.Sprintf(`INSERT INTO schema_meta (key, value) VALUES ('schema_version', '%d')
			ON CONFLICT (key) DO UPDATE SET value = excluded.value`, schemaVersion)
		if err := s.ExecRaw(ctx, version); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}

		d.logger.Info("schema migrated", "version", schemaVersion, "driver", d.driver)
		return nil
	})
}

func firstLine(stmt string) string {
	if i := strings.IndexByte(stmt, '\n'); i > 0 {
		return strings.TrimSpace(stmt[:i])
	}
	return stmt
}
