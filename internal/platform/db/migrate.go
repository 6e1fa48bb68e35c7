package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migration is one schema change applied in order by version.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations holds the full schema. The resource column is the source of
// truth; the other columns are extracted copies maintained on every write
// so searches can use plain btree indexes.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_fhir_location",
		SQL: `
CREATE TABLE IF NOT EXISTS fhir_location (
    id             TEXT PRIMARY KEY,
    status         TEXT NOT NULL DEFAULT 'active',
    name           TEXT NOT NULL,
    street         TEXT NOT NULL DEFAULT '',
    city           TEXT NOT NULL DEFAULT '',
    state          TEXT NOT NULL DEFAULT '',
    country        TEXT NOT NULL DEFAULT '',
    latitude       DOUBLE PRECISION,
    longitude      DOUBLE PRECISION,
    accessible     BOOLEAN NOT NULL DEFAULT FALSE,
    unisex         BOOLEAN NOT NULL DEFAULT FALSE,
    changing_table BOOLEAN NOT NULL DEFAULT FALSE,
    source         TEXT NOT NULL DEFAULT '',
    legacy_id      TEXT,
    version_id     INTEGER NOT NULL DEFAULT 1,
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    resource       JSONB NOT NULL
)`,
	},
	{
		Version: 2,
		Name:    "create_fhir_location_indexes",
		SQL: `
CREATE INDEX IF NOT EXISTS idx_fhir_location_coords
    ON fhir_location (latitude, longitude) WHERE latitude IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_fhir_location_status_updated
    ON fhir_location (status, updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_fhir_location_source
    ON fhir_location (source);
CREATE UNIQUE INDEX IF NOT EXISTS uq_fhir_location_legacy_id
    ON fhir_location (legacy_id) WHERE legacy_id IS NOT NULL`,
	},
	{
		Version: 3,
		Name:    "create_fhir_location_text_indexes",
		SQL: `
CREATE INDEX IF NOT EXISTS idx_fhir_location_name ON fhir_location (name);
CREATE INDEX IF NOT EXISTS idx_fhir_location_city ON fhir_location (city)`,
	},
}

// Migrate applies all pending migrations in version order. Each migration
// runs in its own transaction together with its tracking row.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			version    INTEGER PRIMARY KEY,
			name       VARCHAR(255) NOT NULL,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("create _migrations table: %w", err)
	}

	applied := map[int]bool{}
	rows, err := pool.Query(ctx, `SELECT version FROM _migrations`)
	if err != nil {
		return fmt.Errorf("read applied migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("scan migration version: %w", err)
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO _migrations (version, name) VALUES ($1, $2)`,
			m.Version, m.Name); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
