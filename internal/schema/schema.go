// Package schema creates and verifies the relational tables the application
// expects before it starts serving.
package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
)

const defaultPingTimeout = 2 * time.Second

// statements are ordered: tables before the indexes that reference them.
var statements = []struct {
	name string
	ddl  string
}{
	{
		name: "documents",
		ddl: `CREATE TABLE IF NOT EXISTS documents (
	id SERIAL PRIMARY KEY,
	filename TEXT NOT NULL,
	file_hash TEXT NOT NULL UNIQUE,
	page_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	},
	{
		name: "document_chunks",
		ddl: `CREATE TABLE IF NOT EXISTS document_chunks (
	id SERIAL PRIMARY KEY,
	document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	chunk_index INTEGER NOT NULL,
	page_number INTEGER NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	},
	{
		name: "idx_document_chunk",
		ddl:  `CREATE UNIQUE INDEX IF NOT EXISTS idx_document_chunk ON document_chunks (document_id, chunk_index)`,
	},
	{
		name: "idx_document_page",
		ddl:  `CREATE INDEX IF NOT EXISTS idx_document_page ON document_chunks (document_id, page_number)`,
	},
}

var requiredTables = []string{"documents", "document_chunks"}

// querier is the subset of *sql.DB the manager needs.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Manager applies and verifies the application schema.
type Manager struct {
	logger zerolog.Logger
	db     querier
	closer func() error
}

// Open connects to Postgres and verifies the connection with a bounded ping.
func Open(ctx context.Context, logger zerolog.Logger, url string) (*Manager, error) {
	if url == "" {
		return nil, errors.New("database url is required")
	}

	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &Manager{logger: logger, db: db, closer: db.Close}, nil
}

// EnsureSchema creates the tables and indexes that do not exist yet. All
// statements are IF NOT EXISTS, so reruns are safe.
func (m *Manager) EnsureSchema(ctx context.Context) error {
	if m == nil || m.db == nil {
		return errors.New("schema manager is not connected")
	}

	for _, statement := range statements {
		if _, err := m.db.ExecContext(ctx, statement.ddl); err != nil {
			return fmt.Errorf("create %s: %w", statement.name, err)
		}
		m.logger.Debug().Str("object", statement.name).Msg("schema object ensured")
	}

	return m.Verify(ctx)
}

// Verify confirms every required table is visible to the connected role.
func (m *Manager) Verify(ctx context.Context) error {
	if m == nil || m.db == nil {
		return errors.New("schema manager is not connected")
	}

	for _, table := range requiredTables {
		var regclass sql.NullString
		row := m.db.QueryRowContext(ctx, `SELECT to_regclass($1)`, table)
		if err := row.Scan(&regclass); err != nil {
			return fmt.Errorf("verify %s: %w", table, err)
		}
		if !regclass.Valid {
			return fmt.Errorf("table %s is missing", table)
		}
	}

	m.logger.Info().Int("tables", len(requiredTables)).Msg("schema verified")
	return nil
}

// Close releases the database handle.
func (m *Manager) Close() error {
	if m == nil || m.closer == nil {
		return nil
	}
	return m.closer()
}
