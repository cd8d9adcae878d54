package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects SQL flavour and placeholder style.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ParseDialect accepts the driver names used in configuration.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", name)
	}
}

func (d Dialect) placeholder() sq.PlaceholderFormat {
	if d == DialectPostgres {
		return sq.Dollar
	}
	return sq.Question
}

// Open connects to the database and applies per-dialect connection settings.
func Open(ctx context.Context, dialect Dialect, dsn string) (*sql.DB, error) {
	switch dialect {
	case DialectSQLite:
		if !strings.Contains(dsn, "foreign_keys") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "_pragma=foreign_keys(1)"
		}
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// SQLite allows one writer; a single connection also keeps in-memory databases alive.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
		return db, nil
	case DialectPostgres:
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS publications (
		id TEXT PRIMARY KEY,
		platform TEXT NOT NULL,
		original_text TEXT,
		translated_text TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS comments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		publication_id TEXT NOT NULL REFERENCES publications(id) ON DELETE CASCADE,
		author TEXT NOT NULL,
		original_text TEXT NOT NULL,
		translated_text TEXT,
		sentiment_label TEXT NOT NULL DEFAULT 'neutral',
		sentiment_score REAL NOT NULL DEFAULT 0 CHECK (sentiment_score >= 0 AND sentiment_score <= 1),
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (publication_id, author, original_text)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_publications_platform ON publications (platform)`,
	`CREATE INDEX IF NOT EXISTS idx_comments_publication ON comments (publication_id)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS publications (
		id TEXT PRIMARY KEY,
		platform TEXT NOT NULL,
		original_text TEXT,
		translated_text TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS comments (
		id BIGSERIAL PRIMARY KEY,
		publication_id TEXT NOT NULL REFERENCES publications(id) ON DELETE CASCADE,
		author TEXT NOT NULL,
		original_text TEXT NOT NULL,
		translated_text TEXT,
		sentiment_label TEXT NOT NULL DEFAULT 'neutral',
		sentiment_score DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (sentiment_score >= 0 AND sentiment_score <= 1),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	// Long comment bodies exceed btree row limits, so identity is indexed through a digest.
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_comments_identity ON comments (publication_id, author, md5(original_text))`,
	`CREATE INDEX IF NOT EXISTS idx_publications_platform ON publications (platform)`,
	`CREATE INDEX IF NOT EXISTS idx_comments_publication ON comments (publication_id)`,
}

// Migrate creates the schema if it does not exist yet.
func (s *SQLStore) Migrate(ctx context.Context) error {
	statements := sqliteSchema
	if s.dialect == DialectPostgres {
		statements = postgresSchema
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
