package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/samber/lo"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"ContentSync/internal/domain"
	"ContentSync/internal/ports"
)

// insertChunk bounds the rows of one multi-row INSERT.
const insertChunk = 500

// ErrDuplicate reports a write that collided with an existing identity.
var ErrDuplicate = errors.New("duplicate record")

// SQLStore persists publications and comments into SQLite or Postgres.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	sb      sq.StatementBuilderType
}

var (
	_ ports.ContentStore     = (*SQLStore)(nil)
	_ ports.TranslationStore = (*SQLStore)(nil)
)

// NewSQLStore wires a sql.DB implementation.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		sb:      sq.StatementBuilder.PlaceholderFormat(dialect.placeholder()),
	}
}

// ExistingPublicationIDs returns the subset of ids already stored, in one query.
func (s *SQLStore) ExistingPublicationIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	if s.db == nil || len(ids) == 0 {
		return map[string]bool{}, nil
	}

	query, args, err := s.sb.Select("id").From("publications").Where(sq.Eq{"id": lo.Uniq(ids)}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query publications: %w", err)
	}

	result := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan id: %w", err)
		}
		result[id] = true
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}

// ExistingCommentKeys returns the identity tuples of every comment stored for the given publications.
func (s *SQLStore) ExistingCommentKeys(ctx context.Context, publicationIDs []string) (map[domain.CommentKey]bool, error) {
	if s.db == nil || len(publicationIDs) == 0 {
		return map[domain.CommentKey]bool{}, nil
	}

	query, args, err := s.sb.Select("publication_id", "author", "original_text").
		From("comments").
		Where(sq.Eq{"publication_id": lo.Uniq(publicationIDs)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}

	result := make(map[domain.CommentKey]bool)
	for rows.Next() {
		var key domain.CommentKey
		if err := rows.Scan(&key.PublicationID, &key.Author, &key.Text); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan comment key: %w", err)
		}
		result[key] = true
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}

// InsertPublications stores a batch in its own unit.
func (s *SQLStore) InsertPublications(ctx context.Context, batch []domain.Publication) error {
	return s.InUnit(ctx, func(w ports.UnitWriter) error { return w.InsertPublications(ctx, batch) })
}

// InsertComments stores a batch in its own unit.
func (s *SQLStore) InsertComments(ctx context.Context, batch []domain.Comment) error {
	return s.InUnit(ctx, func(w ports.UnitWriter) error { return w.InsertComments(ctx, batch) })
}

// InUnit runs fn inside one transaction; any error rolls the whole unit back.
func (s *SQLStore) InUnit(ctx context.Context, fn func(w ports.UnitWriter) error) error {
	if s.db == nil {
		return errors.New("store has no database")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin unit: %w", err)
	}

	if err := fn(&unitWriter{tx: tx, sb: s.sb}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit unit: %w", err)
	}
	return nil
}

type unitWriter struct {
	tx *sql.Tx
	sb sq.StatementBuilderType
}

func (w *unitWriter) InsertPublications(ctx context.Context, batch []domain.Publication) error {
	for _, chunk := range lo.Chunk(batch, insertChunk) {
		insert := w.sb.Insert("publications").Columns("id", "platform", "original_text", "translated_text")
		for _, p := range chunk {
			insert = insert.Values(p.ID, string(p.Platform), p.OriginalText, p.TranslatedText)
		}

		query, args, err := insert.ToSql()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		if _, err := w.tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert publications: %w", classify(err))
		}
	}
	return nil
}

func (w *unitWriter) InsertComments(ctx context.Context, batch []domain.Comment) error {
	for _, chunk := range lo.Chunk(batch, insertChunk) {
		insert := w.sb.Insert("comments").
			Columns("publication_id", "author", "original_text", "translated_text", "sentiment_label", "sentiment_score")
		for _, c := range chunk {
			label := c.SentimentLabel
			if label == "" {
				label = domain.SentimentNeutral
			}
			insert = insert.Values(c.PublicationID, c.Author, c.OriginalText, c.TranslatedText, string(label), c.SentimentScore)
		}

		query, args, err := insert.ToSql()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		if _, err := w.tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert comments: %w", classify(err))
		}
	}
	return nil
}

// classify maps driver unique-violation errors onto ErrDuplicate.
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch code := liteErr.Code(); {
		case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %v", ErrDuplicate, err)
		case code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(err.Error(), "UNIQUE"):
			return fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
	}
	return err
}
