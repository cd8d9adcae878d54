package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	sq "github.com/Masterminds/squirrel"

	"ContentSync/internal/domain"
)

// DeletePublication removes one publication; its comments go with it.
func (s *SQLStore) DeletePublication(ctx context.Context, id string) (bool, error) {
	query, args, err := s.sb.Delete("publications").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build delete: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("delete publication %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// DeletePlatform removes every publication of a platform and returns how many were deleted.
func (s *SQLStore) DeletePlatform(ctx context.Context, platform domain.Platform) (int64, error) {
	query, args, err := s.sb.Delete("publications").Where(sq.Eq{"platform": string(platform)}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete platform %s: %w", platform, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func untranslated() sq.Sqlizer {
	return sq.And{
		sq.NotEq{"original_text": nil},
		sq.NotEq{"original_text": ""},
		sq.Or{sq.Eq{"translated_text": nil}, sq.Expr("translated_text = original_text")},
	}
}

// PendingTranslations lists up to limit rows whose translation is missing or equals the
// original, publications first.
func (s *SQLStore) PendingTranslations(ctx context.Context, limit int) ([]domain.TranslationTarget, error) {
	if limit <= 0 {
		return nil, nil
	}

	pubs, err := s.pending(ctx, "publications", domain.TargetPublication, limit)
	if err != nil {
		return nil, err
	}
	if len(pubs) >= limit {
		return pubs, nil
	}

	comments, err := s.pending(ctx, "comments", domain.TargetComment, limit-len(pubs))
	if err != nil {
		return nil, err
	}
	return append(pubs, comments...), nil
}

func (s *SQLStore) pending(ctx context.Context, table, kind string, limit int) ([]domain.TranslationTarget, error) {
	query, args, err := s.sb.Select("id", "original_text").
		From(table).
		Where(untranslated()).
		OrderBy("id").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending %s: %w", table, err)
	}
	defer rows.Close()

	var out []domain.TranslationTarget
	for rows.Next() {
		target := domain.TranslationTarget{Kind: kind}
		if err := rows.Scan(&target.ID, &target.Text); err != nil {
			return nil, fmt.Errorf("scan pending %s: %w", table, err)
		}
		out = append(out, target)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// UpdateTranslations writes new translated texts in one transaction.
func (s *SQLStore) UpdateTranslations(ctx context.Context, targets []domain.TranslationTarget) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, target := range targets {
		var update sq.UpdateBuilder
		switch target.Kind {
		case domain.TargetPublication:
			update = s.sb.Update("publications").Set("translated_text", target.Text).Where(sq.Eq{"id": target.ID})
		case domain.TargetComment:
			id, err := strconv.ParseInt(target.ID, 10, 64)
			if err != nil {
				return fmt.Errorf("comment id %q: %w", target.ID, err)
			}
			update = s.sb.Update("comments").Set("translated_text", target.Text).Where(sq.Eq{"id": id})
		default:
			return fmt.Errorf("unknown translation target %q", target.Kind)
		}

		query, args, err := update.ToSql()
		if err != nil {
			return fmt.Errorf("build update: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("update %s %s: %w", target.Kind, target.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Stats aggregates stored content per platform; an empty platform means all of them.
func (s *SQLStore) Stats(ctx context.Context, platform domain.Platform) ([]domain.PlatformStats, error) {
	byPlatform := map[domain.Platform]*domain.PlatformStats{}
	get := func(p domain.Platform) *domain.PlatformStats {
		if st, ok := byPlatform[p]; ok {
			return st
		}
		st := &domain.PlatformStats{Platform: p, Labels: map[domain.SentimentLabel]int{}}
		byPlatform[p] = st
		return st
	}

	pubQuery := s.sb.Select("platform", "COUNT(*)").From("publications").GroupBy("platform")
	if platform != "" {
		pubQuery = pubQuery.Where(sq.Eq{"platform": string(platform)})
	}
	query, args, err := pubQuery.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	if err := s.scanEach(ctx, query, args, func(rows interface{ Scan(...any) error }) error {
		var p string
		var count int
		if err := rows.Scan(&p, &count); err != nil {
			return err
		}
		get(domain.Platform(p)).Publications = count
		return nil
	}); err != nil {
		return nil, fmt.Errorf("publication stats: %w", err)
	}

	commentQuery := s.sb.Select("p.platform", "c.sentiment_label", "COUNT(*)", "COALESCE(SUM(c.sentiment_score), 0)").
		From("comments c").
		Join("publications p ON p.id = c.publication_id").
		GroupBy("p.platform", "c.sentiment_label")
	if platform != "" {
		commentQuery = commentQuery.Where(sq.Eq{"p.platform": string(platform)})
	}
	query, args, err = commentQuery.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	sums := map[domain.Platform]float64{}
	if err := s.scanEach(ctx, query, args, func(rows interface{ Scan(...any) error }) error {
		var p, label string
		var count int
		var sum float64
		if err := rows.Scan(&p, &label, &count, &sum); err != nil {
			return err
		}
		st := get(domain.Platform(p))
		st.Labels[domain.SentimentLabel(label)] += count
		st.Comments += count
		sums[st.Platform] += sum
		return nil
	}); err != nil {
		return nil, fmt.Errorf("comment stats: %w", err)
	}

	out := make([]domain.PlatformStats, 0, len(byPlatform))
	for p, st := range byPlatform {
		if st.Comments > 0 {
			st.MeanScore = sums[p] / float64(st.Comments)
		}
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out, nil
}

func (s *SQLStore) scanEach(ctx context.Context, query string, args []any, fn func(rows interface{ Scan(...any) error }) error) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
