package storage

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ContentSync/internal/domain"
	"ContentSync/internal/ports"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := Open(context.Background(), DialectSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := NewSQLStore(db, DialectSQLite)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func seed(t *testing.T, store *SQLStore) {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, store.InsertPublications(ctx, []domain.Publication{
		{ID: "r1", Platform: domain.PlatformReddit, OriginalText: "hello", TranslatedText: "hola"},
		{ID: "r2", Platform: domain.PlatformReddit, OriginalText: "bye", TranslatedText: "bye"},
		{ID: "m1", Platform: domain.PlatformMastodon, OriginalText: "toot", TranslatedText: "toot"},
	}))
	require.NoError(t, store.InsertComments(ctx, []domain.Comment{
		{PublicationID: "r1", Author: "a", OriginalText: "nice", TranslatedText: "bonito", SentimentLabel: domain.SentimentPositive, SentimentScore: 0.9},
		{PublicationID: "r1", Author: "b", OriginalText: "bad", TranslatedText: "bad", SentimentLabel: domain.SentimentNegative, SentimentScore: 0.7},
		{PublicationID: "m1", Author: "c", OriginalText: "meh", TranslatedText: "meh", SentimentLabel: domain.SentimentNeutral, SentimentScore: 0.2},
	}))
}

func TestMigrateIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	assert.NoError(t, store.Migrate(context.Background()))
}

func TestExistingPublicationIDs(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	seed(t, store)

	got, err := store.ExistingPublicationIDs(context.Background(), []string{"r1", "x", "m1", "r1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"r1": true, "m1": true}, got)

	empty, err := store.ExistingPublicationIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestExistingCommentKeys(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	seed(t, store)

	got, err := store.ExistingCommentKeys(context.Background(), []string{"r1"})
	require.NoError(t, err)
	assert.Equal(t, map[domain.CommentKey]bool{
		{PublicationID: "r1", Author: "a", Text: "nice"}: true,
		{PublicationID: "r1", Author: "b", Text: "bad"}:  true,
	}, got)
}

func TestInUnitRollsBackWholeUnit(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	seed(t, store)
	ctx := context.Background()

	err := store.InUnit(ctx, func(w ports.UnitWriter) error {
		if err := w.InsertPublications(ctx, []domain.Publication{{ID: "r3", Platform: domain.PlatformReddit, OriginalText: "new"}}); err != nil {
			return err
		}
		return w.InsertComments(ctx, []domain.Comment{
			{PublicationID: "r3", Author: "z", OriginalText: "first"},
			{PublicationID: "r3", Author: "z", OriginalText: "first"},
		})
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicate)

	got, err := store.ExistingPublicationIDs(ctx, []string{"r3"})
	require.NoError(t, err)
	assert.Empty(t, got, "publication of a failed unit must not be committed")
}

func TestInsertDuplicatePublicationIsClassified(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	seed(t, store)

	err := store.InsertPublications(context.Background(), []domain.Publication{{ID: "r1", Platform: domain.PlatformReddit}})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestCommentRequiresPublication(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	err := store.InsertComments(context.Background(), []domain.Comment{{PublicationID: "missing", Author: "a", OriginalText: "x"}})
	assert.Error(t, err)
}

func TestDeletePublicationCascades(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	seed(t, store)
	ctx := context.Background()

	deleted, err := store.DeletePublication(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, deleted)

	keys, err := store.ExistingCommentKeys(ctx, []string{"r1"})
	require.NoError(t, err)
	assert.Empty(t, keys)

	deleted, err = store.DeletePublication(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestDeletePlatform(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	seed(t, store)
	ctx := context.Background()

	n, err := store.DeletePlatform(ctx, domain.PlatformReddit)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	stats, err := store.Stats(ctx, "")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, domain.PlatformMastodon, stats[0].Platform)
	assert.Equal(t, 1, stats[0].Comments)
}

func TestPendingAndUpdateTranslations(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	seed(t, store)
	ctx := context.Background()

	pending, err := store.PendingTranslations(ctx, 10)
	require.NoError(t, err)

	kinds := map[string][]string{}
	for _, p := range pending {
		kinds[p.Kind] = append(kinds[p.Kind], p.Text)
	}
	assert.ElementsMatch(t, []string{"bye", "toot"}, kinds[domain.TargetPublication])
	assert.ElementsMatch(t, []string{"bad", "meh"}, kinds[domain.TargetComment])

	limited, err := store.PendingTranslations(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, limited, 3)

	for i := range pending {
		pending[i].Text = "tr:" + pending[i].Text
	}
	require.NoError(t, store.UpdateTranslations(ctx, pending))

	again, err := store.PendingTranslations(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestStats(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	seed(t, store)

	stats, err := store.Stats(context.Background(), domain.PlatformReddit)
	require.NoError(t, err)
	require.Len(t, stats, 1)

	reddit := stats[0]
	assert.Equal(t, 2, reddit.Publications)
	assert.Equal(t, 2, reddit.Comments)
	assert.Equal(t, 1, reddit.Labels[domain.SentimentPositive])
	assert.Equal(t, 1, reddit.Labels[domain.SentimentNegative])
	assert.InDelta(t, 0.8, reddit.MeanScore, 1e-9)
}

func TestParseDialect(t *testing.T) {
	t.Parallel()

	d, err := ParseDialect("")
	require.NoError(t, err)
	assert.Equal(t, DialectSQLite, d)

	d, err = ParseDialect("PostgreSQL")
	require.NoError(t, err)
	assert.Equal(t, DialectPostgres, d)

	_, err = ParseDialect("oracle")
	assert.Error(t, err)
}
