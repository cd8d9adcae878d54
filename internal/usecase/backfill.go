package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"ContentSync/internal/domain"
	"ContentSync/internal/ports"
)

// BackfillResult counts what one translation backfill pass did.
type BackfillResult struct {
	Scanned   int
	Updated   int
	Fallbacks int
}

// Backfill translates stored rows whose translation is missing or equal to the original.
type Backfill struct {
	store    ports.TranslationStore
	enricher *Enricher
	hasModel bool
	logger   *slog.Logger
}

// NewBackfill wires the translation store with a translator.
func NewBackfill(store ports.TranslationStore, translator ports.Translator, opts EnrichmentOptions, logger *slog.Logger) *Backfill {
	// Stored rows carry no language, so every pending row is sent to the translator.
	opts.TargetLanguage = ""
	return &Backfill{
		store:    store,
		enricher: NewEnricher(translator, nil, opts, logger),
		hasModel: translator != nil,
		logger:   logger,
	}
}

// Run processes up to limit pending rows in one pass.
func (b *Backfill) Run(ctx context.Context, limit int) (BackfillResult, error) {
	if !b.hasModel {
		return BackfillResult{}, errors.New("backfill: no translator configured")
	}

	pending, err := b.store.PendingTranslations(ctx, limit)
	if err != nil {
		return BackfillResult{}, fmt.Errorf("load pending translations: %w", err)
	}
	result := BackfillResult{Scanned: len(pending)}
	if len(pending) == 0 {
		return result, nil
	}

	texts := lo.Map(pending, func(t domain.TranslationTarget, _ int) string { return t.Text })
	translated, stats := b.enricher.Translate(ctx, texts)
	result.Fallbacks = stats.TranslationFallbacks

	var updates []domain.TranslationTarget
	for i, target := range pending {
		if translated[i] == target.Text {
			continue
		}
		target.Text = translated[i]
		updates = append(updates, target)
	}

	if len(updates) > 0 {
		if err := b.store.UpdateTranslations(ctx, updates); err != nil {
			return result, fmt.Errorf("update translations: %w", err)
		}
	}
	result.Updated = len(updates)

	if b.logger != nil {
		b.logger.Info("translation backfill done", "scanned", result.Scanned, "updated", result.Updated, "fallbacks", result.Fallbacks)
	}
	return result, nil
}
