package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/lo"

	"ContentSync/internal/domain"
	"ContentSync/internal/ports"
)

// DefaultBatchSize caps how many texts go into one collaborator call.
const DefaultBatchSize = 16

// SentimentPolicy decides which text the sentiment model reads.
type SentimentPolicy string

const (
	// PolicyAuto analyzes the original when its language is the model language, else the translation.
	PolicyAuto       SentimentPolicy = "auto"
	PolicyOriginal   SentimentPolicy = "original"
	PolicyTranslated SentimentPolicy = "translated"
)

// EnrichmentOptions tunes batching, thresholds and language handling.
// Zero values select the defaults.
type EnrichmentOptions struct {
	BatchSize      int
	// Threshold is the confidence below which a label becomes neutral. Values outside (0, 1],
	// zero included, select DefaultThreshold, so every label is subject to a positive threshold.
	Threshold      float64
	ModelLanguage  string
	TargetLanguage string
	MaxInputChars  int
	Policy         SentimentPolicy
}

// EnrichStats counts items that fell back because a collaborator batch failed.
type EnrichStats struct {
	TranslationFallbacks int
	SentimentFallbacks   int
}

func (s *EnrichStats) add(other EnrichStats) {
	s.TranslationFallbacks += other.TranslationFallbacks
	s.SentimentFallbacks += other.SentimentFallbacks
}

// Enricher is the enrichment coordinator: batched translation and sentiment with fallbacks.
type Enricher struct {
	translator ports.Translator
	analyzer   ports.SentimentAnalyzer
	opts       EnrichmentOptions
	logger     *slog.Logger
}

// NewEnricher builds a coordinator; both collaborators are optional.
func NewEnricher(translator ports.Translator, analyzer ports.SentimentAnalyzer, opts EnrichmentOptions, logger *slog.Logger) *Enricher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Threshold <= 0 || opts.Threshold > 1 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Policy == "" {
		opts.Policy = PolicyAuto
	}
	if opts.ModelLanguage == "" {
		opts.ModelLanguage = "en"
	}
	return &Enricher{translator: translator, analyzer: analyzer, opts: opts, logger: logger}
}

type enrichItem struct {
	text     string
	language string
}

// EnrichPublications translates post texts; publications carry no sentiment.
func (e *Enricher) EnrichPublications(ctx context.Context, platform domain.Platform, defaultLang string, posts []domain.RawPost) ([]domain.Publication, EnrichStats) {
	items := lo.Map(posts, func(p domain.RawPost, _ int) enrichItem {
		return enrichItem{text: p.Text, language: lo.Ternary(p.Language != "", p.Language, defaultLang)}
	})

	translated, stats := e.translate(ctx, items)

	pubs := make([]domain.Publication, len(posts))
	for i, post := range posts {
		pubs[i] = domain.Publication{
			ID:             post.ID,
			Platform:       platform,
			OriginalText:   post.Text,
			TranslatedText: translated[i],
		}
	}
	return pubs, stats
}

// EnrichComments translates and classifies comments, preserving input order.
func (e *Enricher) EnrichComments(ctx context.Context, defaultLang string, comments []PostComment) ([]domain.Comment, EnrichStats) {
	items := lo.Map(comments, func(c PostComment, _ int) enrichItem {
		return enrichItem{text: c.Comment.Text, language: lo.Ternary(c.Comment.Language != "", c.Comment.Language, defaultLang)}
	})

	translated, stats := e.translate(ctx, items)

	sentimentInputs := make([]string, len(items))
	for i, item := range items {
		sentimentInputs[i] = e.sentimentInput(item, translated[i])
	}
	labels, scores, sentimentStats := e.analyze(ctx, sentimentInputs)
	stats.add(sentimentStats)

	out := make([]domain.Comment, len(comments))
	for i, c := range comments {
		out[i] = domain.Comment{
			PublicationID:  c.PublicationID,
			Author:         c.Comment.Author,
			OriginalText:   c.Comment.Text,
			TranslatedText: translated[i],
			SentimentLabel: labels[i],
			SentimentScore: scores[i],
		}
	}
	return out, stats
}

// Translate returns one translation per text; failed batches fall back to the input text.
func (e *Enricher) Translate(ctx context.Context, texts []string) ([]string, EnrichStats) {
	items := lo.Map(texts, func(t string, _ int) enrichItem { return enrichItem{text: t} })
	return e.translate(ctx, items)
}

func (e *Enricher) translate(ctx context.Context, items []enrichItem) ([]string, EnrichStats) {
	var stats EnrichStats
	out := lo.Map(items, func(item enrichItem, _ int) string { return item.text })
	if e.translator == nil || len(items) == 0 {
		return out, stats
	}

	target := normalizeLanguage(e.opts.TargetLanguage)
	pending := make([]int, 0, len(items))
	for i, item := range items {
		if strings.TrimSpace(item.text) == "" {
			continue
		}
		if target != "" && normalizeLanguage(item.language) == target {
			continue
		}
		pending = append(pending, i)
	}

	for _, chunk := range lo.Chunk(pending, e.opts.BatchSize) {
		inputs := lo.Map(chunk, func(idx int, _ int) string { return truncateRunes(items[idx].text, e.opts.MaxInputChars) })

		results, err := e.translator.Translate(ctx, inputs)
		if err == nil && len(results) != len(inputs) {
			err = fmt.Errorf("got %d translations for %d texts", len(results), len(inputs))
		}
		if err != nil {
			stats.TranslationFallbacks += len(chunk)
			e.warn("translation fell back to original text",
				"error", &domain.EnrichmentError{Stage: "translate", Size: len(chunk), Err: err})
			continue
		}

		for j, idx := range chunk {
			if strings.TrimSpace(results[j]) != "" {
				out[idx] = results[j]
			}
		}
	}
	return out, stats
}

func (e *Enricher) analyze(ctx context.Context, texts []string) ([]domain.SentimentLabel, []float64, EnrichStats) {
	var stats EnrichStats
	labels := make([]domain.SentimentLabel, len(texts))
	scores := make([]float64, len(texts))
	for i := range labels {
		labels[i] = domain.SentimentNeutral
	}
	if e.analyzer == nil || len(texts) == 0 {
		return labels, scores, stats
	}

	indexes := lo.Range(len(texts))
	for _, chunk := range lo.Chunk(indexes, e.opts.BatchSize) {
		inputs := lo.Map(chunk, func(idx int, _ int) string { return truncateRunes(texts[idx], e.opts.MaxInputChars) })

		results, err := e.analyzer.Analyze(ctx, inputs)
		if err == nil && len(results) != len(inputs) {
			err = fmt.Errorf("got %d sentiment results for %d texts", len(results), len(inputs))
		}
		if err != nil {
			stats.SentimentFallbacks += len(chunk)
			e.warn("sentiment fell back to neutral",
				"error", &domain.EnrichmentError{Stage: "sentiment", Size: len(chunk), Err: err})
			continue
		}

		for j, idx := range chunk {
			labels[idx], scores[idx] = ApplyThreshold(results[j], e.opts.Threshold)
		}
	}
	return labels, scores, stats
}

func (e *Enricher) sentimentInput(item enrichItem, translated string) string {
	switch e.opts.Policy {
	case PolicyOriginal:
		return item.text
	case PolicyTranslated:
		return translated
	default:
		if normalizeLanguage(item.language) == normalizeLanguage(e.opts.ModelLanguage) {
			return item.text
		}
		return translated
	}
}

func (e *Enricher) warn(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Warn(msg, args...)
	}
}

// normalizeLanguage reduces tags like "en-US" or "EN_gb" to "en".
func normalizeLanguage(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}
	return tag
}

func truncateRunes(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
