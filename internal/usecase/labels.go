package usecase

import (
	"math"
	"strings"

	"ContentSync/internal/domain"
)

// DefaultThreshold is the minimum confidence for a polar label to be kept.
const DefaultThreshold = 0.5

var canonicalLabels = map[string]domain.SentimentLabel{
	"positive": domain.SentimentPositive,
	"pos":      domain.SentimentPositive,
	"label_2":  domain.SentimentPositive,
	"2":        domain.SentimentPositive,
	"negative": domain.SentimentNegative,
	"neg":      domain.SentimentNegative,
	"label_0":  domain.SentimentNegative,
	"0":        domain.SentimentNegative,
	"neutral":  domain.SentimentNeutral,
	"neu":      domain.SentimentNeutral,
	"label_1":  domain.SentimentNeutral,
	"1":        domain.SentimentNeutral,
}

// CanonicalLabel maps a model's raw vocabulary onto the three-value enum.
// Unknown labels are neutral.
func CanonicalLabel(raw string) domain.SentimentLabel {
	if label, ok := canonicalLabels[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return label
	}
	return domain.SentimentNeutral
}

// ApplyThreshold maps the raw result and forces neutral below threshold.
// The score is kept as reported, clamped into [0,1].
func ApplyThreshold(res domain.SentimentResult, threshold float64) (domain.SentimentLabel, float64) {
	score := clampScore(res.Score)
	label := CanonicalLabel(res.Label)
	if score < threshold {
		label = domain.SentimentNeutral
	}
	return label, score
}

func clampScore(score float64) float64 {
	switch {
	case math.IsNaN(score), score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}
