package domain

// Platform tags the social network a publication was fetched from.
type Platform string

const (
	PlatformReddit   Platform = "reddit"
	PlatformMastodon Platform = "mastodon"
	PlatformFacebook Platform = "facebook"
)

// RawPost is a post as returned by a platform adapter, before dedup and enrichment.
type RawPost struct {
	ID       string
	Author   string
	Text     string
	Language string
}

// RawComment is a reply as returned by a platform adapter.
type RawComment struct {
	ID       string
	Author   string
	Text     string
	Language string
}

// Publication is one persisted post/thread.
type Publication struct {
	ID             string
	Platform       Platform
	OriginalText   string
	TranslatedText string
}

// Comment is one persisted reply attached to a publication.
type Comment struct {
	ID             int64
	PublicationID  string
	Author         string
	OriginalText   string
	TranslatedText string
	SentimentLabel SentimentLabel
	SentimentScore float64
}

// Key returns the identity tuple used for deduplication.
func (c Comment) Key() CommentKey {
	return CommentKey{PublicationID: c.PublicationID, Author: c.Author, Text: c.OriginalText}
}

// CommentKey identifies a comment regardless of its platform-native id.
type CommentKey struct {
	PublicationID string
	Author        string
	Text          string
}

// SentimentLabel is the canonical three-value sentiment enum.
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNegative SentimentLabel = "negative"
	SentimentNeutral  SentimentLabel = "neutral"
)

// SentimentResult is a raw classifier output; Label uses the model's own vocabulary.
type SentimentResult struct {
	Label string
	Score float64
}
