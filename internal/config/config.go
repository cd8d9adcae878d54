package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "UTC"

	configPathEnv      = "CONTENT_SYNC_CONFIG"
	dbTypeEnv          = "DB_TYPE"
	databaseDSNEnv     = "DATABASE_DSN"
	logLevelEnv        = "LOG_LEVEL"
	chatGPTAPIKeyEnv   = "CHATGPT_API_KEY"
	chatGPTModelEnv    = "CHATGPT_MODEL"
	mlInferenceURLEnv  = "ML_INFERENCE_URL"
	mlAPIKeyEnv        = "ML_API_KEY"
	telegramTokenEnv   = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv  = "TELEGRAM_CHAT_ID"
	natsURLEnv         = "NATS_URL"
	redditUserAgentEnv = "REDDIT_USER_AGENT"
	mastodonTokenEnv   = "MASTODON_ACCESS_TOKEN"
	pageAccessTokenEnv = "PAGE_ACCESS_TOKEN"
	pageIDEnv          = "PAGE_ID"
)

// Backend names accepted by the enrichment section.
const (
	BackendNone    = "none"
	BackendML      = "ml"
	BackendChatGPT = "chatgpt"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Sync          SyncConfig         `yaml:"sync"`
	Enrichment    EnrichmentConfig   `yaml:"enrichment"`
	ML            MLConfig           `yaml:"ml"`
	ChatGPT       ChatGPTConfig      `yaml:"chatgpt"`
	Notifications NotificationConfig `yaml:"notifications"`
	Metrics       MetricsConfig      `yaml:"metrics"`
	Sources       []SourceConfig     `yaml:"sources"`
}

// LoggingConfig selects slog level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig describes the content store connection.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// SchedulerConfig defines how often the serve command syncs every source.
type SchedulerConfig struct {
	Interval   time.Duration  `yaml:"interval"`
	Timezone   string         `yaml:"timezone"`
	RunOnStart bool           `yaml:"runOnStart"`
	location   *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// SyncConfig holds run-wide fetch limits and grouping.
type SyncConfig struct {
	PostLimit         int   `yaml:"postLimit"`
	CommentLimit      int   `yaml:"commentLimit"`
	GroupSize         int   `yaml:"groupSize"`
	RefreshKnownPosts *bool `yaml:"refreshKnownPosts"`
}

// Refresh reports whether known posts still get their comments fetched; unset means true.
func (s SyncConfig) Refresh() bool {
	return s.RefreshKnownPosts == nil || *s.RefreshKnownPosts
}

// EnrichmentConfig selects translation and sentiment backends and their batching.
type EnrichmentConfig struct {
	Translator     string  `yaml:"translator"`
	Sentiment      string  `yaml:"sentiment"`
	BatchSize      int     `yaml:"batchSize"`
	Threshold      float64 `yaml:"threshold"`
	ModelLanguage  string  `yaml:"modelLanguage"`
	TargetLanguage string  `yaml:"targetLanguage"`
	MaxInputChars  int     `yaml:"maxInputChars"`
	Policy         string  `yaml:"policy"`
}

// MLConfig describes neural-service integration parameters.
type MLConfig struct {
	InferenceURL string        `yaml:"inferenceUrl"`
	APIKey       string        `yaml:"apiKey"`
	Timeout      time.Duration `yaml:"timeout"`
}

// ChatGPTConfig defines how to contact the ChatGPT API.
type ChatGPTConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Model        string `yaml:"model"`
	APIKey       string `yaml:"apiKey"`
	SystemPrompt string `yaml:"systemPrompt"`
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	NATS     NATSConfig     `yaml:"nats"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// Enabled reports whether both credentials are present.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// NATSConfig points run summaries at a NATS subject; an empty URL disables it.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// MetricsConfig sets the listen address of the /metrics endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// SourceConfig describes a single platform source.
type SourceConfig struct {
	Name         string            `yaml:"name"`
	Platform     string            `yaml:"platform"`
	Language     string            `yaml:"language"`
	BaseURL      string            `yaml:"baseUrl"`
	RateLimit    float64           `yaml:"rateLimit"`
	Burst        int               `yaml:"burst"`
	Timeout      time.Duration     `yaml:"timeout"`
	PostLimit    int               `yaml:"postLimit"`
	CommentLimit int               `yaml:"commentLimit"`
	Options      map[string]string `yaml:"options"`
}

// Limits returns the source limits, falling back to the sync section.
func (s SourceConfig) Limits(sync SyncConfig) (posts, comments int) {
	posts, comments = s.PostLimit, s.CommentLimit
	if posts <= 0 {
		posts = sync.PostLimit
	}
	if comments <= 0 {
		comments = sync.CommentLimit
	}
	return posts, comments
}

// Load reads the YAML file named by CONTENT_SYNC_CONFIG (if present) and applies environment overrides.
func Load() Config {
	cfg, err := LoadFrom(os.Getenv(configPathEnv))
	if err != nil {
		log.Printf("config: %v (falling back to defaults)", err)
		cfg = defaultConfig()
		cfg.applyEnvOverrides()
		cfg.bindTimezone()
	}
	return cfg
}

// LoadFrom reads the given YAML file over the defaults; an empty path uses defaults only.
func LoadFrom(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("cannot read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("cannot parse %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "sqlite", "sqlite3", "postgres", "postgresql", "pg":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}

	e := c.Enrichment
	if e.Threshold <= 0 || e.Threshold > 1 {
		errs = append(errs, fmt.Errorf("enrichment.threshold %v must be within (0, 1]", e.Threshold))
	}
	if e.BatchSize <= 0 {
		errs = append(errs, errors.New("enrichment.batchSize must be positive"))
	}
	if c.Sync.GroupSize <= 0 {
		errs = append(errs, errors.New("sync.groupSize must be positive"))
	}
	if c.Sync.PostLimit <= 0 {
		errs = append(errs, errors.New("sync.postLimit must be positive"))
	}
	if c.Sync.CommentLimit < 0 {
		errs = append(errs, errors.New("sync.commentLimit must not be negative"))
	}
	switch e.Translator {
	case BackendNone, BackendML, BackendChatGPT:
	default:
		errs = append(errs, fmt.Errorf("enrichment.translator %q is not supported", e.Translator))
	}
	switch e.Sentiment {
	case BackendNone, BackendML:
	default:
		errs = append(errs, fmt.Errorf("enrichment.sentiment %q is not supported", e.Sentiment))
	}
	switch e.Policy {
	case "", "auto", "original", "translated":
	default:
		errs = append(errs, fmt.Errorf("enrichment.policy %q is not supported", e.Policy))
	}

	seen := map[string]bool{}
	for i, src := range c.Sources {
		if src.Platform == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: platform is required", i))
		}
		if src.PostLimit < 0 || src.CommentLimit < 0 {
			errs = append(errs, fmt.Errorf("sources[%d]: limits must not be negative", i))
		}
		if seen[src.Name] {
			errs = append(errs, fmt.Errorf("sources[%d]: duplicate name %q", i, src.Name))
		}
		seen[src.Name] = true
	}

	return errors.Join(errs...)
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(dbTypeEnv); v != "" {
		c.Database.Driver = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := cleanCredential(os.Getenv(telegramTokenEnv)); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := cleanCredential(os.Getenv(telegramChatIDEnv)); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
	if v := os.Getenv(natsURLEnv); v != "" {
		c.Notifications.NATS.URL = v
	}

	if v := cleanCredential(os.Getenv(chatGPTAPIKeyEnv)); v != "" {
		c.ChatGPT.APIKey = v
	}
	if v := os.Getenv(chatGPTModelEnv); v != "" {
		c.ChatGPT.Model = v
	}
	if v := os.Getenv(mlInferenceURLEnv); v != "" {
		c.ML.InferenceURL = v
	}
	if v := cleanCredential(os.Getenv(mlAPIKeyEnv)); v != "" {
		c.ML.APIKey = v
	}

	for i := range c.Sources {
		src := &c.Sources[i]
		if src.Name == "" {
			src.Name = src.Platform
		}
		if src.Options == nil {
			src.Options = map[string]string{}
		}
		for key, value := range src.Options {
			src.Options[key] = cleanCredential(value)
		}

		switch src.Platform {
		case "reddit":
			fillOption(src.Options, "userAgent", os.Getenv(redditUserAgentEnv))
		case "mastodon":
			fillOption(src.Options, "accessToken", cleanCredential(os.Getenv(mastodonTokenEnv)))
		case "facebook":
			fillOption(src.Options, "accessToken", cleanCredential(os.Getenv(pageAccessTokenEnv)))
			fillOption(src.Options, "pageId", cleanCredential(os.Getenv(pageIDEnv)))
		}
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func fillOption(options map[string]string, key, value string) {
	if value != "" && options[key] == "" {
		options[key] = value
	}
}

// cleanCredential strips whitespace and one pair of surrounding quotes.
func cleanCredential(value string) string {
	value = strings.TrimSpace(value)
	if len(value) >= 2 {
		first, last := value[0], value[len(value)-1]
		if (first == '"' || first == '\'') && first == last {
			value = strings.TrimSpace(value[1 : len(value)-1])
		}
	}
	return value
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		Database:  DatabaseConfig{Driver: "sqlite", DSN: "contentsync.db"},
		Scheduler: SchedulerConfig{Interval: time.Hour, Timezone: defaultTimezone, location: tz},
		Sync:      SyncConfig{PostLimit: 25, CommentLimit: 100, GroupSize: 1},
		Enrichment: EnrichmentConfig{
			Translator:     BackendML,
			Sentiment:      BackendML,
			BatchSize:      16,
			Threshold:      0.5,
			ModelLanguage:  "en",
			TargetLanguage: "en",
			MaxInputChars:  512,
			Policy:         "auto",
		},
		ML: MLConfig{InferenceURL: "http://localhost:8000", Timeout: 30 * time.Second},
		ChatGPT: ChatGPTConfig{
			Endpoint:     "https://api.openai.com/v1/chat/completions",
			Model:        "gpt-4o-mini",
			SystemPrompt: "You translate social media posts and comments.",
		},
		Notifications: NotificationConfig{NATS: NATSConfig{Subject: "contentsync.runs"}},
		Metrics:       MetricsConfig{Addr: ":9090"},
	}
}
