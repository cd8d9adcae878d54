package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"resty.dev/v3"

	"ContentSync/internal/config"
	"ContentSync/internal/metrics"
	"ContentSync/internal/ports"
)

// ChatGPTClient implements ports.Translator backed by OpenAI-compatible chat APIs.
type ChatGPTClient struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	target       string
	httpClient   *resty.Client
}

var _ ports.Translator = (*ChatGPTClient)(nil)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewChatGPTClient builds a client from configuration.
func NewChatGPTClient(cfg config.ChatGPTConfig, targetLanguage string) *ChatGPTClient {
	if targetLanguage == "" {
		targetLanguage = "en"
	}
	client := resty.New().
		SetTimeout(60*time.Second).
		SetHeader("Content-Type", "application/json")
	client.AddResponseMiddleware(metrics.LatencyMiddleware("chatgpt"))

	return &ChatGPTClient{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		target:       targetLanguage,
		httpClient:   client,
	}
}

// Translate asks the model for a JSON array with one translation per input.
func (c *ChatGPTClient) Translate(ctx context.Context, texts []string) ([]string, error) {
	if c == nil {
		return nil, fmt.Errorf("chatgpt client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return nil, fmt.Errorf("chatgpt client misconfigured")
	}
	if len(texts) == 0 {
		return nil, nil
	}

	input, err := json.Marshal(texts)
	if err != nil {
		return nil, fmt.Errorf("marshal texts: %w", err)
	}

	var resp chatResponse
	res, err := c.httpClient.R().
		WithContext(metrics.WithRoute(ctx, "chat completions")).
		SetAuthToken(c.apiKey).
		SetBody(chatRequest{
			Model: c.model,
			Messages: []chatMessage{
				{Role: "system", Content: safePrompt(c.systemPrompt, c.target)},
				{Role: "user", Content: string(input)},
			},
		}).
		SetResult(&resp).
		Post(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("send translation request: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("chatgpt error %s: %s", res.Status(), strings.TrimSpace(res.String()))
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chatgpt returned no choices")
	}

	var out []string
	if err := json.Unmarshal([]byte(stripFence(resp.Choices[0].Message.Content)), &out); err != nil {
		return nil, fmt.Errorf("decode translations: %w", err)
	}
	if len(out) != len(texts) {
		return nil, fmt.Errorf("chatgpt returned %d translations for %d texts", len(out), len(texts))
	}
	return out, nil
}

func safePrompt(prompt, target string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		prompt = "You translate social media posts and comments."
	}
	return fmt.Sprintf("%s Translate every string of the JSON array the user sends into language %q. "+
		"Reply with a JSON array of strings only, same length and order, no commentary.", prompt, target)
}

// stripFence removes a markdown code fence some models wrap JSON in.
func stripFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimPrefix(content, "json")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
