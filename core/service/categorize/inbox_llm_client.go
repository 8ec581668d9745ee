package categorize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	openai "github.com/sashabaranov/go-openai"

	"inbox_server/core/domain"
	"inbox_server/core/port/out"
	"inbox_server/pkg/httputil"
)

const (
	promptVersion = "v1.0"

	// maxContentChars bounds how much body text goes into the prompt.
	maxContentChars = 1000
)

var systemPrompt = fmt.Sprintf(`You are an email categorization assistant for a financial services workspace.
Classify the email into exactly one of these categories: %s.
Respond with a JSON object only: {"category": "<category>", "confidence": <0.0-1.0>, "reasoning": "<one sentence>"}.`,
	categoryList())

func categoryList() string {
	names := make([]string, len(domain.AllCategories))
	for i, c := range domain.AllCategories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

// Client calls the OpenAI chat API to categorize emails.
type Client struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
}

var _ out.Categorizer = (*Client)(nil)

type ClientConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	TimeoutSec  int
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key not configured")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 200
	}
	if cfg.TimeoutSec <= 0 {
		cfg.TimeoutSec = 10
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.HTTPClient = httputil.OpenAIClient()

	return &Client{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: float32(cfg.Temperature),
		timeout:     time.Duration(cfg.TimeoutSec) * time.Second,
	}, nil
}

func (c *Client) PromptVersion() string {
	return promptVersion
}

// Categorize classifies one email. The response is expected to be a
// JSON object, possibly wrapped in prose; everything between the first
// '{' and the last '}' is parsed.
func (c *Client) Categorize(ctx context.Context, subject, sender, content string) (*domain.CategorizationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if len(content) > maxContentChars {
		content = content[:maxContentChars]
	}

	userPrompt := fmt.Sprintf("Subject: %s\nFrom: %s\n\n%s", subject, sender, content)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("empty completion response")
	}

	return parseResult(resp.Choices[0].Message.Content)
}

func parseResult(raw string) (*domain.CategorizationResult, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response: %q", raw)
	}

	var parsed struct {
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	category := domain.EmailCategory(strings.ToUpper(strings.TrimSpace(parsed.Category)))
	if !category.Valid() {
		category = domain.CategoryOther
	}

	confidence := parsed.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return &domain.CategorizationResult{
		Category:   category,
		Confidence: confidence,
		Reasoning:  parsed.Reasoning,
	}, nil
}
