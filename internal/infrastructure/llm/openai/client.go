// Package openai adapts the OpenAI HTTP API (or any compatible endpoint) to the provider backend contract.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/infrastructure/llm/llmhttp"
)

const (
	providerName = "openai"

	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultChatModel  = "gpt-4o-mini"
	DefaultEmbedModel = "text-embedding-3-small"
	DefaultTimeout    = 60 * time.Second
)

var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

type Config struct {
	APIKey     string
	BaseURL    string
	ChatModel  string
	EmbedModel string
	// Dimensions overrides the model default; only text-embedding-3-* honour it.
	Dimensions int
	Timeout    time.Duration
}

type Client struct {
	http       *llmhttp.Client
	chatModel  string
	embedModel string
	dimensions int
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = DefaultEmbedModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	dimensions := cfg.Dimensions
	if dimensions <= 0 {
		var ok bool
		dimensions, ok = modelDimensions[cfg.EmbedModel]
		if !ok {
			return nil, fmt.Errorf("openai: unknown dimensions for embedding model %q", cfg.EmbedModel)
		}
	}

	return &Client{
		http: &llmhttp.Client{
			Provider:   providerName,
			BaseURL:    cfg.BaseURL,
			HTTPClient: &http.Client{Timeout: cfg.Timeout},
			Headers:    map[string]string{"Authorization": "Bearer " + cfg.APIKey},
		},
		chatModel:  cfg.ChatModel,
		embedModel: cfg.EmbedModel,
		dimensions: dimensions,
	}, nil
}

func (c *Client) Name() string { return providerName }

func (c *Client) ModelName() string { return c.chatModel }

func (c *Client) EmbeddingModel() string { return c.embedModel }

func (c *Client) EmbeddingDimensions() int { return c.dimensions }

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed returns vectors ordered like texts. Every input slot must be filled
// exactly once; duplicate, missing or empty entries are invalid responses.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	req := embeddingRequest{Model: c.embedModel, Input: texts}
	if strings.HasPrefix(c.embedModel, "text-embedding-3-") {
		req.Dimensions = c.dimensions
	}

	var resp embeddingResponse
	if err := c.http.PostJSON(ctx, "/embeddings", req, &resp, "embed"); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, domain.NewProviderError(domain.ProviderInvalidResponse, providerName, "embed",
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)))
	}

	out := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(out) {
			return nil, domain.NewProviderError(domain.ProviderInvalidResponse, providerName, "embed",
				fmt.Errorf("embedding index %d out of range", item.Index))
		}
		if out[item.Index] != nil {
			return nil, domain.NewProviderError(domain.ProviderInvalidResponse, providerName, "embed",
				fmt.Errorf("embedding index %d repeated", item.Index))
		}
		if len(item.Embedding) == 0 {
			return nil, domain.NewProviderError(domain.ProviderInvalidResponse, providerName, "embed",
				fmt.Errorf("embedding %d is empty", item.Index))
		}
		out[item.Index] = item.Embedding
	}
	return out, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *Client) Chat(ctx context.Context, prompt string, opts domain.ChatOptions) (domain.ChatResponse, error) {
	messages := make([]chatMessage, 0, 2)
	if opts.SystemMessage != "" {
		messages = append(messages, chatMessage{Role: "system", Content: opts.SystemMessage})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	var resp chatResponse
	err := c.http.PostJSON(ctx, "/chat/completions", chatRequest{
		Model:       c.chatModel,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}, &resp, "chat")
	if err != nil {
		return domain.ChatResponse{}, err
	}
	if len(resp.Choices) == 0 {
		return domain.ChatResponse{}, domain.NewProviderError(domain.ProviderInvalidResponse, providerName, "chat",
			fmt.Errorf("no choices in response"))
	}

	model := resp.Model
	if model == "" {
		model = c.chatModel
	}
	return domain.ChatResponse{
		Text:  strings.TrimSpace(resp.Choices[0].Message.Content),
		Model: model,
		Usage: domain.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}
