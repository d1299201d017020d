package ollama

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/infrastructure/llm/llmhttp"
)

const providerName = "ollama"

var knownDimensions = map[string]int{
	"nomic-embed-text":  768,
	"mxbai-embed-large": 1024,
	"all-minilm":        384,
	"bge-m3":            1024,
}

type Config struct {
	BaseURL         string
	GenModel        string
	EmbedModel      string
	EmbedDimensions int
	Timeout         time.Duration
}

// Client talks to a self-hosted Ollama server.
type Client struct {
	http       *llmhttp.Client
	genModel   string
	embedModel string
	dimensions int
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	dimensions := cfg.EmbedDimensions
	if dimensions <= 0 {
		dimensions = knownDimensions[strings.Split(cfg.EmbedModel, ":")[0]]
	}
	return &Client{
		http: &llmhttp.Client{
			Provider:   providerName,
			BaseURL:    strings.TrimRight(cfg.BaseURL, "/"),
			HTTPClient: &http.Client{Timeout: timeout},
		},
		genModel:   cfg.GenModel,
		embedModel: cfg.EmbedModel,
		dimensions: dimensions,
	}
}

func (c *Client) Name() string { return providerName }

func (c *Client) ModelName() string { return c.genModel }

func (c *Client) EmbeddingModel() string { return c.embedModel }

func (c *Client) EmbeddingDimensions() int { return c.dimensions }

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	request := map[string]any{
		"model": c.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := c.http.PostJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	return response.Embeddings, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message         chatMessage `json:"message"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

func (c *Client) Chat(ctx context.Context, prompt string, opts domain.ChatOptions) (domain.ChatResponse, error) {
	messages := make([]chatMessage, 0, 2)
	if opts.SystemMessage != "" {
		messages = append(messages, chatMessage{Role: "system", Content: opts.SystemMessage})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	options := map[string]any{"temperature": opts.Temperature}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}

	var response chatResponse
	err := c.http.PostJSON(ctx, "/api/chat", chatRequest{
		Model:    c.genModel,
		Messages: messages,
		Stream:   false,
		Options:  options,
	}, &response, "chat")
	if err != nil {
		return domain.ChatResponse{}, err
	}
	return domain.ChatResponse{
		Text:  strings.TrimSpace(response.Message.Content),
		Model: c.genModel,
		Usage: domain.TokenUsage{
			PromptTokens:     response.PromptEvalCount,
			CompletionTokens: response.EvalCount,
		},
	}, nil
}
