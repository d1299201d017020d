// Package stub is a deterministic, network-free provider backend for local runs and tests.
package stub

import (
	"context"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/docintel/internal/core/domain"
)

const (
	providerName     = "stub"
	DefaultModel     = "stub-chat"
	DefaultEmbed     = "stub-embed"
	DefaultReply     = "This is a stub response."
	DefaultDimension = 384
)

var categoryKeywords = map[string][]string{
	"finance":   {"invoice", "payment", "budget", "tax", "receipt"},
	"legal":     {"contract", "agreement", "clause", "liability", "court"},
	"hr":        {"employee", "salary", "vacation", "hiring", "onboarding"},
	"technical": {"api", "server", "database", "deployment", "software"},
}

type Client struct {
	dimensions int
	reply      string
}

type Option func(*Client)

// WithChatReply fixes the text returned by Chat.
func WithChatReply(reply string) Option {
	return func(c *Client) { c.reply = reply }
}

func New(dimensions int, opts ...Option) *Client {
	if dimensions <= 0 {
		dimensions = DefaultDimension
	}
	c := &Client{dimensions: dimensions, reply: DefaultReply}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return providerName }

func (c *Client) ModelName() string { return DefaultModel }

func (c *Client) EmbeddingModel() string { return DefaultEmbed }

func (c *Client) EmbeddingDimensions() int { return c.dimensions }

// Embed hashes each token into a signed bucket and L2-normalises the result,
// so texts sharing words have positive cosine similarity.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, c.embedOne(text))
	}
	return out, nil
}

func (c *Client) embedOne(text string) []float32 {
	vector := make([]float32, c.dimensions)
	tokens := tokenize(text)
	if len(tokens) == 0 {
		tokens = []string{text}
	}
	for _, token := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(token))
		sum := h.Sum64()
		idx := int(sum % uint64(c.dimensions))
		if sum&(1<<63) != 0 {
			vector[idx] -= 1
		} else {
			vector[idx] += 1
		}
	}

	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vector[0] = 1
		return vector
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vector {
		vector[i] *= scale
	}
	return vector
}

func (c *Client) Chat(_ context.Context, prompt string, _ domain.ChatOptions) (domain.ChatResponse, error) {
	return domain.ChatResponse{
		Text:  c.reply,
		Model: DefaultModel,
		Usage: domain.TokenUsage{
			PromptTokens:     len([]rune(prompt)) / 4,
			CompletionTokens: len([]rune(c.reply)) / 4,
		},
	}, nil
}

func (c *Client) ClassifyDocument(_ context.Context, text string) (domain.Classification, error) {
	tokens := tokenize(text)
	counts := make(map[string]int, len(tokens))
	for _, token := range tokens {
		counts[token]++
	}

	best, bestHits := "general", 0
	categories := make([]string, 0, len(categoryKeywords))
	for category := range categoryKeywords {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	for _, category := range categories {
		hits := 0
		for _, keyword := range categoryKeywords[category] {
			hits += counts[keyword]
		}
		if hits > bestHits {
			best, bestHits = category, hits
		}
	}

	confidence := 0.3
	if bestHits > 0 {
		confidence = math.Min(0.6+0.1*float64(bestHits), 0.95)
	}
	return domain.Classification{
		Category:   best,
		Confidence: confidence,
		Tags:       topTokens(counts, 3),
	}, nil
}

func (c *Client) SummarizeDocument(_ context.Context, text string) (domain.Summary, error) {
	sentences := splitSentences(text)
	summary := domain.Summary{KeyPoints: []string{}}
	if len(sentences) == 0 {
		return summary, nil
	}
	n := min(2, len(sentences))
	summary.Summary = strings.Join(sentences[:n], " ")
	summary.KeyPoints = append(summary.KeyPoints, sentences[:min(3, len(sentences))]...)
	return summary, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func topTokens(counts map[string]int, n int) []string {
	candidates := make([]string, 0, len(counts))
	for token := range counts {
		if len([]rune(token)) > 3 {
			candidates = append(candidates, token)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if counts[candidates[i]] != counts[candidates[j]] {
			return counts[candidates[i]] > counts[candidates[j]]
		}
		return candidates[i] < candidates[j]
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}

func splitSentences(text string) []string {
	var out []string
	var current strings.Builder
	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			if s := strings.TrimSpace(current.String()); s != "" {
				out = append(out, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		out = append(out, s)
	}
	return out
}
