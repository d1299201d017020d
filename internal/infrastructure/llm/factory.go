package llm

import (
	"fmt"
	"strings"

	"github.com/kirillkom/docintel/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/docintel/internal/infrastructure/llm/openai"
	"github.com/kirillkom/docintel/internal/infrastructure/llm/stub"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderStub   = "stub"
)

type ProviderConfig struct {
	Provider string

	OpenAI openai.Config
	Ollama ollama.Config

	StubDimensions int
	StubReply      string

	Gateway GatewayOptions
}

// NewProvider selects the backend once and wraps it in a Gateway.
func NewProvider(cfg ProviderConfig) (*Gateway, error) {
	backend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}
	if backend.EmbeddingDimensions() <= 0 {
		return nil, fmt.Errorf("provider %s: embedding dimensions for model %q are unknown", backend.Name(), backend.EmbeddingModel())
	}
	return NewGateway(backend, cfg.Gateway), nil
}

func newBackend(cfg ProviderConfig) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderOpenAI:
		client, err := openai.New(cfg.OpenAI)
		if err != nil {
			return nil, err
		}
		return client, nil
	case ProviderOllama:
		return ollama.New(cfg.Ollama), nil
	case ProviderStub:
		var opts []stub.Option
		if cfg.StubReply != "" {
			opts = append(opts, stub.WithChatReply(cfg.StubReply))
		}
		return stub.New(cfg.StubDimensions, opts...), nil
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
}
