package domain

type EmbeddingResult struct {
	Vector     []float32
	Dimensions int
	Model      string
}

type ChatOptions struct {
	Temperature   float64
	MaxTokens     int
	SystemMessage string
}

type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type ChatResponse struct {
	Text  string
	Model string
	Usage TokenUsage
}
