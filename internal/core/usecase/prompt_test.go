package usecase

import (
	"strings"
	"testing"

	"github.com/kirillkom/docintel/internal/core/domain"
)

func matchesOf(contents ...string) []domain.RetrievedMatch {
	out := make([]domain.RetrievedMatch, 0, len(contents))
	for i, content := range contents {
		out = append(out, domain.RetrievedMatch{
			Chunk: domain.DocumentChunk{DocumentID: "doc-1", TenantID: "org-1", ChunkIndex: i, Content: content},
			Score: 1 - float64(i)/10,
		})
	}
	return out
}

func TestBuildPromptNumbersFragmentsAndKeepsQuestion(t *testing.T) {
	prompt, err := BuildPrompt(domain.PromptFull, "What is AI?", nil, matchesOf("AI is artificial intelligence", "Second fact"), 1000)
	if err != nil {
		t.Fatalf("BuildPrompt() error = %v", err)
	}
	if !strings.Contains(prompt.Text, "[Fragment 1]\nAI is artificial intelligence\n\n[Fragment 2]\nSecond fact") {
		t.Fatalf("fragments not rendered in order:\n%s", prompt.Text)
	}
	if !strings.Contains(prompt.Text, "Question: What is AI?") || !strings.HasSuffix(prompt.Text, "Answer:") {
		t.Fatalf("question missing:\n%s", prompt.Text)
	}
	if prompt.Used != 2 || prompt.Truncated || prompt.SystemMessage != "" {
		t.Fatalf("unexpected prompt metadata: %+v", prompt)
	}
}

func TestBuildPromptTruncatesOversizedFragment(t *testing.T) {
	long := strings.Repeat("data ", 200)
	const budget = 150

	prompt, err := BuildPrompt(domain.PromptFull, "What does the report say?", nil, matchesOf(long), budget)
	if err != nil {
		t.Fatalf("BuildPrompt() error = %v", err)
	}
	if !prompt.Truncated || prompt.Used != 1 {
		t.Fatalf("expected one truncated fragment, got %+v", prompt)
	}
	if !strings.Contains(prompt.Text, TruncationMarker+"\n\nQuestion: What does the report say?") {
		t.Fatalf("fragment does not end with the marker:\n%s", prompt.Text)
	}
	if prompt.Tokens() > budget {
		t.Fatalf("prompt uses %d tokens, budget %d", prompt.Tokens(), budget)
	}
}

func TestBuildPromptDropsLowestPriorityFragmentsFirst(t *testing.T) {
	first := strings.Repeat("alpha ", 40)
	second := strings.Repeat("bravo ", 40)
	third := strings.Repeat("charlie ", 40)

	prompt, err := BuildPrompt(domain.PromptFull, "q", nil, matchesOf(first, second, third), 220)
	if err != nil {
		t.Fatalf("BuildPrompt() error = %v", err)
	}
	if prompt.Used != 2 || prompt.Truncated {
		t.Fatalf("expected the last fragment dropped whole, got used=%d truncated=%v", prompt.Used, prompt.Truncated)
	}
	if strings.Contains(prompt.Text, "charlie") || !strings.Contains(prompt.Text, "bravo") {
		t.Fatalf("wrong fragment dropped:\n%s", prompt.Text)
	}
	if prompt.Tokens() > 220 {
		t.Fatalf("prompt over budget: %d", prompt.Tokens())
	}
}

func TestBuildPromptRejectsUnusableBudgets(t *testing.T) {
	for _, budget := range []int{0, -5, 10} {
		if _, err := BuildPrompt(domain.PromptFull, "q", nil, matchesOf("x"), budget); !domain.IsKind(err, domain.ErrValidation) {
			t.Fatalf("budget %d: expected validation error, got %v", budget, err)
		}
	}
	if _, err := BuildPrompt("shouting", "q", nil, matchesOf("x"), 500); !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for unknown variant, got %v", err)
	}
}

func TestBuildPromptVariants(t *testing.T) {
	matches := matchesOf("AI is artificial intelligence")
	history := []domain.ConversationTurn{
		{Role: "user", Content: "Tell me about the glossary."},
		{Role: "assistant", Content: "It defines AI."},
	}

	terse, err := BuildPrompt(domain.PromptTerse, "What is AI?", nil, matches, 500)
	if err != nil {
		t.Fatalf("terse: %v", err)
	}
	if terse.SystemMessage == "" || strings.Contains(terse.Text, "You are a document assistant") {
		t.Fatalf("terse variant should carry instructions in the system message: %+v", terse)
	}

	conv, err := BuildPrompt(domain.PromptConversational, "And ML?", history, matches, 500)
	if err != nil {
		t.Fatalf("conversational: %v", err)
	}
	if !strings.Contains(conv.Text, "User: Tell me about the glossary.\nAssistant: It defines AI.") {
		t.Fatalf("history not rendered:\n%s", conv.Text)
	}

	sum, err := BuildPrompt(domain.PromptSummarization, "the glossary", nil, matches, 500)
	if err != nil {
		t.Fatalf("summarization: %v", err)
	}
	if !strings.Contains(sum.Text, "Request: the glossary") || !strings.HasSuffix(sum.Text, "Summary:") {
		t.Fatalf("summarization layout wrong:\n%s", sum.Text)
	}
}

func TestEstimateTokensRoundsUp(t *testing.T) {
	cases := map[string]int{"": 0, "abc": 1, "abcd": 1, "abcde": 2, "привет": 2}
	for in, want := range cases {
		if got := EstimateTokens(in); got != want {
			t.Fatalf("EstimateTokens(%q) = %d, want %d", in, got, want)
		}
	}
}
