package usecase

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/docintel/internal/core/domain"
)

// TruncationMarker ends a fragment that was cut to fit the token budget.
const TruncationMarker = " [...truncated]"

const (
	fullInstructions = `You are a document assistant. Answer the question using only the numbered fragments below.
If the fragments do not contain the information needed, say explicitly that the documents do not contain enough information.
Cite the fragments you relied on as [Fragment N].`

	terseSystemMessage = `Answer strictly from the numbered fragments in the user message. ` +
		`If they are insufficient, say so. Cite fragments as [Fragment N].`

	conversationalInstructions = `You are a document assistant in an ongoing conversation. Use the conversation for context,
but answer only from the numbered fragments below. If they do not contain the answer, say so explicitly.
Cite the fragments you relied on as [Fragment N].`

	summarizationInstructions = `Summarize what the numbered fragments below say about the request.
Use only the fragments; if they do not cover the request, say so explicitly.
Cite the fragments you relied on as [Fragment N].`
)

// EstimateTokens approximates a token count as one token per four runes.
func EstimateTokens(s string) int {
	return (utf8.RuneCountInString(s) + 3) / 4
}

// Prompt is an assembled chat request.
type Prompt struct {
	Text          string
	SystemMessage string
	// Used is the number of matches rendered, in priority order.
	Used      int
	Truncated bool
}

func (p Prompt) Tokens() int {
	return EstimateTokens(p.SystemMessage) + EstimateTokens(p.Text)
}

type promptParts struct {
	variant  domain.PromptVariant
	question string
	history  []domain.ConversationTurn
}

func renderFragments(contents []string) string {
	var sb strings.Builder
	for i, content := range contents {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[Fragment %d]\n%s", i+1, content)
	}
	return sb.String()
}

func (p promptParts) render(contents []string) Prompt {
	fragments := renderFragments(contents)
	var sb strings.Builder
	var system string

	switch p.variant {
	case domain.PromptTerse:
		system = terseSystemMessage
		sb.WriteString(fragments)
		sb.WriteString("\n\nQuestion: ")
		sb.WriteString(p.question)
	case domain.PromptConversational:
		sb.WriteString(conversationalInstructions)
		if len(p.history) > 0 {
			sb.WriteString("\n\nConversation so far:")
			for _, turn := range p.history {
				sb.WriteString("\n")
				sb.WriteString(turnLabel(turn.Role))
				sb.WriteString(": ")
				sb.WriteString(strings.TrimSpace(turn.Content))
			}
		}
		sb.WriteString("\n\n")
		sb.WriteString(fragments)
		sb.WriteString("\n\nQuestion: ")
		sb.WriteString(p.question)
		sb.WriteString("\nAnswer:")
	case domain.PromptSummarization:
		sb.WriteString(summarizationInstructions)
		sb.WriteString("\n\n")
		sb.WriteString(fragments)
		sb.WriteString("\n\nRequest: ")
		sb.WriteString(p.question)
		sb.WriteString("\nSummary:")
	default:
		sb.WriteString(fullInstructions)
		sb.WriteString("\n\n")
		sb.WriteString(fragments)
		sb.WriteString("\n\nQuestion: ")
		sb.WriteString(p.question)
		sb.WriteString("\nAnswer:")
	}
	return Prompt{Text: sb.String(), SystemMessage: system, Used: len(contents)}
}

func turnLabel(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "assistant":
		return "Assistant"
	case "system":
		return "System"
	default:
		return "User"
	}
}

// BuildPrompt renders matches (already in priority order) into a prompt that
// fits budget tokens. Lowest-priority matches are dropped whole; if a single
// match still does not fit, its content is cut and ends with TruncationMarker.
func BuildPrompt(
	variant domain.PromptVariant,
	question string,
	history []domain.ConversationTurn,
	matches []domain.RetrievedMatch,
	budget int,
) (Prompt, error) {
	if budget <= 0 {
		return Prompt{}, domain.ValidationError("token budget must be positive, got %d", budget)
	}
	if _, ok := domain.ParsePromptVariant(string(variant)); !ok {
		return Prompt{}, domain.ValidationError("unknown prompt variant %q", variant)
	}
	parts := promptParts{variant: variant, question: strings.TrimSpace(question), history: history}

	contents := make([]string, 0, len(matches))
	for _, match := range matches {
		contents = append(contents, strings.TrimSpace(match.Chunk.Content))
	}

	if base := parts.render(nil); base.Tokens() >= budget {
		return Prompt{}, domain.ValidationError("token budget %d is consumed by instructions (%d tokens)", budget, base.Tokens())
	}

	for len(contents) > 1 && parts.render(contents).Tokens() > budget {
		contents = contents[:len(contents)-1]
	}
	prompt := parts.render(contents)
	if prompt.Tokens() <= budget {
		return prompt, nil
	}

	// One fragment left and it does not fit: cut it down.
	last := len(contents) - 1
	skeleton := append(append([]string{}, contents[:last]...), TruncationMarker)
	base := parts.render(skeleton)
	allowance := 4*budget - utf8.RuneCountInString(base.Text) - 4*EstimateTokens(base.SystemMessage)
	if allowance <= 0 {
		return Prompt{}, domain.ValidationError("token budget %d leaves no room for document fragments", budget)
	}
	contents[last] = truncateRunes(contents[last], allowance) + TruncationMarker
	prompt = parts.render(contents)
	prompt.Truncated = true
	return prompt, nil
}

// truncateRunes cuts s to at most n runes, backing off to a word boundary
// when one is close.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	cut := string(runes[:n])
	if idx := strings.LastIndexAny(cut, " \n\t"); idx > 0 && utf8.RuneCountInString(cut[:idx]) >= n*4/5 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " \n\t")
}
