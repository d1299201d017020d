package chunking

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/kirillkom/docintel/internal/core/domain"
)

func TestSplitShortTextYieldsOneChunk(t *testing.T) {
	chunks, err := NewSplitter(900, 150).Split("AI is artificial intelligence")
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(chunks) != 1 || chunks[0] != "AI is artificial intelligence" {
		t.Fatalf("unexpected chunks: %q", chunks)
	}
}

func TestSplitRejectsEmptyText(t *testing.T) {
	for _, text := range []string{"", "   \n\t\r\n  "} {
		if _, err := NewSplitter(100, 10).Split(text); !domain.IsKind(err, domain.ErrValidation) {
			t.Fatalf("Split(%q) expected validation error, got %v", text, err)
		}
	}
}

func TestSplitIsDeterministic(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 80)
	splitter := NewSplitter(200, 40)

	first, err := splitter.Split(text)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		again, _ := splitter.Split(text)
		if strings.Join(again, "\x00") != strings.Join(first, "\x00") {
			t.Fatalf("split output differs on run %d", i)
		}
	}
}

func TestSplitRespectsChunkSizeAndOverlap(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta epsilon. ", 60)
	chunks, err := NewSplitter(120, 30).Split(text)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if n := utf8.RuneCountInString(chunk); n > 120 {
			t.Fatalf("chunk %d has %d runes", i, n)
		}
		if strings.TrimSpace(chunk) == "" {
			t.Fatalf("chunk %d is blank", i)
		}
	}
	for i := 1; i < len(chunks); i++ {
		prevWords := strings.Fields(chunks[i-1])
		lastWord := prevWords[len(prevWords)-1]
		if !strings.Contains(chunks[i], lastWord) {
			t.Fatalf("chunk %d does not overlap previous chunk ending %q", i, lastWord)
		}
	}
}

func TestSplitPrefersParagraphBoundary(t *testing.T) {
	para := strings.Repeat("word ", 18)
	text := para + "\n\n" + strings.Repeat("next ", 30)
	chunks, err := NewSplitter(100, 0).Split(text)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if chunks[0] != strings.TrimSpace(para) {
		t.Fatalf("expected first chunk to end at paragraph, got %q", chunks[0])
	}
}

func TestSplitDropsWhitespaceSegments(t *testing.T) {
	text := "head" + strings.Repeat(" ", 50) + "\n\n\n\n" + strings.Repeat(" ", 50) + "tail"
	chunks, err := NewSplitter(5, 0).Split(text)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	for _, chunk := range chunks {
		if strings.TrimSpace(chunk) == "" {
			t.Fatalf("whitespace-only chunk kept: %q", chunks)
		}
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize("  a\t\tb  \r\n\r\n\r\n\r\nc  ")
	if got != "a b\n\nc" {
		t.Fatalf("Normalize() = %q", got)
	}
}

func TestNewSplitterFixesOverlap(t *testing.T) {
	s := NewSplitter(100, 150)
	if s.Overlap != 25 {
		t.Fatalf("expected overlap 25, got %d", s.Overlap)
	}
}
