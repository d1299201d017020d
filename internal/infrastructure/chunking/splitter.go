package chunking

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/kirillkom/docintel/internal/core/domain"
)

var (
	horizontalSpace = regexp.MustCompile(`[ \t\f\v]+`)
	blankLines      = regexp.MustCompile(`\n{3,}`)
)

// Splitter cuts text into windows of ChunkSize runes, repeating Overlap runes
// between neighbours. Cuts prefer paragraph, then sentence, then word
// boundaries found in the last fifth of a window.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 900
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *Splitter) Split(text string) ([]string, error) {
	normalized := Normalize(text)
	if normalized == "" {
		return nil, domain.ValidationError("cannot chunk empty text")
	}

	runes := []rune(normalized)
	if len(runes) <= s.ChunkSize {
		return []string{normalized}, nil
	}

	out := make([]string, 0, len(runes)/(s.ChunkSize-s.Overlap)+1)
	for start := 0; start < len(runes); {
		end := start + s.ChunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = s.cutPoint(runes, start, end)
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}
		start = s.nextStart(runes, start, end)
	}
	return out, nil
}

func (s *Splitter) cutPoint(runes []rune, start, end int) int {
	floor := start + s.ChunkSize*4/5
	if floor <= start {
		floor = start + 1
	}

	for i := end; i > floor; i-- {
		if runes[i-1] == '\n' && i >= 2 && runes[i-2] == '\n' {
			return i
		}
	}
	for i := end; i > floor; i-- {
		if isSentenceEnd(runes[i-1]) && i < len(runes) && unicode.IsSpace(runes[i]) {
			return i
		}
	}
	for i := end; i > floor; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}

func (s *Splitter) nextStart(runes []rune, start, end int) int {
	next := end - s.Overlap
	if next <= start {
		return end
	}
	// Do not begin the overlap in the middle of a word.
	for next < end && !unicode.IsSpace(runes[next-1]) {
		next++
	}
	return next
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// Normalize unifies line endings, collapses horizontal whitespace and
// limits blank lines to one.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(horizontalSpace.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
