package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/docintel/internal/core/domain"
)

const (
	maxAnalysisSnippet = 4000
	maxTags            = 10
)

func snippet(text string) string {
	if utf8.RuneCountInString(text) <= maxAnalysisSnippet {
		return text
	}
	return string([]rune(text)[:maxAnalysisSnippet])
}

func buildClassificationPrompt(text string) string {
	return `You are a document classifier.
Return a strict JSON object with keys:
category (string, one or two lowercase words), confidence (number from 0 to 1), tags (array of short lowercase strings).
No markdown, no extra keys.

Document:
` + snippet(text)
}

func buildSummaryPrompt(text string) string {
	return `You summarize documents.
Return a strict JSON object with keys:
summary (string, at most three sentences), key_points (array of short strings).
No markdown, no extra keys.

Document:
` + snippet(text)
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

func parseClassification(raw string) (domain.Classification, error) {
	var cls domain.Classification
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &cls); err != nil {
		return domain.Classification{}, fmt.Errorf("parse classification json: %w", err)
	}
	return cls, nil
}

func parseSummary(raw string) (domain.Summary, error) {
	var summary domain.Summary
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &summary); err != nil {
		return domain.Summary{}, fmt.Errorf("parse summary json: %w", err)
	}
	return summary, nil
}

func normalizeClassification(cls domain.Classification) domain.Classification {
	cls.Category = strings.ToLower(strings.TrimSpace(cls.Category))
	switch {
	case cls.Category == "":
		cls.Confidence = 0
	case cls.Confidence < 0:
		cls.Confidence = 0
	case cls.Confidence > 1:
		cls.Confidence = 1
	}

	seen := make(map[string]struct{}, len(cls.Tags))
	tags := make([]string, 0, len(cls.Tags))
	for _, tag := range cls.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
		if len(tags) == maxTags {
			break
		}
	}
	cls.Tags = tags
	return cls
}

func normalizeSummary(summary domain.Summary) domain.Summary {
	summary.Summary = strings.TrimSpace(summary.Summary)
	points := make([]string, 0, len(summary.KeyPoints))
	for _, point := range summary.KeyPoints {
		if point = strings.TrimSpace(point); point != "" {
			points = append(points, point)
		}
	}
	summary.KeyPoints = points
	return summary
}
