package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

type Document struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id,omitempty"`
	OwnerID     string    `json:"owner_id,omitempty"`
	Filename    string    `json:"filename"`
	MimeType    string    `json:"mime_type"`
	SizeBytes   int64     `json:"size_bytes"`
	StoragePath string    `json:"storage_path"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	AI DocumentAI `json:"ai"`
}

// DocumentAI holds the fields written by the processing pipeline.
// ExtractedText is only populated when explicitly requested.
type DocumentAI struct {
	Status        ProcessingState `json:"status"`
	Category      string          `json:"category,omitempty"`
	Confidence    float64         `json:"confidence,omitempty"`
	Tags          []string        `json:"tags,omitempty"`
	Summary       string          `json:"summary,omitempty"`
	KeyPoints     []string        `json:"key_points,omitempty"`
	ExtractedText string          `json:"extracted_text,omitempty"`
	PageCount     int             `json:"page_count,omitempty"`
	WordCount     int             `json:"word_count,omitempty"`
	CharCount     int             `json:"char_count,omitempty"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty"`
	ClaimedAt     *time.Time      `json:"claimed_at,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// ClaimStale reports whether a processing claim is old enough to be taken
// back. Rows without a claim time fall back to updated_at.
func (d *Document) ClaimStale(now time.Time, staleAfter time.Duration) bool {
	if d.AI.Status != StateProcessing || staleAfter <= 0 {
		return false
	}
	claimed := d.UpdatedAt
	if d.AI.ClaimedAt != nil {
		claimed = *d.AI.ClaimedAt
	}
	return !now.Before(claimed.Add(staleAfter))
}

// Personal documents have no tenant and never enter the shared chunk corpus.
func (d *Document) Personal() bool {
	return d.TenantID == ""
}

type Extraction struct {
	Text      string `json:"text"`
	PageCount int    `json:"page_count"`
	WordCount int    `json:"word_count"`
	CharCount int    `json:"char_count"`
}

// NewExtraction trims text and derives word and character counts.
// Blank text yields a zero Extraction regardless of pages.
func NewExtraction(text string, pages int) Extraction {
	text = strings.TrimSpace(text)
	if text == "" {
		return Extraction{}
	}
	return Extraction{
		Text:      text,
		PageCount: pages,
		WordCount: len(strings.Fields(text)),
		CharCount: utf8.RuneCountInString(text),
	}
}

func (e Extraction) Empty() bool {
	return e.Text == ""
}

type Classification struct {
	Category   string   `json:"category"`
	Confidence float64  `json:"confidence"`
	Tags       []string `json:"tags"`
}

type Summary struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
}

// SearchDocument is the metadata projection pushed to the search index.
type SearchDocument struct {
	ID       string
	TenantID string
	Title    string
	MimeType string
	Category string
	Tags     []string
	Summary  string
	Content  string
}
