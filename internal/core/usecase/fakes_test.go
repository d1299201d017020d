package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/core/ports"
)

var testNow = time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

type transition struct {
	from, to domain.ProcessingState
	errMsg   string
}

// docRepoFake keeps documents in memory and applies transitions as
// compare-and-set, like the Postgres repository.
type docRepoFake struct {
	mu          sync.Mutex
	docs        map[string]*domain.Document
	text        map[string]string
	transitions []transition
	clock       func() time.Time

	createErr   error
	classifyErr error
}

func newDocRepoFake(docs ...*domain.Document) *docRepoFake {
	f := &docRepoFake{
		docs:  make(map[string]*domain.Document),
		text:  make(map[string]string),
		clock: func() time.Time { return testNow },
	}
	for _, doc := range docs {
		copyDoc := *doc
		f.docs[doc.ID] = &copyDoc
	}
	return f
}

func (f *docRepoFake) Create(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	return nil
}

func (f *docRepoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
	}
	copyDoc := *doc
	copyDoc.AI.ExtractedText = ""
	return &copyDoc, nil
}

func (f *docRepoFake) GetExtractedText(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[id]; !ok {
		return "", domain.ErrDocumentNotFound
	}
	return f.text[id], nil
}

func (f *docRepoFake) TransitionState(_ context.Context, id string, from, to domain.ProcessingState, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	if doc.AI.Status != from {
		return fmt.Errorf("%w: document %s is %s, expected %s", domain.ErrStateConflict, id, doc.AI.Status, from)
	}
	f.transitions = append(f.transitions, transition{from: from, to: to, errMsg: errMessage})
	doc.AI.Status = to
	doc.AI.Error = errMessage
	switch to {
	case domain.StateProcessing:
		ts := f.clock()
		doc.AI.ClaimedAt = &ts
	case domain.StatePending:
		doc.AI.ClaimedAt = nil
	case domain.StateCompleted:
		ts := f.clock()
		doc.AI.ProcessedAt = &ts
	}
	return nil
}

func (f *docRepoFake) ReclaimStale(_ context.Context, id string, claimedBefore time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	claimed := doc.UpdatedAt
	if doc.AI.ClaimedAt != nil {
		claimed = *doc.AI.ClaimedAt
	}
	if doc.AI.Status != domain.StateProcessing || claimed.After(claimedBefore) {
		return fmt.Errorf("%w: document %s is %s, claim not stale", domain.ErrStateConflict, id, doc.AI.Status)
	}
	f.transitions = append(f.transitions, transition{from: domain.StateProcessing, to: domain.StatePending})
	doc.AI.Status = domain.StatePending
	doc.AI.Error = ""
	doc.AI.ClaimedAt = nil
	return nil
}

func (f *docRepoFake) SaveExtraction(_ context.Context, id string, extraction domain.Extraction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc := f.docs[id]
	f.text[id] = extraction.Text
	doc.AI.PageCount = extraction.PageCount
	doc.AI.WordCount = extraction.WordCount
	doc.AI.CharCount = extraction.CharCount
	return nil
}

func (f *docRepoFake) SaveClassification(_ context.Context, id string, cls domain.Classification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.classifyErr != nil {
		return f.classifyErr
	}
	doc := f.docs[id]
	doc.AI.Category = cls.Category
	doc.AI.Confidence = cls.Confidence
	doc.AI.Tags = cls.Tags
	return nil
}

func (f *docRepoFake) SaveSummary(_ context.Context, id string, summary domain.Summary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc := f.docs[id]
	doc.AI.Summary = summary.Summary
	doc.AI.KeyPoints = summary.KeyPoints
	return nil
}

func (f *docRepoFake) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[id]; !ok {
		return domain.ErrDocumentNotFound
	}
	delete(f.docs, id)
	return nil
}

func (f *docRepoFake) state(id string) domain.DocumentAI {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[id].AI
}

type storageFake struct {
	mu      sync.Mutex
	objects map[string][]byte
	saveErr error
	deleted []string
}

func newStorageFake() *storageFake {
	return &storageFake{objects: make(map[string][]byte)}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) (int64, error) {
	if f.saveErr != nil {
		return 0, f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = raw
	return int64(len(raw)), nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.objects[key]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *storageFake) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

type extractorFake struct {
	err error
}

func (f *extractorFake) Extract(_ context.Context, mimeType string, data []byte) (domain.Extraction, error) {
	if f.err != nil {
		return domain.Extraction{}, f.err
	}
	if !strings.HasPrefix(mimeType, "text/") {
		return domain.Extraction{}, domain.WrapError(domain.ErrUnsupportedMIME, "extract", fmt.Errorf("mime type %q", mimeType))
	}
	return domain.NewExtraction(string(data), 1), nil
}

type chunkerFake struct {
	err error
}

// Split cuts on blank lines.
func (f *chunkerFake) Split(text string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	if strings.TrimSpace(text) == "" {
		return nil, domain.ValidationError("text is empty")
	}
	var out []string
	for _, part := range strings.Split(text, "\n\n") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out, nil
}

// providerFake embeds text as a two-dimensional vector: [1,0] when the text
// mentions "ai", [0,1] otherwise.
type providerFake struct {
	mu sync.Mutex

	dimensions     int
	embedErr       error
	shortBatch     bool
	chatReply      string
	chatErr        error
	classification domain.Classification
	classifyErr    error
	summary        domain.Summary

	embedCalls  [][]string
	chatPrompts []string
	chatOpts    []domain.ChatOptions
}

func newProviderFake() *providerFake {
	return &providerFake{
		dimensions:     2,
		chatReply:      "stub answer",
		classification: domain.Classification{Category: "technical", Confidence: 0.9, Tags: []string{"ai"}},
		summary:        domain.Summary{Summary: "short", KeyPoints: []string{"one"}},
	}
}

func (f *providerFake) vector(text string) []float32 {
	if strings.Contains(strings.ToLower(text), "ai") {
		return []float32{1, 0}
	}
	return []float32{0, 1}
}

func (f *providerFake) GenerateEmbedding(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	results, err := f.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return results[0], nil
}

func (f *providerFake) GenerateEmbeddings(_ context.Context, texts []string) ([]domain.EmbeddingResult, error) {
	f.mu.Lock()
	f.embedCalls = append(f.embedCalls, append([]string{}, texts...))
	f.mu.Unlock()
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([]domain.EmbeddingResult, 0, len(texts))
	for _, text := range texts {
		out = append(out, domain.EmbeddingResult{Vector: f.vector(text), Dimensions: 2, Model: "fake-embed"})
	}
	if f.shortBatch && len(out) > 1 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (f *providerFake) GenerateChatResponse(_ context.Context, prompt string, opts domain.ChatOptions) (domain.ChatResponse, error) {
	f.mu.Lock()
	f.chatPrompts = append(f.chatPrompts, prompt)
	f.chatOpts = append(f.chatOpts, opts)
	f.mu.Unlock()
	if f.chatErr != nil {
		return domain.ChatResponse{}, f.chatErr
	}
	return domain.ChatResponse{Text: f.chatReply, Model: "fake-chat", Usage: domain.TokenUsage{PromptTokens: 10, CompletionTokens: 5}}, nil
}

func (f *providerFake) ClassifyDocument(context.Context, string) (domain.Classification, error) {
	return f.classification, f.classifyErr
}

func (f *providerFake) SummarizeDocument(context.Context, string) (domain.Summary, error) {
	return f.summary, nil
}

func (f *providerFake) EmbeddingDimensions() int { return f.dimensions }

func (f *providerFake) ModelName() string { return "fake-chat" }

// chunkStoreFake mimics a store that filters by tenant before ranking.
type chunkStoreFake struct {
	mu        sync.Mutex
	chunks    map[string][]domain.DocumentChunk
	replaced  int
	searchErr error
	// leak returns every chunk regardless of tenant, to exercise the retriever's guard.
	leak    bool
	queries []domain.ChunkQuery
}

func newChunkStoreFake() *chunkStoreFake {
	return &chunkStoreFake{chunks: make(map[string][]domain.DocumentChunk)}
}

func (f *chunkStoreFake) ReplaceDocumentChunks(_ context.Context, documentID, tenantID string, chunks []domain.DocumentChunk) error {
	if err := domain.ValidateChunkBatch(documentID, tenantID, chunks, 0, ""); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks[documentID] = append([]domain.DocumentChunk{}, chunks...)
	f.replaced++
	return nil
}

func (f *chunkStoreFake) DeleteAll(_ context.Context, documentID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.chunks[documentID])
	delete(f.chunks, documentID)
	return n, nil
}

func (f *chunkStoreFake) ListByDocument(_ context.Context, documentID string) ([]domain.DocumentChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.DocumentChunk{}, f.chunks[documentID]...), nil
}

func (f *chunkStoreFake) Stats(_ context.Context, tenantID string) (domain.ChunkStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var stats domain.ChunkStats
	for _, chunks := range f.chunks {
		if len(chunks) == 0 || (tenantID != "" && chunks[0].TenantID != tenantID) {
			continue
		}
		stats.DocumentCount++
		stats.ChunkCount += len(chunks)
	}
	return stats, nil
}

func (f *chunkStoreFake) Search(_ context.Context, q domain.ChunkQuery) ([]domain.RetrievedMatch, error) {
	if err := domain.ValidateChunkQuery(q, 0, ""); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var out []domain.RetrievedMatch
	for documentID, chunks := range f.chunks {
		if q.DocumentID != "" && documentID != q.DocumentID {
			continue
		}
		for _, chunk := range chunks {
			if chunk.TenantID != q.TenantID && !f.leak {
				continue
			}
			var dot float64
			for i := range q.Vector {
				dot += float64(q.Vector[i]) * float64(chunk.Embedding[i])
			}
			out = append(out, domain.RetrievedMatch{Chunk: chunk, Score: dot})
		}
	}
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

type indexerFake struct {
	indexed []domain.SearchDocument
	removed []string
	err     error
}

func (f *indexerFake) IndexDocument(_ context.Context, doc domain.SearchDocument) error {
	if f.err != nil {
		return f.err
	}
	f.indexed = append(f.indexed, doc)
	return nil
}

func (f *indexerFake) RemoveDocument(_ context.Context, id string) error {
	f.removed = append(f.removed, id)
	return nil
}

type schedulerFake struct {
	mu        sync.Mutex
	scheduled []string
	err       error
}

func (f *schedulerFake) Schedule(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.scheduled = append(f.scheduled, documentID)
	return nil
}

var (
	_ ports.DocumentRepository = (*docRepoFake)(nil)
	_ ports.ObjectStorage      = (*storageFake)(nil)
	_ ports.AIProvider         = (*providerFake)(nil)
	_ ports.ChunkStore         = (*chunkStoreFake)(nil)
	_ ports.PipelineScheduler  = (*schedulerFake)(nil)
)

var errBoom = errors.New("boom")
