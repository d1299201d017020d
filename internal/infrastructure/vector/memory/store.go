// Package memory holds an in-process chunk store used for local runs and tests.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/kirillkom/docintel/internal/core/domain"
)

type ChunkStore struct {
	mu         sync.RWMutex
	byDocument map[string][]domain.DocumentChunk
	dimensions int
	model      string
}

func NewChunkStore(dimensions int, model string) *ChunkStore {
	return &ChunkStore{
		byDocument: make(map[string][]domain.DocumentChunk),
		dimensions: dimensions,
		model:      model,
	}
}

func (s *ChunkStore) ReplaceDocumentChunks(
	_ context.Context,
	documentID, tenantID string,
	chunks []domain.DocumentChunk,
) error {
	if err := domain.ValidateChunkBatch(documentID, tenantID, chunks, s.dimensions, s.model); err != nil {
		return err
	}
	stored := make([]domain.DocumentChunk, len(chunks))
	for i, chunk := range chunks {
		chunk.Embedding = append([]float32(nil), chunk.Embedding...)
		stored[i] = chunk
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].ChunkIndex < stored[j].ChunkIndex })

	s.mu.Lock()
	s.byDocument[documentID] = stored
	s.mu.Unlock()
	return nil
}

func (s *ChunkStore) DeleteAll(_ context.Context, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.byDocument[documentID])
	delete(s.byDocument, documentID)
	return n, nil
}

func (s *ChunkStore) ListByDocument(_ context.Context, documentID string) ([]domain.DocumentChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.DocumentChunk{}, s.byDocument[documentID]...), nil
}

func (s *ChunkStore) Stats(_ context.Context, tenantID string) (domain.ChunkStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats domain.ChunkStats
	for _, chunks := range s.byDocument {
		if len(chunks) == 0 {
			continue
		}
		if tenantID != "" && chunks[0].TenantID != tenantID {
			continue
		}
		stats.DocumentCount++
		stats.ChunkCount += len(chunks)
	}
	return stats, nil
}

// Search filters to the tenant (and document) first, then ranks by cosine similarity.
func (s *ChunkStore) Search(_ context.Context, q domain.ChunkQuery) ([]domain.RetrievedMatch, error) {
	if err := domain.ValidateChunkQuery(q, s.dimensions, s.model); err != nil {
		return nil, err
	}

	s.mu.RLock()
	candidates := make([]domain.RetrievedMatch, 0)
	for documentID, chunks := range s.byDocument {
		if q.DocumentID != "" && documentID != q.DocumentID {
			continue
		}
		for _, chunk := range chunks {
			if chunk.TenantID != q.TenantID {
				continue
			}
			candidates = append(candidates, domain.RetrievedMatch{Chunk: chunk, Score: cosine(q.Vector, chunk.Embedding)})
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Chunk.DocumentID != b.Chunk.DocumentID {
			return a.Chunk.DocumentID < b.Chunk.DocumentID
		}
		return a.Chunk.ChunkIndex < b.Chunk.ChunkIndex
	})
	if len(candidates) > q.Limit {
		candidates = candidates[:q.Limit]
	}
	return candidates, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
