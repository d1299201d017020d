package qdrant

import (
	"context"
	"errors"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"github.com/kirillkom/docintel/internal/core/domain"
)

type fakePoints struct {
	upserts  []*pb.UpsertPoints
	deletes  []*pb.DeletePoints
	searches []*pb.SearchPoints
	scrolls  []*pb.ScrollPoints

	upsertErr   error
	searchResp  *pb.SearchResponse
	countResp   *pb.CountResponse
	scrollPages []*pb.ScrollResponse
}

func (f *fakePoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	f.upserts = append(f.upserts, in)
	return &pb.PointsOperationResponse{}, f.upsertErr
}

func (f *fakePoints) Delete(_ context.Context, in *pb.DeletePoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	f.deletes = append(f.deletes, in)
	return &pb.PointsOperationResponse{}, nil
}

func (f *fakePoints) Search(_ context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	f.searches = append(f.searches, in)
	if f.searchResp == nil {
		return &pb.SearchResponse{}, nil
	}
	return f.searchResp, nil
}

func (f *fakePoints) Count(_ context.Context, _ *pb.CountPoints, _ ...grpc.CallOption) (*pb.CountResponse, error) {
	if f.countResp == nil {
		return &pb.CountResponse{Result: &pb.CountResult{}}, nil
	}
	return f.countResp, nil
}

func (f *fakePoints) Scroll(_ context.Context, in *pb.ScrollPoints, _ ...grpc.CallOption) (*pb.ScrollResponse, error) {
	f.scrolls = append(f.scrolls, in)
	page := len(f.scrolls) - 1
	if page >= len(f.scrollPages) {
		return &pb.ScrollResponse{}, nil
	}
	return f.scrollPages[page], nil
}

type fakeCollections struct {
	existing map[string]uint64
	created  []*pb.CreateCollection
}

func (f *fakeCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	resp := &pb.ListCollectionsResponse{}
	for name := range f.existing {
		resp.Collections = append(resp.Collections, &pb.CollectionDescription{Name: name})
	}
	return resp, nil
}

func (f *fakeCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	f.created = append(f.created, in)
	return &pb.CollectionOperationResponse{Result: true}, nil
}

func (f *fakeCollections) Get(_ context.Context, in *pb.GetCollectionInfoRequest, _ ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error) {
	return &pb.GetCollectionInfoResponse{
		Result: &pb.CollectionInfo{
			Config: &pb.CollectionConfig{
				Params: &pb.CollectionParams{
					VectorsConfig: &pb.VectorsConfig{
						Config: &pb.VectorsConfig_Params{
							Params: &pb.VectorParams{Size: f.existing[in.GetCollectionName()], Distance: pb.Distance_Cosine},
						},
					},
				},
			},
		},
	}, nil
}

func payload(tenantID, documentID string, index int64, content string) map[string]*pb.Value {
	return map[string]*pb.Value{
		keyTenantID:   stringValue(tenantID),
		keyDocumentID: stringValue(documentID),
		keyChunkIndex: {Kind: &pb.Value_IntegerValue{IntegerValue: index}},
		keyContent:    stringValue(content),
	}
}

func hasCondition(filter *pb.Filter, key, value string) bool {
	for _, cond := range filter.GetMust() {
		field := cond.GetField()
		if field.GetKey() == key && field.GetMatch().GetKeyword() == value {
			return true
		}
	}
	return false
}

func chunksFor(documentID, tenantID string, n int) []domain.DocumentChunk {
	out := make([]domain.DocumentChunk, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.DocumentChunk{
			DocumentID: documentID, TenantID: tenantID, ChunkIndex: i,
			Content: "text", Embedding: []float32{0, 1},
		})
	}
	return out
}

func TestEnsureCollectionCreatesMissingCollection(t *testing.T) {
	cols := &fakeCollections{existing: map[string]uint64{}}
	store := NewWithClients(&fakePoints{}, cols, "chunks", 768, "nomic-embed-text")

	if err := store.EnsureCollection(context.Background()); err != nil {
		t.Fatalf("EnsureCollection() error = %v", err)
	}
	if len(cols.created) != 1 {
		t.Fatalf("expected collection created once, got %d", len(cols.created))
	}
	if size := cols.created[0].GetVectorsConfig().GetParams().GetSize(); size != 768 {
		t.Fatalf("expected size 768, got %d", size)
	}
}

func TestEnsureCollectionRejectsDifferentDimensions(t *testing.T) {
	cols := &fakeCollections{existing: map[string]uint64{"chunks": 1536}}
	store := NewWithClients(&fakePoints{}, cols, "chunks", 768, "nomic-embed-text")

	err := store.EnsureCollection(context.Background())
	if !domain.IsKind(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}

func TestReplaceDocumentChunksDeletesBeforeUpsert(t *testing.T) {
	points := &fakePoints{}
	store := NewWithClients(points, &fakeCollections{}, "chunks", 2, "m")

	if err := store.ReplaceDocumentChunks(context.Background(), "doc-1", "org-1", chunksFor("doc-1", "org-1", 3)); err != nil {
		t.Fatalf("ReplaceDocumentChunks() error = %v", err)
	}
	if len(points.deletes) != 1 || len(points.upserts) != 1 {
		t.Fatalf("expected one delete and one upsert, got %d/%d", len(points.deletes), len(points.upserts))
	}
	if got := len(points.upserts[0].GetPoints()); got != 3 {
		t.Fatalf("expected 3 points, got %d", got)
	}
	first := points.upserts[0].GetPoints()[0]
	if first.GetPayload()[keyTenantID].GetStringValue() != "org-1" {
		t.Fatalf("tenant payload missing: %+v", first.GetPayload())
	}
	if first.GetId().GetUuid() != pointID("doc-1", 0) {
		t.Fatalf("expected deterministic point id")
	}
}

func TestReplaceDocumentChunksCleansUpAfterFailedUpsert(t *testing.T) {
	points := &fakePoints{upsertErr: errors.New("unavailable")}
	store := NewWithClients(points, &fakeCollections{}, "chunks", 2, "m")

	err := store.ReplaceDocumentChunks(context.Background(), "doc-1", "org-1", chunksFor("doc-1", "org-1", 2))
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(points.deletes) != 2 {
		t.Fatalf("expected compensating delete, got %d deletes", len(points.deletes))
	}
}

func TestSearchCarriesTenantFilterAndSortsStably(t *testing.T) {
	points := &fakePoints{searchResp: &pb.SearchResponse{Result: []*pb.ScoredPoint{
		{Score: 0.5, Payload: payload("org-1", "doc-b", 1, "b1")},
		{Score: 0.9, Payload: payload("org-1", "doc-a", 0, "a0")},
		{Score: 0.5, Payload: payload("org-1", "doc-a", 2, "a2")},
	}}}
	store := NewWithClients(points, &fakeCollections{}, "chunks", 2, "m")

	matches, err := store.Search(context.Background(), domain.ChunkQuery{
		TenantID: "org-1", DocumentID: "doc-a", Vector: []float32{1, 0}, Limit: 5,
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	req := points.searches[0]
	if !hasCondition(req.GetFilter(), keyTenantID, "org-1") || !hasCondition(req.GetFilter(), keyDocumentID, "doc-a") {
		t.Fatalf("filter missing conditions: %+v", req.GetFilter())
	}
	if req.GetLimit() != 5 {
		t.Fatalf("expected limit 5, got %d", req.GetLimit())
	}
	if matches[0].Chunk.Content != "a0" || matches[1].Chunk.Content != "a2" || matches[2].Chunk.Content != "b1" {
		t.Fatalf("unexpected order: %+v", matches)
	}
}

func TestSearchRejectsMissingTenant(t *testing.T) {
	points := &fakePoints{}
	store := NewWithClients(points, &fakeCollections{}, "chunks", 2, "m")

	_, err := store.Search(context.Background(), domain.ChunkQuery{Vector: []float32{1, 0}, Limit: 5})
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(points.searches) != 0 {
		t.Fatalf("search must not reach qdrant without a tenant")
	}
}

func TestStatsScrollsAllPages(t *testing.T) {
	points := &fakePoints{scrollPages: []*pb.ScrollResponse{
		{
			Result: []*pb.RetrievedPoint{
				{Payload: payload("org-1", "doc-1", 0, "")},
				{Payload: payload("org-1", "doc-1", 1, "")},
			},
			NextPageOffset: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: pointID("doc-2", 0)}},
		},
		{
			Result: []*pb.RetrievedPoint{{Payload: payload("org-1", "doc-2", 0, "")}},
		},
	}}
	store := NewWithClients(points, &fakeCollections{}, "chunks", 2, "m")

	stats, err := store.Stats(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.ChunkCount != 3 || stats.DocumentCount != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(points.scrolls) != 2 || !hasCondition(points.scrolls[0].GetFilter(), keyTenantID, "org-1") {
		t.Fatalf("expected two tenant-filtered scroll pages, got %d", len(points.scrolls))
	}
}

func TestDeleteAllReportsCount(t *testing.T) {
	points := &fakePoints{countResp: &pb.CountResponse{Result: &pb.CountResult{Count: 4}}}
	store := NewWithClients(points, &fakeCollections{}, "chunks", 2, "m")

	n, err := store.DeleteAll(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("DeleteAll() error = %v", err)
	}
	if n != 4 || len(points.deletes) != 1 {
		t.Fatalf("expected 4 deleted in one request, got %d (%d requests)", n, len(points.deletes))
	}
}
