package qdrant

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/kirillkom/docintel/internal/core/domain"
)

const scrollPageSize = 256

// Payload keys stored on every point.
const (
	keyTenantID   = "tenant_id"
	keyDocumentID = "document_id"
	keyChunkIndex = "chunk_index"
	keyContent    = "content"
	keyCreatedAt  = "created_at"
)

var pointNamespace = uuid.MustParse("6f1c7a3e-0b5d-4f7a-9a51-2f8f0d1c9e44")

type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error)
	Scroll(ctx context.Context, in *pb.ScrollPoints, opts ...grpc.CallOption) (*pb.ScrollResponse, error)
}

type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Get(ctx context.Context, in *pb.GetCollectionInfoRequest, opts ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error)
}

// ChunkStore keeps document chunks as Qdrant points. Every read carries a
// tenant_id must-filter inside the request itself.
type ChunkStore struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
	dimensions  int
	model       string
}

// New dials Qdrant's gRPC port (usually :6334).
func New(addr, collection string, dimensions int, model string) (*ChunkStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant: dial %s: %w", addr, err)
	}
	store := NewWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), collection, dimensions, model)
	store.conn = conn
	return store, nil
}

func NewWithClients(points pointsAPI, collections collectionsAPI, collection string, dimensions int, model string) *ChunkStore {
	return &ChunkStore{
		points:      points,
		collections: collections,
		collection:  collection,
		dimensions:  dimensions,
		model:       model,
	}
}

func (s *ChunkStore) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// EnsureCollection creates the collection with cosine distance, or verifies an
// existing one was created for the configured dimensions.
func (s *ChunkStore) EnsureCollection(ctx context.Context) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("qdrant: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() != s.collection {
			continue
		}
		info, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: s.collection})
		if err != nil {
			return fmt.Errorf("qdrant: get collection %s: %w", s.collection, err)
		}
		size := int(info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())
		if size != s.dimensions {
			return &domain.DimensionMismatchError{Model: s.model, Expected: size, Actual: s.dimensions}
		}
		return nil
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(s.dimensions),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: create collection %s: %w", s.collection, err)
	}
	return nil
}

func (s *ChunkStore) ReplaceDocumentChunks(
	ctx context.Context,
	documentID, tenantID string,
	chunks []domain.DocumentChunk,
) error {
	if err := domain.ValidateChunkBatch(documentID, tenantID, chunks, s.dimensions, s.model); err != nil {
		return err
	}
	if err := s.deleteDocument(ctx, documentID); err != nil {
		return err
	}

	points := make([]*pb.PointStruct, 0, len(chunks))
	for _, chunk := range chunks {
		points = append(points, &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(chunk.DocumentID, chunk.ChunkIndex)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: chunk.Embedding},
				},
			},
			Payload: map[string]*pb.Value{
				keyTenantID:   stringValue(chunk.TenantID),
				keyDocumentID: stringValue(chunk.DocumentID),
				keyChunkIndex: {Kind: &pb.Value_IntegerValue{IntegerValue: int64(chunk.ChunkIndex)}},
				keyContent:    stringValue(chunk.Content),
				keyCreatedAt:  stringValue(chunk.CreatedAt.UTC().Format(time.RFC3339Nano)),
			},
		})
	}

	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		// Qdrant has no multi-request transaction; drop whatever landed.
		if cleanupErr := s.deleteDocument(ctx, documentID); cleanupErr != nil {
			return fmt.Errorf("qdrant: upsert %d points: %w (cleanup: %v)", len(points), err, cleanupErr)
		}
		return fmt.Errorf("qdrant: upsert %d points: %w", len(points), err)
	}
	return nil
}

func (s *ChunkStore) DeleteAll(ctx context.Context, documentID string) (int, error) {
	filter := &pb.Filter{Must: []*pb.Condition{fieldMatch(keyDocumentID, documentID)}}
	count, err := s.count(ctx, filter)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}
	if err := s.deleteDocument(ctx, documentID); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *ChunkStore) ListByDocument(ctx context.Context, documentID string) ([]domain.DocumentChunk, error) {
	filter := &pb.Filter{Must: []*pb.Condition{fieldMatch(keyDocumentID, documentID)}}
	out := make([]domain.DocumentChunk, 0)
	err := s.scroll(ctx, filter, func(payload map[string]*pb.Value) {
		out = append(out, chunkFromPayload(payload))
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func (s *ChunkStore) Stats(ctx context.Context, tenantID string) (domain.ChunkStats, error) {
	var filter *pb.Filter
	if tenantID != "" {
		filter = &pb.Filter{Must: []*pb.Condition{fieldMatch(keyTenantID, tenantID)}}
	}
	documents := make(map[string]struct{})
	chunks := 0
	err := s.scroll(ctx, filter, func(payload map[string]*pb.Value) {
		chunks++
		documents[payload[keyDocumentID].GetStringValue()] = struct{}{}
	})
	if err != nil {
		return domain.ChunkStats{}, err
	}
	return domain.ChunkStats{ChunkCount: chunks, DocumentCount: len(documents)}, nil
}

func (s *ChunkStore) Search(ctx context.Context, q domain.ChunkQuery) ([]domain.RetrievedMatch, error) {
	if err := domain.ValidateChunkQuery(q, s.dimensions, s.model); err != nil {
		return nil, err
	}

	must := []*pb.Condition{fieldMatch(keyTenantID, q.TenantID)}
	if q.DocumentID != "" {
		must = append(must, fieldMatch(keyDocumentID, q.DocumentID))
	}
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         q.Vector,
		Limit:          uint64(q.Limit),
		Filter:         &pb.Filter{Must: must},
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search: %w", err)
	}

	out := make([]domain.RetrievedMatch, 0, len(resp.GetResult()))
	for _, point := range resp.GetResult() {
		out = append(out, domain.RetrievedMatch{
			Chunk: chunkFromPayload(point.GetPayload()),
			Score: float64(point.GetScore()),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Chunk.DocumentID != out[j].Chunk.DocumentID {
			return out[i].Chunk.DocumentID < out[j].Chunk.DocumentID
		}
		return out[i].Chunk.ChunkIndex < out[j].Chunk.ChunkIndex
	})
	return out, nil
}

func (s *ChunkStore) deleteDocument(ctx context.Context, documentID string) error {
	wait := true
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{Must: []*pb.Condition{fieldMatch(keyDocumentID, documentID)}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete chunks of %s: %w", documentID, err)
	}
	return nil
}

func (s *ChunkStore) count(ctx context.Context, filter *pb.Filter) (int, error) {
	exact := true
	resp, err := s.points.Count(ctx, &pb.CountPoints{
		CollectionName: s.collection,
		Filter:         filter,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count: %w", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

func (s *ChunkStore) scroll(ctx context.Context, filter *pb.Filter, visit func(map[string]*pb.Value)) error {
	limit := uint32(scrollPageSize)
	var offset *pb.PointId
	for {
		resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: s.collection,
			Filter:         filter,
			Offset:         offset,
			Limit:          &limit,
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		})
		if err != nil {
			return fmt.Errorf("qdrant: scroll: %w", err)
		}
		for _, point := range resp.GetResult() {
			visit(point.GetPayload())
		}
		offset = resp.GetNextPageOffset()
		if offset == nil {
			return nil
		}
	}
}

func pointID(documentID string, chunkIndex int) string {
	return uuid.NewSHA1(pointNamespace, []byte(documentID+"#"+strconv.Itoa(chunkIndex))).String()
}

func chunkFromPayload(payload map[string]*pb.Value) domain.DocumentChunk {
	chunk := domain.DocumentChunk{
		DocumentID: payload[keyDocumentID].GetStringValue(),
		TenantID:   payload[keyTenantID].GetStringValue(),
		ChunkIndex: int(payload[keyChunkIndex].GetIntegerValue()),
		Content:    payload[keyContent].GetStringValue(),
	}
	if raw := payload[keyCreatedAt].GetStringValue(); raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			chunk.CreatedAt = ts
		}
	}
	return chunk
}

func stringValue(v string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}
