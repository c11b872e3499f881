// Package qdrant stores the index in a Qdrant collection over gRPC.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"wikirag/internal/domain"
)

// Storage is the Qdrant-backed vector store. It uses cosine distance and
// recreates the collection on Init.
type Storage struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	timeout     time.Duration
	batchSize   int
}

// DefaultBatchSize keeps an upsert of 1536-dimension vectors well below the
// 4 MB gRPC message limit.
const DefaultBatchSize = 64

// Config selects the Qdrant endpoint and collection.
type Config struct {
	// Addr is the gRPC address, e.g. localhost:6334.
	Addr       string
	APIKey     string
	Collection string
	// Timeout bounds each request. Zero means 15s.
	Timeout time.Duration
	// BatchSize is the number of points per upsert request. Zero means
	// DefaultBatchSize.
	BatchSize int
}

// NewStorage dials Qdrant. The connection is established lazily by gRPC.
func NewStorage(cfg Config) (*Storage, error) {
	if cfg.Collection == "" {
		return nil, errors.New("qdrant: collection name is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if cfg.APIKey != "" {
		opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
	}
	conn, err := grpc.NewClient(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("qdrant: dial %s: %w", cfg.Addr, err)
	}
	return &Storage{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  cfg.Collection,
		timeout:     timeout,
		batchSize:   batchSize,
	}, nil
}

func apiKeyInterceptor(key string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", key)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("qdrant: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == s.collection {
			if _, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: s.collection}); err != nil {
				return fmt.Errorf("qdrant: delete collection %s: %w", s.collection, err)
			}
			break
		}
	}
	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dimension),
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

func (s *Storage) Upsert(ctx context.Context, segments []domain.Segment, vectors [][]float32) error {
	if len(segments) != len(vectors) {
		return errors.New("segments and vectors length mismatch")
	}
	if len(segments) == 0 {
		return nil
	}
	points := toPoints(s.collection, segments, vectors)
	for start := 0; start < len(points); start += s.batchSize {
		end := min(start+s.batchSize, len(points))
		if err := s.upsert(ctx, points[start:end]); err != nil {
			return fmt.Errorf("qdrant: upsert points %d-%d of %d: %w", start, end, len(points), err)
		}
	}
	return nil
}

func (s *Storage) upsert(ctx context.Context, points []*pb.PointStruct) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	})
	return err
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 4
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search: %w", err)
	}
	return fromScored(resp.GetResult()), nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	exact := true
	resp, err := s.points.Count(ctx, &pb.CountPoints{CollectionName: s.collection, Exact: &exact})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count: %w", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

// Close closes the underlying gRPC connection.
func (s *Storage) Close() error {
	return s.conn.Close()
}

// pointID derives a stable UUID for a segment so re-upserts overwrite.
func pointID(collection string, seg domain.Segment) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(collection+"/"+seg.ID)).String()
}

func toPoints(collection string, segments []domain.Segment, vectors [][]float32) []*pb.PointStruct {
	points := make([]*pb.PointStruct, len(segments))
	for i, seg := range segments {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(collection, seg)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: vectors[i]},
				},
			},
			Payload: map[string]*pb.Value{
				"segment_id": {Kind: &pb.Value_StringValue{StringValue: seg.ID}},
				"position":   {Kind: &pb.Value_IntegerValue{IntegerValue: int64(seg.Position)}},
				"text":       {Kind: &pb.Value_StringValue{StringValue: seg.Text}},
			},
		}
	}
	return points
}

func fromScored(points []*pb.ScoredPoint) []domain.SearchResult {
	results := make([]domain.SearchResult, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		seg := domain.Segment{
			ID:       payload["segment_id"].GetStringValue(),
			Position: int(payload["position"].GetIntegerValue()),
			Text:     payload["text"].GetStringValue(),
		}
		results = append(results, domain.SearchResult{Segment: seg, Score: float64(p.GetScore())})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Segment.Position < results[j].Segment.Position
	})
	return results
}
