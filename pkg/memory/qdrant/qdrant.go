// Package qdrant implements memory.VectorStore on a Qdrant server over gRPC.
package qdrant

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/jllopis/neuralchat/pkg/memory"
)

// DefaultBatchSize bounds the points sent in one Upsert request.
const DefaultBatchSize = 256

// idKey keeps the caller's point ID; Qdrant only accepts UUIDs and integers.
const idKey = "_neuralchat_id"

// Store talks to the Qdrant gRPC API.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	batch       int
	wait        bool
}

// Option configures a Store.
type Option func(*Store)

// WithBatchSize changes how many points go in one Upsert request.
func WithBatchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.batch = n
		}
	}
}

// WithWait makes upserts block until the points are indexed.
func WithWait(wait bool) Option {
	return func(s *Store) { s.wait = wait }
}

// New connects to the Qdrant gRPC endpoint at addr (host:port). The
// connection is lazy: an unreachable server fails the first call, not New.
func New(addr string, opts ...Option) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant: connect %s: %w", addr, err)
	}
	s := &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		batch:       DefaultBatchSize,
		wait:        true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// CreateCollection implements memory.VectorStore. An existing collection is
// kept when its vector size matches and rejected otherwise.
func (s *Store) CreateCollection(ctx context.Context, name string, vectorSize uint64) error {
	info, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name})
	if err == nil {
		if size := info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize(); size != 0 && size != vectorSize {
			return fmt.Errorf("qdrant: collection %s has vector size %d, want %d", name, size, vectorSize)
		}
		return nil
	}
	if status.Code(err) != codes.NotFound {
		return fmt.Errorf("qdrant: inspect collection %s: %w", name, err)
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{
			Params: &pb.VectorParams{Size: vectorSize, Distance: pb.Distance_Cosine},
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant: create collection %s: %w", name, err)
	}
	return nil
}

// Upsert implements memory.VectorStore.
func (s *Store) Upsert(ctx context.Context, collection string, points []memory.Point) error {
	for start := 0; start < len(points); start += s.batch {
		end := min(start+s.batch, len(points))
		batch := make([]*pb.PointStruct, 0, end-start)
		for _, p := range points[start:end] {
			batch = append(batch, toPoint(p))
		}
		_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: collection,
			Wait:           &s.wait,
			Points:         batch,
		})
		if err != nil {
			return mapError(collection, "upsert", err)
		}
	}
	return nil
}

// Search implements memory.VectorStore.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]memory.SearchResult, error) {
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(limit),
		ScoreThreshold: &scoreThreshold,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, mapError(collection, "search", err)
	}

	results := make([]memory.SearchResult, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		payload := fromPayload(r.GetPayload())
		id := pointID(r.GetId(), payload)
		results = append(results, memory.SearchResult{
			ID:    id,
			Score: r.GetScore(),
			Point: memory.Point{ID: id, Payload: payload},
		})
	}
	return results, nil
}

// Count implements memory.VectorStore.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	exact := true
	resp, err := s.points.Count(ctx, &pb.CountPoints{CollectionName: collection, Exact: &exact})
	if err != nil {
		return 0, mapError(collection, "count", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

func mapError(collection, op string, err error) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: %s", memory.ErrCollectionNotFound, collection)
	}
	return fmt.Errorf("qdrant: %s %s: %w", op, collection, err)
}

// qdrantID returns id itself when it is a UUID, and a stable name-based UUID
// otherwise.
func qdrantID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

func toPoint(p memory.Point) *pb.PointStruct {
	payload := toPayload(p.Payload)
	payload[idKey] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: p.ID}}
	return &pb.PointStruct{
		Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: qdrantID(p.ID)}},
		Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: p.Vector}}},
		Payload: payload,
	}
}

// pointID recovers the caller's ID and strips the bookkeeping key.
func pointID(id *pb.PointId, payload map[string]any) string {
	if orig, ok := payload[idKey].(string); ok {
		delete(payload, idKey)
		return orig
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

func toPayload(in map[string]any) map[string]*pb.Value {
	out := make(map[string]*pb.Value, len(in)+1)
	for k, v := range in {
		switch val := v.(type) {
		case string:
			out[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: val}}
		case bool:
			out[k] = &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: val}}
		case int:
			out[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(val)}}
		case int64:
			out[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: val}}
		case float32:
			out[k] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: float64(val)}}
		case float64:
			out[k] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: val}}
		case nil:
			out[k] = &pb.Value{Kind: &pb.Value_NullValue{}}
		default:
			out[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(val)}}
		}
	}
	return out
}

func fromPayload(in map[string]*pb.Value) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch kind := v.GetKind().(type) {
		case *pb.Value_StringValue:
			out[k] = kind.StringValue
		case *pb.Value_BoolValue:
			out[k] = kind.BoolValue
		case *pb.Value_IntegerValue:
			out[k] = kind.IntegerValue
		case *pb.Value_DoubleValue:
			out[k] = kind.DoubleValue
		case *pb.Value_NullValue:
			out[k] = nil
		}
	}
	return out
}

var _ memory.VectorStore = (*Store)(nil)
