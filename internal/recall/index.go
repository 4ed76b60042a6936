package recall

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Index is the vector store the recaller searches.
type Index interface {
	Ensure(ctx context.Context, dimension uint64) error
	Upsert(ctx context.Context, id string, vector []float32, payload map[string]string) error
	Search(ctx context.Context, vector []float32, topK uint64) ([]Hit, error)
}

// Hit is one nearest-neighbor result.
type Hit struct {
	ID      string
	Score   float32
	Payload map[string]string
}

// QdrantIndex stores memory vectors in one Qdrant collection over
// gRPC.
type QdrantIndex struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
	collection  string
}

// NewQdrantIndex dials Qdrant and binds to the named collection.
func NewQdrantIndex(host string, port int, collection string) (*QdrantIndex, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect %s: %w", addr, err)
	}
	return &QdrantIndex{
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
		collection:  collection,
	}, nil
}

// Ensure creates the collection if it does not already exist.
func (q *QdrantIndex) Ensure(ctx context.Context, dimension uint64) error {
	_, err := q.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: q.collection})
	if err == nil {
		return nil
	}
	_, err = q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     dimension,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", q.collection, err)
	}
	return nil
}

// Upsert inserts or updates one memory vector.
func (q *QdrantIndex) Upsert(ctx context.Context, id string, vector []float32, payload map[string]string) error {
	payloadMap := make(map[string]*pb.Value, len(payload))
	for k, v := range payload {
		payloadMap[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
	}
	_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.collection,
		Points: []*pb.PointStruct{
			{
				Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}},
				Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vector}}},
				Payload: payloadMap,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("upsert %s: %w", q.collection, err)
	}
	return nil
}

// Search returns the top-K nearest memories.
func (q *QdrantIndex) Search(ctx context.Context, vector []float32, topK uint64) ([]Hit, error) {
	resp, err := q.points.Search(ctx, &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         vector,
		Limit:          topK,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", q.collection, err)
	}
	hits := make([]Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		payload := make(map[string]string)
		for k, v := range r.Payload {
			if sv, ok := v.Kind.(*pb.Value_StringValue); ok {
				payload[k] = sv.StringValue
			}
		}
		hits = append(hits, Hit{
			ID:      r.Id.GetUuid(),
			Score:   r.Score,
			Payload: payload,
		})
	}
	return hits, nil
}

// Close tears down the gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.conn.Close()
}
