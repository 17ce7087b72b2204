/**
 * Qdrant Vector Database Client for the OCR tree worker
 *
 * Stores one point per recognized block so page regions can be found by
 * semantic search. Uses Qdrant's native gRPC API.
 */

package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// EmbeddingDimensions is the vector size of the block index (VoyageAI voyage-3)
const EmbeddingDimensions = 1024

// blockNamespace derives stable point IDs so reprocessing a job overwrites its points
var blockNamespace = uuid.MustParse("6f1c2f7e-5d1a-4c0b-9a57-0c7d1f3b8e21")

// QdrantClient handles vector database operations
type QdrantClient struct {
	client           qdrant.PointsClient
	collectionClient qdrant.CollectionsClient
	conn             *grpc.ClientConn
	collectionName   string
}

// BlockPoint is one indexed block
type BlockPoint struct {
	ID         string
	JobID      string
	PageNumber int
	BlockIndex int
	Text       string
	Confidence float64
	BBox       [4]int
	Vector     []float32
}

// BlockMatch is a search hit
type BlockMatch struct {
	BlockPoint
	Score float32
}

// BlockPointID returns the deterministic point ID of a block
func BlockPointID(jobID string, pageNumber, blockIndex int) string {
	return uuid.NewSHA1(blockNamespace, []byte(fmt.Sprintf("%s/%d/%d", jobID, pageNumber, blockIndex))).String()
}

// NewQdrantClient creates a new Qdrant client
func NewQdrantClient(address string, collectionName string) (*QdrantClient, error) {
	if address == "" {
		return nil, fmt.Errorf("qdrant address is required")
	}

	if collectionName == "" {
		return nil, fmt.Errorf("collection name is required")
	}

	// Connect to Qdrant using gRPC
	conn, err := grpc.Dial(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}

	qc := &QdrantClient{
		client:           qdrant.NewPointsClient(conn),
		collectionClient: qdrant.NewCollectionsClient(conn),
		conn:             conn,
		collectionName:   collectionName,
	}

	// Ensure collection exists
	if err := qc.ensureCollection(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}

	return qc, nil
}

// ensureCollection creates the collection if it doesn't exist
func (q *QdrantClient) ensureCollection(ctx context.Context) error {
	listResp, err := q.collectionClient.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, col := range listResp.Collections {
		if col.Name == q.collectionName {
			return nil
		}
	}

	_, err = q.collectionClient.Create(ctx, &qdrant.CreateCollection{
		CollectionName: q.collectionName,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     EmbeddingDimensions,
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

// UpsertBlocks stores or updates block points in one request
func (q *QdrantClient) UpsertBlocks(ctx context.Context, blocks []*BlockPoint) error {
	if len(blocks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(blocks))
	for _, b := range blocks {
		if len(b.Vector) != EmbeddingDimensions {
			return fmt.Errorf("invalid vector dimensions for block %d of page %d: expected %d, got %d",
				b.BlockIndex, b.PageNumber, EmbeddingDimensions, len(b.Vector))
		}
		if b.ID == "" {
			b.ID = BlockPointID(b.JobID, b.PageNumber, b.BlockIndex)
		}

		points = append(points, &qdrant.PointStruct{
			Id: &qdrant.PointId{
				PointIdOptions: &qdrant.PointId_Uuid{Uuid: b.ID},
			},
			Vectors: &qdrant.Vectors{
				VectorsOptions: &qdrant.Vectors_Vector{
					Vector: &qdrant.Vector{Data: b.Vector},
				},
			},
			Payload: blockPayload(b),
		})
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collectionName,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %d blocks: %w", len(points), err)
	}

	return nil
}

// SearchBlocks performs similarity search, optionally restricted to one job
func (q *QdrantClient) SearchBlocks(ctx context.Context, queryVector []float32, limit int, jobID string) ([]*BlockMatch, error) {
	if len(queryVector) != EmbeddingDimensions {
		return nil, fmt.Errorf("invalid query vector dimensions: expected %d, got %d", EmbeddingDimensions, len(queryVector))
	}

	if limit <= 0 {
		limit = 10
	}

	searchReq := &qdrant.SearchPoints{
		CollectionName: q.collectionName,
		Vector:         queryVector,
		Limit:          uint64(limit),
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true},
		},
	}
	if jobID != "" {
		searchReq.Filter = jobFilter(jobID)
	}

	results, err := q.client.Search(ctx, searchReq)
	if err != nil {
		return nil, fmt.Errorf("failed to search blocks: %w", err)
	}

	matches := make([]*BlockMatch, 0, len(results.Result))
	for _, result := range results.Result {
		match := &BlockMatch{Score: result.Score}
		match.BlockPoint = blockFromPayload(result.Payload)
		if result.Id != nil {
			match.ID = result.Id.GetUuid()
		}
		matches = append(matches, match)
	}

	return matches, nil
}

// DeleteJobBlocks removes every point of a job
func (q *QdrantClient) DeleteJobBlocks(ctx context.Context, jobID string) error {
	if jobID == "" {
		return fmt.Errorf("job ID is required")
	}

	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collectionName,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: jobFilter(jobID),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete blocks of job %s: %w", jobID, err)
	}

	return nil
}

// GetCollectionInfo returns collection statistics
func (q *QdrantClient) GetCollectionInfo(ctx context.Context) (map[string]interface{}, error) {
	info, err := q.collectionClient.Get(ctx, &qdrant.GetCollectionInfoRequest{
		CollectionName: q.collectionName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get collection info: %w", err)
	}

	stats := map[string]interface{}{
		"collection_name": q.collectionName,
		"vectors_count":   info.Result.GetVectorsCount(),
		"points_count":    info.Result.GetPointsCount(),
		"indexed_vectors": info.Result.GetIndexedVectorsCount(),
		"status":          info.Result.GetStatus().String(),
	}

	return stats, nil
}

// Close closes the Qdrant client connection
func (q *QdrantClient) Close() error {
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

func jobFilter(jobID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: "job_id",
						Match: &qdrant.Match{
							MatchValue: &qdrant.Match_Keyword{Keyword: jobID},
						},
					},
				},
			},
		},
	}
}

func blockPayload(b *BlockPoint) map[string]*qdrant.Value {
	bbox := make([]*qdrant.Value, len(b.BBox))
	for i, v := range b.BBox {
		bbox[i] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(v)}}
	}

	return map[string]*qdrant.Value{
		"job_id":      {Kind: &qdrant.Value_StringValue{StringValue: b.JobID}},
		"page_number": {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(b.PageNumber)}},
		"block_index": {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(b.BlockIndex)}},
		"text":        {Kind: &qdrant.Value_StringValue{StringValue: b.Text}},
		"confidence":  {Kind: &qdrant.Value_DoubleValue{DoubleValue: b.Confidence}},
		"bbox":        {Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: bbox}}},
	}
}

func blockFromPayload(payload map[string]*qdrant.Value) BlockPoint {
	var b BlockPoint
	b.JobID = payload["job_id"].GetStringValue()
	b.PageNumber = int(payload["page_number"].GetIntegerValue())
	b.BlockIndex = int(payload["block_index"].GetIntegerValue())
	b.Text = payload["text"].GetStringValue()
	b.Confidence = payload["confidence"].GetDoubleValue()
	if list := payload["bbox"].GetListValue(); list != nil {
		for i, v := range list.GetValues() {
			if i < len(b.BBox) {
				b.BBox[i] = int(v.GetIntegerValue())
			}
		}
	}
	return b
}
