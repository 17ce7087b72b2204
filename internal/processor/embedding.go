/**
 * Embedding Client for the OCR tree worker
 *
 * Generates VoyageAI voyage-3 embeddings (1024 dimensions) for recognized
 * block text so page regions can be found by semantic search.
 */

package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/adverant/nexus/ocrtree-worker/internal/storage"
)

const (
	voyageEmbeddingsURL = "https://api.voyageai.com/v1/embeddings"
	voyageModel         = "voyage-3"

	// maxEmbeddingChars approximates the VoyageAI per-input token limit
	maxEmbeddingChars = 16000
	// embeddingBatchSize is the VoyageAI limit on inputs per request
	embeddingBatchSize = 100
)

// EmbeddingClient handles VoyageAI embedding generation
type EmbeddingClient struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
}

// VoyageEmbeddingRequest represents the request to VoyageAI API
type VoyageEmbeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

// VoyageEmbeddingResponse represents the response from VoyageAI API
type VoyageEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// NewEmbeddingClient creates a new embedding client for the VoyageAI API
func NewEmbeddingClient(apiKey string) (*EmbeddingClient, error) {
	return NewEmbeddingClientWithURL(apiKey, voyageEmbeddingsURL)
}

// NewEmbeddingClientWithURL creates an embedding client against a
// VoyageAI-compatible endpoint
func NewEmbeddingClientWithURL(apiKey string, baseURL string) (*EmbeddingClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("VoyageAI API key is required")
	}
	if baseURL == "" {
		return nil, fmt.Errorf("embedding endpoint URL is required")
	}

	return &EmbeddingClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// GenerateEmbedding generates a 1024-dimensional embedding for the given text
func (e *EmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}

	embeddings, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// GenerateEmbeddingBatch generates embeddings for multiple texts, 100 per
// request. A failed batch falls back to one request per text.
func (e *EmbeddingClient) GenerateEmbeddingBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}

	allEmbeddings := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += embeddingBatchSize {
		end := i + embeddingBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := texts[i:end]
		batchEmbeddings, err := e.embed(ctx, batch)
		if err == nil {
			allEmbeddings = append(allEmbeddings, batchEmbeddings...)
			continue
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		log.Printf("Batch embedding failed for texts %d-%d: %v, falling back to individual processing", i, end-1, err)
		for j, text := range batch {
			embedding, err := e.GenerateEmbedding(ctx, text)
			if err != nil {
				return nil, fmt.Errorf("failed to generate embedding for text %d (fallback): %w", i+j, err)
			}
			allEmbeddings = append(allEmbeddings, embedding)
		}
	}

	return allEmbeddings, nil
}

// embed makes one VoyageAI request and returns the embeddings in input order
func (e *EmbeddingClient) embed(ctx context.Context, texts []string) ([][]float32, error) {
	truncated := make([]string, len(texts))
	for i, text := range texts {
		truncated[i] = truncateRunes(text, maxEmbeddingChars)
	}

	jsonData, err := json.Marshal(VoyageEmbeddingRequest{
		Input: truncated,
		Model: voyageModel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", e.apiKey))

	startTime := time.Now()
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("VoyageAI API returned status %d: %s", resp.StatusCode, string(body))
	}

	var voyageResp VoyageEmbeddingResponse
	if err := json.Unmarshal(body, &voyageResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(voyageResp.Data) != len(texts) {
		return nil, fmt.Errorf("unexpected number of embeddings: got %d, expected %d", len(voyageResp.Data), len(texts))
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range voyageResp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, fmt.Errorf("invalid embedding index: %d", data.Index)
		}
		if len(data.Embedding) != storage.EmbeddingDimensions {
			return nil, fmt.Errorf("unexpected embedding dimensions for text %d: got %d, expected %d",
				data.Index, len(data.Embedding), storage.EmbeddingDimensions)
		}
		embeddings[data.Index] = data.Embedding
	}
	for i, embedding := range embeddings {
		if embedding == nil {
			return nil, fmt.Errorf("missing embedding for text %d", i)
		}
	}

	log.Printf("VoyageAI embedding complete: %d texts, %d tokens, duration=%v",
		len(texts), voyageResp.Usage.TotalTokens, time.Since(startTime))

	return embeddings, nil
}

// truncateRunes cuts s to at most max bytes without splitting a rune
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
