/**
 * Storage Manager for the OCR tree worker
 *
 * Coordinates page persistence in PostgreSQL and the optional block index in
 * Qdrant. PostgreSQL is the system of record; the block index can be rebuilt
 * from stored pages and is only present when Qdrant is configured.
 */

package storage

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/adverant/nexus/ocrtree-worker/internal/exporter"
)

var (
	nullEscapePattern    = regexp.MustCompile(`\\u0000`)
	controlEscapePattern = regexp.MustCompile(`\\u00[01][0-9a-fA-F]`)
)

// StorageManager coordinates PostgreSQL and Qdrant operations
type StorageManager struct {
	postgres *PostgresClient
	qdrant   *QdrantClient // nil when no block index is configured
}

// NewStorageManager creates a new storage manager. An empty qdrantAddress
// disables the block index.
func NewStorageManager(postgresURL string, qdrantAddress string, qdrantCollection string) (*StorageManager, error) {
	// Initialize PostgreSQL client
	postgres, err := NewPostgresClient(postgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL client: %w", err)
	}

	sm := &StorageManager{postgres: postgres}
	if qdrantAddress == "" {
		return sm, nil
	}

	// Initialize Qdrant client
	qdrant, err := NewQdrantClient(qdrantAddress, qdrantCollection)
	if err != nil {
		postgres.Close() // Cleanup on failure
		return nil, fmt.Errorf("failed to initialize Qdrant client: %w", err)
	}
	sm.qdrant = qdrant

	return sm, nil
}

// EnsureSchema creates the PostgreSQL tables if missing
func (sm *StorageManager) EnsureSchema(ctx context.Context) error {
	return sm.postgres.EnsureSchema(ctx)
}

// StorePage persists one exported page and returns its row ID
func (sm *StorageManager) StorePage(ctx context.Context, jobID string, page *exporter.Page) (string, error) {
	return sm.postgres.StorePage(ctx, jobID, page)
}

// GetPages returns the stored pages of a job
func (sm *StorageManager) GetPages(ctx context.Context, jobID string) ([]*PageRecord, error) {
	return sm.postgres.GetPages(ctx, jobID)
}

// UpdateJobStatus updates job status in PostgreSQL
func (sm *StorageManager) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	return sm.postgres.UpdateJobStatus(ctx, update)
}

// GetJobByID retrieves job by ID
func (sm *StorageManager) GetJobByID(ctx context.Context, jobID string) (map[string]interface{}, error) {
	return sm.postgres.GetJobByID(ctx, jobID)
}

// HasIndex reports whether a block index is configured
func (sm *StorageManager) HasIndex() bool {
	return sm.qdrant != nil
}

// IndexBlocks upserts block vectors into the block index
func (sm *StorageManager) IndexBlocks(ctx context.Context, blocks []*BlockPoint) error {
	if sm.qdrant == nil {
		return fmt.Errorf("block index is not configured")
	}
	return sm.qdrant.UpsertBlocks(ctx, blocks)
}

// SearchBlocks finds blocks similar to queryVector. An empty jobID searches all jobs.
func (sm *StorageManager) SearchBlocks(ctx context.Context, queryVector []float32, limit int, jobID string) ([]*BlockMatch, error) {
	if sm.qdrant == nil {
		return nil, fmt.Errorf("block index is not configured")
	}
	return sm.qdrant.SearchBlocks(ctx, queryVector, limit, jobID)
}

// DeleteJobBlocks drops the indexed blocks of a job
func (sm *StorageManager) DeleteJobBlocks(ctx context.Context, jobID string) error {
	if sm.qdrant == nil {
		return nil
	}
	return sm.qdrant.DeleteJobBlocks(ctx, jobID)
}

// GetStats returns statistics from both systems
func (sm *StorageManager) GetStats(ctx context.Context) (map[string]interface{}, error) {
	// PostgreSQL stats
	pgStats := sm.postgres.GetStats()

	stats := map[string]interface{}{
		"postgres": map[string]interface{}{
			"max_open_connections": pgStats.MaxOpenConnections,
			"open_connections":     pgStats.OpenConnections,
			"in_use":               pgStats.InUse,
			"idle":                 pgStats.Idle,
			"wait_count":           pgStats.WaitCount,
			"wait_duration":        pgStats.WaitDuration.String(),
		},
	}

	if sm.qdrant != nil {
		qdrantStats, err := sm.qdrant.GetCollectionInfo(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get Qdrant stats: %w", err)
		}
		stats["qdrant"] = qdrantStats
	}

	return stats, nil
}

// Close closes all connections
func (sm *StorageManager) Close() error {
	var pgErr, qdErr error

	if sm.postgres != nil {
		pgErr = sm.postgres.Close()
	}

	if sm.qdrant != nil {
		qdErr = sm.qdrant.Close()
	}

	if pgErr != nil {
		return fmt.Errorf("failed to close PostgreSQL: %w", pgErr)
	}

	if qdErr != nil {
		return fmt.Errorf("failed to close Qdrant: %w", qdErr)
	}

	return nil
}

// sanitizeJSONForPostgres removes Unicode escapes PostgreSQL JSONB rejects.
// \u0000 is dropped and other control escapes become a space.
func sanitizeJSONForPostgres(jsonBytes []byte) []byte {
	result := nullEscapePattern.ReplaceAll(jsonBytes, []byte{})
	return controlEscapePattern.ReplaceAll(result, []byte(" "))
}

// stripNulls removes NUL characters, which TEXT columns cannot hold
func stripNulls(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}
