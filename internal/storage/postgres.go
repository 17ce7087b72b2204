/**
 * PostgreSQL Client for the OCR tree worker
 *
 * Handles job status persistence and storage of exported page trees.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/lib/pq"

	"github.com/adverant/nexus/ocrtree-worker/internal/exporter"
)

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// JobUpdate represents a job status update
type JobUpdate struct {
	JobID            string
	Status           string
	Confidence       float64 // 0-100
	ProcessingTimeMs int64
	PageCount        int
	SkippedPages     []int
	ErrorCode        string
	ErrorMessage     string
	Metadata         map[string]interface{}
}

// PageRecord is one stored page document
type PageRecord struct {
	ID         string
	JobID      string
	PageNumber int
	Text       string
	Confidence float64
	BlockCount int
	WordCount  int
	Page       *exporter.Page
	CreatedAt  time.Time
}

const schemaDDL = `
	CREATE SCHEMA IF NOT EXISTS ocrtree;

	CREATE TABLE IF NOT EXISTS ocrtree.processing_jobs (
		id                 UUID PRIMARY KEY,
		user_id            TEXT NOT NULL DEFAULT 'anonymous',
		filename           TEXT NOT NULL DEFAULT 'unknown',
		mime_type          TEXT,
		status             TEXT NOT NULL,
		confidence         NUMERIC(5,2),
		processing_time_ms BIGINT,
		page_count         INTEGER,
		skipped_pages      INTEGER[],
		error_code         TEXT,
		error_message      TEXT,
		metadata           JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS ocrtree.page_documents (
		id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		job_id      UUID NOT NULL,
		page_number INTEGER NOT NULL,
		text        TEXT NOT NULL,
		confidence  NUMERIC(5,2) NOT NULL,
		block_count INTEGER NOT NULL,
		word_count  INTEGER NOT NULL,
		tree        JSONB NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (job_id, page_number)
	);
`

// sanitizeConfidence clamps confidence to [0, 100] and rounds it to 2
// decimal places to fit NUMERIC(5,2)
func sanitizeConfidence(confidence float64) float64 {
	if math.IsNaN(confidence) || confidence < 0.0 {
		return 0.0
	}
	if confidence > 100.0 {
		return 100.0
	}
	return math.Round(confidence*100) / 100
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	// Connect to database
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// EnsureSchema creates the ocrtree schema and tables if missing
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// UpdateJobStatus upserts the job row
func (p *PostgresClient) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	sanitizedConfidence := sanitizeConfidence(update.Confidence)

	// Convert metadata to JSONB
	metadataJSON, err := json.Marshal(update.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	metadataJSON = sanitizeJSONForPostgres(metadataJSON)

	// UPSERT so the worker can create the row if the producer did not
	query := `
		INSERT INTO ocrtree.processing_jobs (
			id, user_id, filename, mime_type,
			status, confidence, processing_time_ms, page_count, skipped_pages,
			error_code, error_message, metadata,
			created_at, updated_at
		) VALUES (
			$1::uuid, COALESCE(NULLIF($12, ''), 'anonymous'), COALESCE(NULLIF($10, ''), 'unknown'),
			NULLIF($11, ''),
			$2, NULLIF($3::NUMERIC(5,2), 0), NULLIF($4, 0), NULLIF($5, 0), $6,
			NULLIF($7, ''), NULLIF($8, ''),
			COALESCE($9::jsonb, '{}'::jsonb),
			NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			confidence = COALESCE(EXCLUDED.confidence, ocrtree.processing_jobs.confidence),
			processing_time_ms = COALESCE(EXCLUDED.processing_time_ms, ocrtree.processing_jobs.processing_time_ms),
			page_count = COALESCE(EXCLUDED.page_count, ocrtree.processing_jobs.page_count),
			skipped_pages = COALESCE(EXCLUDED.skipped_pages, ocrtree.processing_jobs.skipped_pages),
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			metadata = COALESCE(EXCLUDED.metadata, ocrtree.processing_jobs.metadata),
			mime_type = COALESCE(EXCLUDED.mime_type, ocrtree.processing_jobs.mime_type),
			updated_at = NOW()
		RETURNING id
	`

	var filename, mimeType, userID string
	if update.Metadata != nil {
		if fn, ok := update.Metadata["filename"].(string); ok {
			filename = fn
		}
		if mt, ok := update.Metadata["mimeType"].(string); ok {
			mimeType = mt
		}
		if uid, ok := update.Metadata["userId"].(string); ok {
			userID = uid
		}
	}

	var skipped interface{}
	if update.SkippedPages != nil {
		skipped = pq.Array(toInt64s(update.SkippedPages))
	}

	var returnedID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		update.JobID,            // $1 - id
		update.Status,           // $2 - status
		sanitizedConfidence,     // $3 - confidence
		update.ProcessingTimeMs, // $4 - processing_time_ms
		update.PageCount,        // $5 - page_count
		skipped,                 // $6 - skipped_pages
		update.ErrorCode,        // $7 - error_code
		update.ErrorMessage,     // $8 - error_message
		metadataJSON,            // $9 - metadata
		filename,                // $10 - filename
		mimeType,                // $11 - mime_type
		userID,                  // $12 - user_id
	).Scan(&returnedID)

	if err == sql.ErrNoRows {
		return fmt.Errorf("job not found: %s", update.JobID)
	}

	if err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s, confidence=%.2f): %w",
			update.JobID, update.Status, sanitizedConfidence, err)
	}

	return nil
}

// StorePage upserts one exported page of a job and returns the row ID
func (p *PostgresClient) StorePage(ctx context.Context, jobID string, page *exporter.Page) (string, error) {
	if jobID == "" {
		return "", fmt.Errorf("job ID is required")
	}
	if page == nil {
		return "", fmt.Errorf("page is required")
	}

	treeJSON, err := json.Marshal(page)
	if err != nil {
		return "", fmt.Errorf("failed to marshal page tree: %w", err)
	}
	treeJSON = sanitizeJSONForPostgres(treeJSON)

	query := `
		INSERT INTO ocrtree.page_documents (
			job_id, page_number, text, confidence, block_count, word_count, tree, created_at
		) VALUES ($1::uuid, $2, $3, $4, $5, $6, $7::jsonb, NOW())
		ON CONFLICT (job_id, page_number) DO UPDATE SET
			text = EXCLUDED.text,
			confidence = EXCLUDED.confidence,
			block_count = EXCLUDED.block_count,
			word_count = EXCLUDED.word_count,
			tree = EXCLUDED.tree,
			created_at = NOW()
		RETURNING id
	`

	var id string
	err = p.db.QueryRowContext(
		ctx,
		query,
		jobID,
		page.PageNumber,
		stripNulls(page.Text),
		sanitizeConfidence(page.Confidence),
		len(page.Blocks),
		page.WordCount,
		treeJSON,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to store page %d: %w", page.PageNumber, err)
	}

	return id, nil
}

// GetPages returns the stored pages of a job ordered by page number
func (p *PostgresClient) GetPages(ctx context.Context, jobID string) ([]*PageRecord, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	query := `
		SELECT id, job_id, page_number, text, confidence, block_count, word_count, tree, created_at
		FROM ocrtree.page_documents
		WHERE job_id = $1::uuid
		ORDER BY page_number
	`

	rows, err := p.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer rows.Close()

	var records []*PageRecord
	for rows.Next() {
		var rec PageRecord
		var treeJSON []byte
		if err := rows.Scan(
			&rec.ID, &rec.JobID, &rec.PageNumber, &rec.Text, &rec.Confidence,
			&rec.BlockCount, &rec.WordCount, &treeJSON, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}

		rec.Page = &exporter.Page{}
		if err := json.Unmarshal(treeJSON, rec.Page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal page %d tree: %w", rec.PageNumber, err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pages: %w", err)
	}

	return records, nil
}

// GetJobByID retrieves a job by ID
func (p *PostgresClient) GetJobByID(ctx context.Context, jobID string) (map[string]interface{}, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	query := `
		SELECT
			id,
			user_id,
			filename,
			mime_type,
			status,
			confidence,
			processing_time_ms,
			page_count,
			skipped_pages,
			error_code,
			error_message,
			metadata,
			created_at,
			updated_at
		FROM ocrtree.processing_jobs
		WHERE id = $1::uuid
	`

	var (
		id, userID, filename    string
		mimeType, status        sql.NullString
		confidence              sql.NullFloat64
		processingTimeMs        sql.NullInt64
		pageCount               sql.NullInt64
		skippedPages            pq.Int64Array
		errorCode, errorMessage sql.NullString
		metadataJSON            []byte
		createdAt, updatedAt    time.Time
	)

	err := p.db.QueryRowContext(ctx, query, jobID).Scan(
		&id, &userID, &filename, &mimeType, &status,
		&confidence, &processingTimeMs, &pageCount, &skippedPages,
		&errorCode, &errorMessage,
		&metadataJSON, &createdAt, &updatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	// Parse metadata
	var metadata map[string]interface{}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	// Build result map
	result := map[string]interface{}{
		"id":           id,
		"userId":       userID,
		"filename":     filename,
		"status":       status.String,
		"skippedPages": []int64(skippedPages),
		"createdAt":    createdAt,
		"updatedAt":    updatedAt,
		"metadata":     metadata,
	}

	if mimeType.Valid {
		result["mimeType"] = mimeType.String
	}
	if confidence.Valid {
		result["confidence"] = confidence.Float64
	}
	if processingTimeMs.Valid {
		result["processingTimeMs"] = processingTimeMs.Int64
	}
	if pageCount.Valid {
		result["pageCount"] = pageCount.Int64
	}
	if errorCode.Valid {
		result["errorCode"] = errorCode.String
	}
	if errorMessage.Valid {
		result["errorMessage"] = errorMessage.String
	}

	return result, nil
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}

func toInt64s(in []int) []int64 {
	out := make([]int64, len(in))
	for i, v := range in {
		out[i] = int64(v)
	}
	return out
}
