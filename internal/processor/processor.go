/**
 * Page Processor for the OCR tree worker
 *
 * Runs one job through the recognition pipeline:
 * - load page images (inline pages, file buffer or URL download with retry)
 * - recognize each page, skipping pages the engine fails on
 * - export the page tree and release the engine result
 * - store pages, then embed and index block text when configured
 * - derive the document layout from the exported pages
 */

package processor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	werrors "github.com/adverant/nexus/ocrtree-worker/internal/errors"
	"github.com/adverant/nexus/ocrtree-worker/internal/exporter"
	"github.com/adverant/nexus/ocrtree-worker/internal/storage"
)

// DocumentProcessorInterface defines the interface for document processing
type DocumentProcessorInterface interface {
	ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error)
	UpdateJobStatus(ctx context.Context, jobID string, status string, progress int, metadata map[string]interface{}) error
}

// ResultStore persists exported pages and job status
type ResultStore interface {
	StorePage(ctx context.Context, jobID string, page *exporter.Page) (string, error)
	UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error
}

// BlockIndex stores block vectors for semantic search
type BlockIndex interface {
	IndexBlocks(ctx context.Context, blocks []*storage.BlockPoint) error
	DeleteJobBlocks(ctx context.Context, jobID string) error
}

// Embedder turns block texts into vectors
type Embedder interface {
	GenerateEmbeddingBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	Recognizer  Recognizer
	Store       ResultStore
	Index       BlockIndex // optional, needs Embedder
	Embedder    Embedder   // optional, needs Index
	MaxFileSize int64
	HTTPClient  *http.Client // optional, used for URL downloads
}

// PageImage is one page to recognize
type PageImage struct {
	Data     []byte
	Rotation float64 // degrees
	Skew     float64 // degrees
}

// ProcessRequest represents a page processing request.
// Pages takes precedence over FileBuffer, which takes precedence over FileURL.
type ProcessRequest struct {
	JobID      string
	UserID     string
	Filename   string
	MimeType   string
	FileSize   int64
	FileURL    string
	FileBuffer []byte
	Pages      []PageImage
	Rotation   float64 // applied to FileBuffer/FileURL input
	Skew       float64
	Metadata   map[string]interface{}
}

// ProcessResult represents the processing result
type ProcessResult struct {
	Pages            []*exporter.Page
	SkippedPages     []int
	Confidence       float64 // mean page confidence, 0-100
	WordCount        int
	BlocksIndexed    int
	Layout           *LayoutResult
	ProcessingTimeMs int64
}

// DocumentProcessor handles page processing
type DocumentProcessor struct {
	config         *ProcessorConfig
	recognizer     Recognizer
	store          ResultStore
	index          BlockIndex
	embedder       Embedder
	httpClient     *http.Client
	layoutAnalyzer *LayoutAnalyzer

	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewDocumentProcessor creates a new document processor
func NewDocumentProcessor(cfg *ProcessorConfig) (*DocumentProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if cfg.Recognizer == nil {
		return nil, fmt.Errorf("recognizer is required")
	}

	if cfg.Store == nil {
		return nil, fmt.Errorf("result store is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Minute}
	}

	p := &DocumentProcessor{
		config:         cfg,
		recognizer:     cfg.Recognizer,
		store:          cfg.Store,
		httpClient:     httpClient,
		layoutAnalyzer: NewLayoutAnalyzer(),
		initialBackoff: time.Second,
		maxBackoff:     32 * time.Second,
	}

	if cfg.Index != nil && cfg.Embedder != nil {
		p.index = cfg.Index
		p.embedder = cfg.Embedder
	} else {
		log.Printf("WARNING: Block index or embedder not configured. Blocks will not be searchable.")
	}

	return p, nil
}

// ProcessDocument recognizes, exports and stores every page of a job
func (p *DocumentProcessor) ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	startTime := time.Now()
	log.Printf("[Job %s] Starting page processing pipeline", req.JobID)

	// Step 1: Load page images
	pages, err := p.loadPages(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to load file: %w", err)
	}
	log.Printf("[Job %s] Step 1: Loaded %d page image(s)", req.JobID, len(pages))

	// Step 2: Every page must be an image the engine can read
	for i, page := range pages {
		mimeType := detectMimeTypeFromMagicBytes(page.Data)
		if !isImageMimeType(mimeType) {
			if mimeType == "" {
				mimeType = req.MimeType
			}
			log.Printf("[Job %s] Page %d is not a supported image (mime: %q)", req.JobID, i+1, mimeType)
			return nil, werrors.NewUnsupportedFormatError(req.JobID, mimeType)
		}
		if i == 0 && (req.MimeType == "" || req.MimeType == "application/octet-stream") {
			req.MimeType = mimeType
		}
	}

	// Step 3: Recognize, export and store page by page
	result := &ProcessResult{
		Pages:        []*exporter.Page{},
		SkippedPages: []int{},
	}

	var lastErr error
	var confSum float64
	for i, image := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pageNumber := i + 1
		page, err := p.recognizePage(ctx, req.JobID, pageNumber, image)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = err
			log.Printf("[Job %s] WARNING: %v", req.JobID, werrors.NewPageSkippedError(req.JobID, pageNumber, err))
			result.SkippedPages = append(result.SkippedPages, pageNumber)
			continue
		}

		if _, err := p.store.StorePage(ctx, req.JobID, page); err != nil {
			return nil, werrors.NewStorageFailedError(req.JobID, err)
		}

		log.Printf("[Job %s] Page %d: blocks=%d, words=%d, confidence=%.2f",
			req.JobID, pageNumber, len(page.Blocks), page.WordCount, page.Confidence)

		result.Pages = append(result.Pages, page)
		result.WordCount += page.WordCount
		confSum += page.Confidence
	}

	if len(result.Pages) == 0 {
		return nil, werrors.NewOCRFailedError(req.JobID, len(pages), lastErr)
	}
	result.Confidence = confSum / float64(len(result.Pages))

	// Step 4: Embed and index block text (non-fatal)
	if p.index != nil && p.embedder != nil {
		indexed, err := p.indexBlocks(ctx, req.JobID, result.Pages)
		if err != nil {
			log.Printf("[Job %s] WARNING: %v", req.JobID, werrors.NewIndexFailedError(req.JobID, indexed, err))
		} else {
			result.BlocksIndexed = indexed
			log.Printf("[Job %s] Step 4: Indexed %d blocks", req.JobID, indexed)
		}
	}

	// Step 5: Layout analysis
	result.Layout = p.layoutAnalyzer.Analyze(result.Pages)

	result.ProcessingTimeMs = time.Since(startTime).Milliseconds()
	log.Printf("[Job %s] Processing complete: pages=%d, skipped=%d, words=%d, confidence=%.2f, duration=%dms",
		req.JobID, len(result.Pages), len(result.SkippedPages), result.WordCount, result.Confidence, result.ProcessingTimeMs)

	return result, nil
}

// recognizePage runs the engine on one page, exports the result and
// releases it before returning
func (p *DocumentProcessor) recognizePage(ctx context.Context, jobID string, pageNumber int, image PageImage) (*exporter.Page, error) {
	recognized, err := p.recognizer.Recognize(ctx, image.Data)
	if err != nil {
		return nil, err
	}
	defer recognized.Release()

	opts := exporter.Options{
		PageNumber: pageNumber,
		Rotation:   image.Rotation,
		Skew:       image.Skew,
	}
	if image.Rotation != 0 || image.Skew != 0 {
		origin, ok := PageOrigin(image.Data)
		if !ok {
			log.Printf("[Job %s] WARNING: Could not read page %d dimensions, transforming about (0,0)", jobID, pageNumber)
		}
		opts.Origin = origin
	}

	return exporter.Export(recognized, opts), nil
}

// indexBlocks embeds the text of every non-empty block and replaces the
// job's points with them. Returns the number of blocks sent to the index.
func (p *DocumentProcessor) indexBlocks(ctx context.Context, jobID string, pages []*exporter.Page) (int, error) {
	var points []*storage.BlockPoint
	var texts []string
	for _, page := range pages {
		for blockIndex, block := range page.Blocks {
			text := strings.TrimSpace(block.Text)
			if text == "" {
				continue
			}
			texts = append(texts, text)
			points = append(points, &storage.BlockPoint{
				ID:         storage.BlockPointID(jobID, page.PageNumber, blockIndex),
				JobID:      jobID,
				PageNumber: page.PageNumber,
				BlockIndex: blockIndex,
				Text:       text,
				Confidence: block.Confidence,
				BBox:       [4]int(block.BBox),
			})
		}
	}

	if len(points) == 0 {
		return 0, p.index.DeleteJobBlocks(ctx, jobID)
	}

	vectors, err := p.embedder.GenerateEmbeddingBatch(ctx, texts)
	if err != nil {
		return len(points), fmt.Errorf("embedding generation failed: %w", err)
	}
	if len(vectors) != len(points) {
		return len(points), fmt.Errorf("got %d embeddings for %d blocks", len(vectors), len(points))
	}
	for i := range points {
		points[i].Vector = vectors[i]
	}

	// A retried job may have fewer blocks than an earlier attempt
	if err := p.index.DeleteJobBlocks(ctx, jobID); err != nil {
		return len(points), fmt.Errorf("failed to drop previous blocks: %w", err)
	}
	if err := p.index.IndexBlocks(ctx, points); err != nil {
		return len(points), err
	}
	return len(points), nil
}

// UpdateJobStatus updates job status in database
func (p *DocumentProcessor) UpdateJobStatus(ctx context.Context, jobID string, status string, progress int, metadata map[string]interface{}) error {
	update := &storage.JobUpdate{
		JobID:    jobID,
		Status:   status,
		Metadata: metadata,
	}

	// Extract specific fields from metadata if present
	if metadata != nil {
		if confidence, ok := metadata["confidence"].(float64); ok {
			update.Confidence = confidence
		}
		if processingTime, ok := metadata["processingTime"].(int64); ok {
			update.ProcessingTimeMs = processingTime
		}
		if pageCount, ok := metadata["pageCount"].(int); ok {
			update.PageCount = pageCount
		}
		if skipped, ok := metadata["skippedPages"].([]int); ok {
			update.SkippedPages = skipped
		}
		if errorMsg, ok := metadata["error"].(string); ok {
			update.ErrorCode = "PROCESSING_ERROR"
			update.ErrorMessage = errorMsg
		}
		if code, ok := metadata["errorCode"].(string); ok {
			update.ErrorCode = code
		}
	}

	return p.store.UpdateJobStatus(ctx, update)
}

// loadPages returns the page images of a request
func (p *DocumentProcessor) loadPages(ctx context.Context, req *ProcessRequest) ([]PageImage, error) {
	if len(req.Pages) > 0 {
		for i, page := range req.Pages {
			if len(page.Data) == 0 {
				return nil, fmt.Errorf("page %d has no image data", i+1)
			}
			if err := p.checkSize(int64(len(page.Data))); err != nil {
				return nil, fmt.Errorf("page %d: %w", i+1, err)
			}
		}
		return req.Pages, nil
	}

	fileData, err := p.loadFile(ctx, req)
	if err != nil {
		return nil, err
	}
	return []PageImage{{Data: fileData, Rotation: req.Rotation, Skew: req.Skew}}, nil
}

// loadFile loads file from URL or buffer
func (p *DocumentProcessor) loadFile(ctx context.Context, req *ProcessRequest) ([]byte, error) {
	// If buffer is provided, use it directly
	if len(req.FileBuffer) > 0 {
		log.Printf("[Job %s] Using file buffer (%d bytes)", req.JobID, len(req.FileBuffer))
		if err := p.checkSize(int64(len(req.FileBuffer))); err != nil {
			return nil, err
		}
		return req.FileBuffer, nil
	}

	// If URL is provided, download it
	if req.FileURL != "" {
		log.Printf("[Job %s] Downloading file from URL: %s (fileSize=%d)", req.JobID, req.FileURL, req.FileSize)
		fileData, err := p.downloadFileFromURL(ctx, req.JobID, req.FileURL, req.FileSize)
		if err != nil {
			return nil, fmt.Errorf("failed to download file: %w", err)
		}
		log.Printf("[Job %s] File downloaded successfully (%d bytes)", req.JobID, len(fileData))
		return fileData, nil
	}

	return nil, fmt.Errorf("no file source provided (pages, buffer or URL)")
}

func (p *DocumentProcessor) checkSize(size int64) error {
	if p.config.MaxFileSize > 0 && size > p.config.MaxFileSize {
		return fmt.Errorf("file size exceeds maximum: %d > %d bytes", size, p.config.MaxFileSize)
	}
	return nil
}

// downloadFileFromURL downloads a file with retry and exponential backoff
func (p *DocumentProcessor) downloadFileFromURL(ctx context.Context, jobID string, fileURL string, expectedSize int64) ([]byte, error) {
	const maxRetries = 5

	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			backoff := p.backoff(attempt - 1)
			log.Printf("[Job %s] Retrying in %v...", jobID, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
			}
		}

		log.Printf("[Job %s] Download attempt %d/%d from: %s", jobID, attempt, maxRetries, fileURL)

		fileData, retry, err := p.downloadOnce(ctx, jobID, fileURL, expectedSize)
		if err == nil {
			return fileData, nil
		}

		lastErr = err
		log.Printf("[Job %s] Download attempt %d failed: %v", jobID, attempt, err)
		if !retry {
			return nil, err
		}
	}

	return nil, fmt.Errorf("download failed after %d attempts: %w", maxRetries, lastErr)
}

// downloadOnce performs one GET. retry reports whether the failure is transient.
func (p *DocumentProcessor) downloadOnce(ctx context.Context, jobID string, fileURL string, expectedSize int64) (data []byte, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("invalid URL: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	// Check response status
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, true, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	// Check Content-Length if available
	contentLength := resp.ContentLength
	if contentLength > 0 && expectedSize > 0 && contentLength != expectedSize {
		log.Printf("[Job %s] WARNING: Content-Length mismatch. Expected=%d, Got=%d",
			jobID, expectedSize, contentLength)
	}

	if err := p.checkSize(contentLength); err != nil {
		return nil, false, err
	}

	// Read entire file into memory (with limit protection)
	maxReadBytes := p.config.MaxFileSize
	if maxReadBytes == 0 {
		maxReadBytes = 10 * 1024 * 1024 * 1024 // 10GB safety limit
	}

	fileData, err := io.ReadAll(io.LimitReader(resp.Body, maxReadBytes+1))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}
	if err := p.checkSize(int64(len(fileData))); err != nil {
		return nil, false, err
	}
	if len(fileData) == 0 {
		return nil, true, fmt.Errorf("empty response body")
	}

	return fileData, false, nil
}

// backoff returns the delay before retry n (1-based): initialBackoff doubled
// per retry, capped at maxBackoff
func (p *DocumentProcessor) backoff(n int) time.Duration {
	d := p.initialBackoff
	for i := 1; i < n; i++ {
		d *= 2
		if d >= p.maxBackoff {
			return p.maxBackoff
		}
	}
	if d > p.maxBackoff {
		return p.maxBackoff
	}
	return d
}

func isImageMimeType(mimeType string) bool {
	switch mimeType {
	case "image/png", "image/jpeg", "image/gif", "image/webp", "image/tiff", "image/bmp":
		return true
	}
	return false
}

// detectMimeTypeFromMagicBytes detects the actual MIME type from file content magic bytes.
// Sources often report a generic "application/octet-stream".
func detectMimeTypeFromMagicBytes(data []byte) string {
	if len(data) < 4 {
		return ""
	}

	// PDF: %PDF-
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return "application/pdf"
	}

	// PNG: 0x89 'P' 'N' 'G' 0x0D 0x0A 0x1A 0x0A
	if len(data) >= 8 && bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}) {
		return "image/png"
	}

	// JPEG: 0xFF 0xD8 0xFF
	if bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}) {
		return "image/jpeg"
	}

	// GIF: 'G' 'I' 'F' '8' ('7' or '9') 'a'
	if bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")) {
		return "image/gif"
	}

	// WebP: 'R' 'I' 'F' 'F' .... 'W' 'E' 'B' 'P'
	if len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && string(data[8:12]) == "WEBP" {
		return "image/webp"
	}

	// TIFF: 'I' 'I' 0x2A 0x00 (little-endian) or 'M' 'M' 0x00 0x2A (big-endian)
	if bytes.HasPrefix(data, []byte{0x49, 0x49, 0x2A, 0x00}) || bytes.HasPrefix(data, []byte{0x4D, 0x4D, 0x00, 0x2A}) {
		return "image/tiff"
	}

	// BMP: 'B' 'M'
	if bytes.HasPrefix(data, []byte("BM")) {
		return "image/bmp"
	}

	// ZIP (and Office documents, EPUB): 'P' 'K' 0x03 0x04
	if bytes.HasPrefix(data, []byte{0x50, 0x4B, 0x03, 0x04}) {
		return "application/zip"
	}

	return ""
}
