/**
 * Job payloads shared by the Redis list and Asynq consumers
 *
 * Producers send page images either as base64 strings or as serialized
 * Node.js Buffer objects ({"type":"Buffer","data":[...]}); both decode to
 * raw bytes. Encoding always produces base64.
 */

package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	werrors "github.com/adverant/nexus/ocrtree-worker/internal/errors"
	"github.com/adverant/nexus/ocrtree-worker/internal/processor"
)

// DefaultProcessingTimeout applies when no timeout is configured
const DefaultProcessingTimeout = 300000 * time.Millisecond

// JobPayload contains the actual job data
type JobPayload struct {
	JobID      string                 `json:"jobId"`
	UserID     string                 `json:"userId"`
	Filename   string                 `json:"filename"`
	MimeType   string                 `json:"mimeType,omitempty"`
	FileSize   int64                  `json:"fileSize,omitempty"`
	FileURL    string                 `json:"fileUrl,omitempty"`
	FileBuffer []byte                 `json:"fileBuffer,omitempty"`
	Pages      []PagePayload          `json:"pages,omitempty"`
	Rotation   float64                `json:"rotation,omitempty"`
	Skew       float64                `json:"skew,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// PagePayload is one page image of a multi-page job
type PagePayload struct {
	Image    []byte  `json:"image"`
	Rotation float64 `json:"rotation,omitempty"`
	Skew     float64 `json:"skew,omitempty"`
}

// UnmarshalJSON accepts fileBuffer as base64 or as a Buffer object
func (p *JobPayload) UnmarshalJSON(data []byte) error {
	type alias JobPayload
	aux := &struct {
		FileBuffer json.RawMessage `json:"fileBuffer,omitempty"`
		*alias
	}{
		alias: (*alias)(p),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return fmt.Errorf("failed to unmarshal JobPayload: %w", err)
	}

	buf, err := decodeBuffer(aux.FileBuffer)
	if err != nil {
		return fmt.Errorf("fileBuffer: %w", err)
	}
	p.FileBuffer = buf
	return nil
}

// UnmarshalJSON accepts image as base64 or as a Buffer object
func (p *PagePayload) UnmarshalJSON(data []byte) error {
	type alias PagePayload
	aux := &struct {
		Image json.RawMessage `json:"image"`
		*alias
	}{
		alias: (*alias)(p),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return fmt.Errorf("failed to unmarshal page: %w", err)
	}

	img, err := decodeBuffer(aux.Image)
	if err != nil {
		return fmt.Errorf("image: %w", err)
	}
	p.Image = img
	return nil
}

// decodeBuffer decodes a base64 string or a Node.js Buffer object.
// An absent or null value decodes to nil.
func decodeBuffer(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64: %w", err)
		}
		return decoded, nil

	case '{':
		var obj struct {
			Type string `json:"type"`
			Data []int  `json:"data"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("invalid Buffer object: %w", err)
		}
		if obj.Type != "Buffer" {
			return nil, fmt.Errorf("invalid Buffer object format (type %q)", obj.Type)
		}
		if obj.Data == nil {
			return nil, fmt.Errorf("Buffer object missing 'data' array")
		}
		out := make([]byte, len(obj.Data))
		for i, v := range obj.Data {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("invalid byte value %d in Buffer data array at index %d", v, i)
			}
			out[i] = byte(v)
		}
		return out, nil
	}

	return nil, fmt.Errorf("must be either base64 string or Buffer object")
}

// ToRequest converts the payload into a processor request
func (p *JobPayload) ToRequest() *processor.ProcessRequest {
	req := &processor.ProcessRequest{
		JobID:      p.JobID,
		UserID:     p.UserID,
		Filename:   p.Filename,
		MimeType:   p.MimeType,
		FileSize:   p.FileSize,
		FileURL:    p.FileURL,
		FileBuffer: p.FileBuffer,
		Rotation:   p.Rotation,
		Skew:       p.Skew,
		Metadata:   p.Metadata,
	}
	for _, page := range p.Pages {
		req.Pages = append(req.Pages, processor.PageImage{
			Data:     page.Image,
			Rotation: page.Rotation,
			Skew:     page.Skew,
		})
	}
	return req
}

// startMetadata is recorded when a job starts
func (p *JobPayload) startMetadata() map[string]interface{} {
	return map[string]interface{}{
		"filename": p.Filename,
		"mimeType": p.MimeType,
		"fileSize": p.FileSize,
		"userId":   p.UserID,
	}
}

// completedMetadata summarizes a finished job for the status store
func completedMetadata(result *processor.ProcessResult) map[string]interface{} {
	meta := map[string]interface{}{
		"confidence":     result.Confidence,
		"processingTime": result.ProcessingTimeMs,
		"pageCount":      len(result.Pages),
		"skippedPages":   result.SkippedPages,
		"wordCount":      result.WordCount,
		"blocksIndexed":  result.BlocksIndexed,
	}
	if result.Layout != nil {
		meta["regionsExtracted"] = len(result.Layout.Regions)
		meta["tablesExtracted"] = len(result.Layout.Tables)
	}
	return meta
}

// failureMetadata describes a failed job. Structured processing errors keep
// their code.
func failureMetadata(err error, duration time.Duration) map[string]interface{} {
	meta := map[string]interface{}{
		"error":          err.Error(),
		"processingTime": duration.Milliseconds(),
	}

	var pe *werrors.ProcessingError
	if errors.As(err, &pe) {
		for k, v := range pe.ToMap() {
			meta[k] = v
		}
		meta["errorCode"] = string(pe.Code)
	}
	return meta
}

// runJob processes one job under the processing timeout. A deadline hit is
// reported as a PROCESSING_TIMEOUT error.
func runJob(ctx context.Context, proc processor.DocumentProcessorInterface, payload *JobPayload, timeout time.Duration) (*processor.ProcessResult, error) {
	if timeout <= 0 {
		timeout = DefaultProcessingTimeout
	}

	log.Printf("[Job %s] Processing timeout set to: %v", payload.JobID, timeout)

	processCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	startTime := time.Now()
	result, err := proc.ProcessDocument(processCtx, payload.ToRequest())
	duration := time.Since(startTime)

	if err != nil {
		if processCtx.Err() == context.DeadlineExceeded {
			log.Printf("[Job %s] Processing timed out after %v (timeout: %v)", payload.JobID, duration, timeout)
			return nil, werrors.NewProcessingTimeoutError(payload.JobID, timeout, err)
		}
		log.Printf("[Job %s] Processing failed after %v: %v", payload.JobID, duration, err)
		return nil, err
	}

	log.Printf("[Job %s] Processing completed in %v: pages=%d, skipped=%v, confidence=%.2f",
		payload.JobID, duration, len(result.Pages), result.SkippedPages, result.Confidence)
	return result, nil
}
