/**
 * Asynq Queue Consumer for the OCR tree worker
 *
 * Consumes "process-pages" tasks and runs them through the page processor.
 * Producer submits them.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/ocrtree-worker/internal/processor"
)

// TaskProcessPages is the Asynq task type handled by Consumer
const TaskProcessPages = "process-pages"

// Consumer handles job consumption from an Asynq queue
type Consumer struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor processor.DocumentProcessorInterface
	config    *ConsumerConfig
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.DocumentProcessorInterface
	ProcessingTimeout int64 // milliseconds, default 300000
	MaxRetries        int   // default 3
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	// Parse Redis connection options
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10, // Priority 10 for main queue
				"default":     1,  // Priority 1 for fallback
			},
			RetryDelayFunc: retryDelay,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				log.Printf("Task processing error: type=%s, retry=%d/%d, error=%v",
					task.Type(), retried, maxRetry, err)
			}),
		},
	)

	mux := asynq.NewServeMux()

	consumer := &Consumer{
		server:    server,
		mux:       mux,
		processor: cfg.Processor,
		config:    cfg,
	}

	mux.HandleFunc(TaskProcessPages, consumer.handleProcessPages)

	return consumer, nil
}

// retryDelay backs off exponentially: 5s, 10s, 20s, capped at 60s
func retryDelay(n int, err error, task *asynq.Task) time.Duration {
	delay := time.Duration(5*(1<<uint(n))) * time.Second
	if delay > 60*time.Second {
		delay = 60 * time.Second
	}
	return delay
}

// Start starts the queue consumer
func (c *Consumer) Start(ctx context.Context) error {
	log.Printf("Starting queue consumer (concurrency=%d, queue=%s)...",
		c.config.Concurrency, c.config.QueueName)

	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start queue consumer: %w", err)
	}

	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	log.Printf("Stopping queue consumer...")

	c.server.Shutdown()

	log.Printf("Queue consumer stopped")
	return nil
}

// NewProcessPagesTask builds a task for payload
func NewProcessPagesTask(payload *JobPayload) (*asynq.Task, error) {
	if payload == nil || payload.JobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}
	return asynq.NewTask(TaskProcessPages, data), nil
}

// handleProcessPages processes one page processing job
func (c *Consumer) handleProcessPages(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	var payload JobPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		// A malformed payload never succeeds on retry
		return fmt.Errorf("failed to unmarshal job data: %v: %w", err, asynq.SkipRetry)
	}

	log.Printf("[Job %s] Processing pages: filename=%s, pages=%d, user=%s",
		payload.JobID, payload.Filename, len(payload.Pages), payload.UserID)

	if err := c.processor.UpdateJobStatus(ctx, payload.JobID, "processing", 0, payload.startMetadata()); err != nil {
		log.Printf("[Job %s] WARNING: Failed to update status to processing: %v", payload.JobID, err)
	}

	result, err := runJob(ctx, c.processor, &payload, time.Duration(c.config.ProcessingTimeout)*time.Millisecond)
	if err != nil {
		if updateErr := c.processor.UpdateJobStatus(ctx, payload.JobID, "failed", 100, failureMetadata(err, time.Since(startTime))); updateErr != nil {
			log.Printf("[Job %s] WARNING: Failed to update status to failed: %v", payload.JobID, updateErr)
		}
		return fmt.Errorf("page processing failed: %w", err)
	}

	if err := c.processor.UpdateJobStatus(ctx, payload.JobID, "completed", 100, completedMetadata(result)); err != nil {
		log.Printf("[Job %s] WARNING: Failed to update status to completed: %v", payload.JobID, err)
	}

	return nil
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
		"maxRetries":  c.config.MaxRetries,
	}
}
