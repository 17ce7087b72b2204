/**
 * Direct Redis Queue Consumer for the OCR tree worker
 *
 * Compatible with the TypeScript RedisQueue producer: job IDs are pushed on
 * a LIST, job bodies live in the "<queue>:data" HASH.
 */

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/ocrtree-worker/internal/processor"
)

var errNoJobs = errors.New("no jobs available")

// RedisJobData represents a job from the Redis queue
type RedisJobData struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Payload    JobPayload `json:"payload"`
	CreatedAt  time.Time  `json:"createdAt"`
	Attempts   int        `json:"attempts"`
	MaxRetries int        `json:"maxRetries"`
}

// RedisConsumer handles job consumption from Redis queue
type RedisConsumer struct {
	client    *redis.Client
	processor processor.DocumentProcessorInterface
	config    *RedisConsumerConfig
	keys      queueKeys
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// RedisConsumerConfig holds consumer configuration
type RedisConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.DocumentProcessorInterface
	ProcessingTimeout int64 // milliseconds, default 300000
}

// queueKeys are the Redis keys derived from the queue name
type queueKeys struct {
	list, data, processing, completed, failed, results, errors, events string
}

func newQueueKeys(queue string) queueKeys {
	return queueKeys{
		list:       queue,
		data:       queue + ":data",
		processing: queue + ":processing",
		completed:  queue + ":completed",
		failed:     queue + ":failed",
		results:    queue + ":results",
		errors:     queue + ":errors",
		events:     queue + ":events",
	}
}

// NewRedisConsumer creates a new Redis-based queue consumer
func NewRedisConsumer(cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		cfg.QueueName = "ocrtree:jobs"
	}

	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	consumerCtx, cancel := context.WithCancel(context.Background())

	return &RedisConsumer{
		client:    client,
		processor: cfg.Processor,
		config:    cfg,
		keys:      newQueueKeys(cfg.QueueName),
		ctx:       consumerCtx,
		cancel:    cancel,
	}, nil
}

// Start begins processing jobs from the queue
func (c *RedisConsumer) Start() error {
	log.Printf("Starting Redis queue consumer (concurrency=%d, queue=%s)...",
		c.config.Concurrency, c.config.QueueName)

	for i := 0; i < c.config.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}

	log.Println("Queue consumer started successfully")
	return nil
}

// Stop gracefully stops the consumer. In-flight jobs are cancelled and
// pushed back on the queue.
func (c *RedisConsumer) Stop() error {
	log.Println("Stopping queue consumer...")
	c.cancel()
	c.wg.Wait()
	return c.client.Close()
}

// worker is a goroutine that processes jobs one at a time
func (c *RedisConsumer) worker(id int) {
	defer c.wg.Done()
	log.Printf("Worker %d started", id)

	for {
		select {
		case <-c.ctx.Done():
			log.Printf("Worker %d stopping", id)
			return
		default:
		}

		if err := c.processNextJob(); err != nil {
			if errors.Is(err, errNoJobs) || c.ctx.Err() != nil {
				continue
			}
			log.Printf("Worker %d error: %v", id, err)
			select {
			case <-time.After(time.Second):
			case <-c.ctx.Done():
			}
		}
	}
}

// processNextJob fetches and processes the next job from the queue
func (c *RedisConsumer) processNextJob() error {
	// Block for up to 5 seconds waiting for a job
	result, err := c.client.BRPop(c.ctx, 5*time.Second, c.keys.list).Result()
	if err != nil {
		if err == redis.Nil {
			return errNoJobs
		}
		return fmt.Errorf("failed to fetch job: %w", err)
	}

	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	id := result[1]

	jobData, err := c.client.HGet(c.ctx, c.keys.data, id).Result()
	if err != nil {
		return fmt.Errorf("failed to get job data for %s: %w", id, err)
	}

	var job RedisJobData
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		c.markFailed(id, map[string]interface{}{"error": err.Error()})
		return fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	if job.Payload.JobID == "" {
		job.Payload.JobID = job.ID
	}

	jobID := job.Payload.JobID
	log.Printf("[Job %s] Processing %s (attempt %d/%d)", jobID, job.Payload.Filename, job.Attempts+1, job.MaxRetries)

	c.client.SAdd(c.ctx, c.keys.processing, jobID)
	if err := c.processor.UpdateJobStatus(c.ctx, jobID, "processing", 0, job.Payload.startMetadata()); err != nil {
		log.Printf("[Job %s] WARNING: Failed to update status to processing: %v", jobID, err)
	}
	c.publish(jobID, "processing")

	startTime := time.Now()
	processResult, err := runJob(c.ctx, c.processor, &job.Payload, time.Duration(c.config.ProcessingTimeout)*time.Millisecond)
	if err != nil {
		if retryOrFail(&job, c.ctx.Err() != nil) == jobRequeue {
			c.requeue(&job)
			return nil
		}

		failure := failureMetadata(err, time.Since(startTime))
		failure["attempts"] = job.Attempts
		c.markFailed(jobID, failure)
		return nil
	}

	c.markCompleted(jobID, processResult)
	return nil
}

type jobOutcome int

const (
	jobRequeue jobOutcome = iota
	jobFail
)

// retryOrFail decides what happens to a job whose processing returned an
// error. A job interrupted by shutdown goes back on the queue without using
// up an attempt; otherwise the attempt is counted and the job is requeued
// until MaxRetries is reached.
func retryOrFail(job *RedisJobData, shuttingDown bool) jobOutcome {
	if shuttingDown {
		return jobRequeue
	}
	job.Attempts++
	if job.Attempts < job.MaxRetries {
		return jobRequeue
	}
	return jobFail
}

// requeue pushes a job back on the queue with its updated attempt counter
func (c *RedisConsumer) requeue(job *RedisJobData) {
	updatedData, err := json.Marshal(job)
	if err != nil {
		log.Printf("[Job %s] WARNING: Failed to marshal job for retry: %v", job.Payload.JobID, err)
		return
	}

	// The consumer context is already cancelled during shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.client.HSet(ctx, c.keys.data, job.ID, updatedData).Err(); err != nil {
		log.Printf("[Job %s] WARNING: Failed to store job for retry: %v", job.Payload.JobID, err)
		return
	}
	c.client.SRem(ctx, c.keys.processing, job.Payload.JobID)
	if err := c.client.LPush(ctx, c.keys.list, job.ID).Err(); err != nil {
		log.Printf("[Job %s] ERROR: Failed to re-queue job: %v", job.Payload.JobID, err)
		return
	}
	log.Printf("[Job %s] Re-queued (attempt %d/%d)", job.Payload.JobID, job.Attempts, job.MaxRetries)
}

// markCompleted records a finished job in Redis and PostgreSQL
func (c *RedisConsumer) markCompleted(jobID string, result *processor.ProcessResult) {
	meta := completedMetadata(result)

	// Status writes use a fresh context so a shutdown does not lose them
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c.client.SRem(ctx, c.keys.processing, jobID)
	c.client.SAdd(ctx, c.keys.completed, jobID)
	if data, err := json.Marshal(meta); err == nil {
		c.client.HSet(ctx, c.keys.results, jobID, data)
	}

	if err := c.processor.UpdateJobStatus(ctx, jobID, "completed", 100, meta); err != nil {
		log.Printf("[Job %s] ERROR: Failed to update job status: %v", jobID, err)
	}

	c.publishCtx(ctx, jobID, "completed")
	log.Printf("[Job %s] Completed successfully (pages=%d, skipped=%v)", jobID, len(result.Pages), result.SkippedPages)
}

// markFailed records a failed job in Redis and PostgreSQL
func (c *RedisConsumer) markFailed(jobID string, failure map[string]interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c.client.SRem(ctx, c.keys.processing, jobID)
	c.client.SAdd(ctx, c.keys.failed, jobID)
	if data, err := json.Marshal(failure); err == nil {
		c.client.HSet(ctx, c.keys.errors, jobID, data)
	}

	if err := c.processor.UpdateJobStatus(ctx, jobID, "failed", 100, failure); err != nil {
		log.Printf("[Job %s] WARNING: Failed to update PostgreSQL job status for failed job: %v", jobID, err)
	}

	c.publishCtx(ctx, jobID, "failed")
	log.Printf("[Job %s] Failed: %v", jobID, failure["error"])
}

func (c *RedisConsumer) publish(jobID string, status string) {
	c.publishCtx(c.ctx, jobID, status)
}

// publishCtx publishes a status event for WebSocket streaming
func (c *RedisConsumer) publishCtx(ctx context.Context, jobID string, status string) {
	eventData, err := json.Marshal(jobEvent(jobID, status, time.Now()))
	if err != nil {
		return
	}
	c.client.Publish(ctx, c.keys.events, eventData)
}

func jobEvent(jobID string, status string, at time.Time) map[string]interface{} {
	return map[string]interface{}{
		"event":     fmt.Sprintf("job:%s", status),
		"jobId":     jobID,
		"timestamp": at.Format(time.RFC3339),
	}
}

// GetStats returns queue statistics
func (c *RedisConsumer) GetStats(ctx context.Context) (map[string]int64, error) {
	return listStats(ctx, c.client, c.keys)
}
