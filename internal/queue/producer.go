/**
 * Queue Producer
 *
 * Submits page jobs to either backend the worker consumes: the Redis list
 * used by the TypeScript RedisQueue, or Asynq.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Queue backends
const (
	BackendRedis = "redis"
	BackendAsynq = "asynq"
)

// ProducerConfig holds producer configuration
type ProducerConfig struct {
	RedisURL   string
	QueueName  string
	Backend    string // BackendRedis (default) or BackendAsynq
	MaxRetries int    // default 3
}

// Producer enqueues jobs and reports queue depth
type Producer struct {
	config    *ProducerConfig
	keys      queueKeys
	redis     *redis.Client
	asynq     *asynq.Client
	inspector *asynq.Inspector
}

// NewProducer connects to the configured backend
func NewProducer(cfg *ProducerConfig) (*Producer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	if cfg.Backend == "" {
		cfg.Backend = BackendRedis
	}

	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	p := &Producer{config: cfg, keys: newQueueKeys(cfg.QueueName)}

	switch cfg.Backend {
	case BackendRedis:
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		p.redis = redis.NewClient(opt)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.redis.Ping(ctx).Err(); err != nil {
			p.redis.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}

	case BackendAsynq:
		redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		p.asynq = asynq.NewClient(redisOpt)
		p.inspector = asynq.NewInspector(redisOpt)

	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}

	return p, nil
}

// Enqueue submits a job and returns its ID
func (p *Producer) Enqueue(ctx context.Context, payload *JobPayload) (string, error) {
	if payload == nil || payload.JobID == "" {
		return "", fmt.Errorf("job ID is required")
	}

	if p.asynq != nil {
		task, err := NewProcessPagesTask(payload)
		if err != nil {
			return "", err
		}
		info, err := p.asynq.EnqueueContext(ctx, task,
			asynq.Queue(p.config.QueueName),
			asynq.MaxRetry(p.config.MaxRetries),
			asynq.TaskID(payload.JobID),
		)
		if err != nil {
			return "", fmt.Errorf("failed to enqueue job %s: %w", payload.JobID, err)
		}
		return info.ID, nil
	}

	data, err := json.Marshal(newRedisJob(payload, p.config.MaxRetries, time.Now()))
	if err != nil {
		return "", fmt.Errorf("failed to marshal job %s: %w", payload.JobID, err)
	}
	if err := p.redis.HSet(ctx, p.keys.data, payload.JobID, data).Err(); err != nil {
		return "", fmt.Errorf("failed to store job %s: %w", payload.JobID, err)
	}
	if err := p.redis.LPush(ctx, p.keys.list, payload.JobID).Err(); err != nil {
		return "", fmt.Errorf("failed to enqueue job %s: %w", payload.JobID, err)
	}
	return payload.JobID, nil
}

// Stats returns queue depth by job state
func (p *Producer) Stats(ctx context.Context) (map[string]int64, error) {
	if p.inspector != nil {
		info, err := p.inspector.GetQueueInfo(p.config.QueueName)
		if err != nil {
			return nil, fmt.Errorf("failed to inspect queue %s: %w", p.config.QueueName, err)
		}
		return queueInfoStats(info), nil
	}
	return listStats(ctx, p.redis, p.keys)
}

// Close releases the backend connections
func (p *Producer) Close() error {
	if p.asynq != nil {
		p.inspector.Close()
		return p.asynq.Close()
	}
	return p.redis.Close()
}

// newRedisJob wraps a payload in the Redis list job envelope
func newRedisJob(payload *JobPayload, maxRetries int, now time.Time) *RedisJobData {
	return &RedisJobData{
		ID:         payload.JobID,
		Type:       TaskProcessPages,
		Payload:    *payload,
		CreatedAt:  now,
		MaxRetries: maxRetries,
	}
}

// queueInfoStats maps Asynq queue state onto the Redis list status names
func queueInfoStats(info *asynq.QueueInfo) map[string]int64 {
	return map[string]int64{
		"waiting":    int64(info.Pending + info.Scheduled + info.Retry),
		"processing": int64(info.Active),
		"completed":  int64(info.Completed),
		"failed":     int64(info.Archived),
	}
}

// listStats counts jobs in each state of a Redis list queue
func listStats(ctx context.Context, client *redis.Client, keys queueKeys) (map[string]int64, error) {
	waiting, err := client.LLen(ctx, keys.list).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read queue length: %w", err)
	}
	processing, _ := client.SCard(ctx, keys.processing).Result()
	completed, _ := client.SCard(ctx, keys.completed).Result()
	failed, _ := client.SCard(ctx, keys.failed).Result()

	return map[string]int64{
		"waiting":    waiting,
		"processing": processing,
		"completed":  completed,
		"failed":     failed,
	}, nil
}
