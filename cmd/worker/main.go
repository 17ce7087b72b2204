/**
 * OCR Tree Worker - Main Entry Point
 *
 * Consumes page recognition jobs from Redis, runs Tesseract on every page,
 * walks the recognized hierarchy into a Block -> Paragraph -> Line -> Word ->
 * Symbol tree and stores the exported pages in PostgreSQL.
 *
 * Architecture:
 * - Redis list consumer (TypeScript RedisQueue producers) or Asynq consumer
 * - Tesseract recognition through gosseract (build with -tags ocr)
 * - Layout analysis for regions, tables and reading order
 * - Optional VoyageAI block embeddings indexed in Qdrant
 */

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/adverant/nexus/ocrtree-worker/internal/config"
	"github.com/adverant/nexus/ocrtree-worker/internal/processor"
	"github.com/adverant/nexus/ocrtree-worker/internal/queue"
	"github.com/adverant/nexus/ocrtree-worker/internal/storage"
	"github.com/adverant/nexus/ocrtree-worker/internal/tesseract"
)

// statsInterval is how often queue and storage statistics are logged
const statsInterval = time.Minute

// consumer is the part of a queue backend main drives
type consumer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Stats(ctx context.Context) (map[string]interface{}, error)
}

// redisConsumer adapts RedisConsumer to the consumer interface
type redisConsumer struct {
	*queue.RedisConsumer
}

func (r redisConsumer) Start(ctx context.Context) error { return r.RedisConsumer.Start() }
func (r redisConsumer) Stop(ctx context.Context) error  { return r.RedisConsumer.Stop() }

func (r redisConsumer) Stats(ctx context.Context) (map[string]interface{}, error) {
	counts, err := r.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	stats := make(map[string]interface{}, len(counts))
	for k, v := range counts {
		stats[k] = v
	}
	return stats, nil
}

// asynqConsumer adapts Consumer to the consumer interface
type asynqConsumer struct {
	*queue.Consumer
}

func (a asynqConsumer) Stats(ctx context.Context) (map[string]interface{}, error) {
	return a.GetStatistics(), nil
}

// reportStats logs queue and storage statistics until ctx is cancelled
func reportStats(ctx context.Context, q consumer, sm *storage.StorageManager) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if stats, err := q.Stats(ctx); err != nil {
			log.Printf("Failed to read queue statistics: %v", err)
		} else {
			log.Printf("Queue statistics: %v", stats)
		}

		if stats, err := sm.GetStats(ctx); err != nil {
			log.Printf("Failed to read storage statistics: %v", err)
		} else {
			log.Printf("Storage statistics: %v", stats)
		}
	}
}

func main() {
	// Load environment variables
	if err := godotenv.Load(".env.nexus"); err != nil {
		log.Printf("Warning: .env.nexus not found, using system environment variables")
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("OCR Tree Worker starting...")
	log.Printf("Configuration loaded: Queue=%s (%s), Qdrant=%q, Workers=%d, Languages=%v",
		cfg.QueueName, cfg.QueueBackend, cfg.QdrantURL, cfg.WorkerConcurrency, cfg.TesseractLanguages)

	// Initialize storage (PostgreSQL, plus Qdrant when configured)
	log.Printf("Connecting to storage...")
	storageManager, err := storage.NewStorageManager(cfg.DatabaseURL, cfg.QdrantURL, cfg.QdrantCollection)
	if err != nil {
		log.Fatalf("Failed to initialize storage manager: %v", err)
	}

	schemaCtx, cancelSchema := context.WithTimeout(context.Background(), 30*time.Second)
	err = storageManager.EnsureSchema(schemaCtx)
	cancelSchema()
	if err != nil {
		log.Fatalf("Failed to ensure database schema: %v", err)
	}
	log.Printf("Storage manager initialized (index=%v)", storageManager.HasIndex())

	// Initialize the recognition engine
	engine, err := tesseract.NewEngine(tesseract.Options{
		Languages:   cfg.TesseractLanguages,
		PageSegMode: cfg.TesseractPSM,
		Threads:     cfg.TesseractThreads,
	})
	if err != nil {
		log.Fatalf("Failed to initialize Tesseract: %v", err)
	}

	procCfg := &processor.ProcessorConfig{
		Recognizer:  processor.NewTesseractRecognizer(engine),
		Store:       storageManager,
		MaxFileSize: cfg.MaxFileSize,
	}

	if cfg.IndexingEnabled() && storageManager.HasIndex() {
		embedder, err := processor.NewEmbeddingClient(cfg.VoyageAPIKey)
		if err != nil {
			log.Fatalf("Failed to initialize embedding client: %v", err)
		}
		procCfg.Embedder = embedder
		procCfg.Index = storageManager
		log.Printf("Block indexing enabled (collection=%s)", cfg.QdrantCollection)
	} else {
		log.Printf("Block indexing disabled (QDRANT_URL and VOYAGE_API_KEY are both required)")
	}

	proc, err := processor.NewDocumentProcessor(procCfg)
	if err != nil {
		log.Fatalf("Failed to initialize document processor: %v", err)
	}

	// Initialize queue consumer
	log.Printf("Connecting to Redis queue...")
	var queueConsumer consumer
	switch cfg.QueueBackend {
	case config.QueueBackendAsynq:
		c, err := queue.NewConsumer(&queue.ConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
		})
		if err != nil {
			log.Fatalf("Failed to initialize queue consumer: %v", err)
		}
		queueConsumer = asynqConsumer{c}
	default:
		c, err := queue.NewRedisConsumer(&queue.RedisConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
		})
		if err != nil {
			log.Fatalf("Failed to initialize queue consumer: %v", err)
		}
		queueConsumer = redisConsumer{c}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := queueConsumer.Start(ctx); err != nil {
		log.Fatalf("Failed to start queue consumer: %v", err)
	}
	go reportStats(ctx, queueConsumer, storageManager)

	log.Printf("===========================================")
	log.Printf("OCR Tree Worker is READY")
	log.Printf("===========================================")
	log.Printf("Queue: %s (%s)", cfg.QueueName, cfg.QueueBackend)
	log.Printf("Workers: %d", cfg.WorkerConcurrency)
	log.Printf("Processing timeout: %dms", cfg.ProcessingTimeout)
	log.Printf("===========================================")
	log.Printf("Waiting for jobs...")

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	log.Printf("Received signal %v, initiating graceful shutdown...", sig)
	cancel()

	if err := queueConsumer.Stop(context.Background()); err != nil {
		log.Printf("Error stopping queue consumer: %v", err)
	} else {
		log.Printf("Queue consumer stopped successfully")
	}

	log.Printf("Closing storage manager...")
	if err := storageManager.Close(); err != nil {
		log.Printf("Error closing storage manager: %v", err)
	} else {
		log.Printf("Storage manager closed")
	}

	log.Printf("Shutdown complete")
}
