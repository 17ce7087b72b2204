/**
 * Configuration for the OCR tree worker
 *
 * Loads configuration from environment variables (.env is loaded by main)
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Queue backends
const (
	QueueBackendRedis = "redis"
	QueueBackendAsynq = "asynq"
)

// Config holds worker configuration
type Config struct {
	// Redis configuration
	RedisURL string

	// PostgreSQL configuration
	DatabaseURL string

	// Qdrant vector database configuration (optional block index)
	QdrantURL        string
	QdrantCollection string

	// API Keys
	VoyageAPIKey string

	// Queue configuration
	QueueBackend string
	QueueName    string

	// Worker configuration
	WorkerConcurrency int
	MaxFileSize       int64
	ProcessingTimeout int // milliseconds

	// Tesseract configuration
	TesseractLanguages []string
	TesseractPSM       int
	TesseractThreads   int

	// Node environment
	NodeEnv string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RedisURL:           getEnvOrDefault("REDIS_URL", "redis://nexus-redis:6379"),
		DatabaseURL:        getEnvOrDefault("DATABASE_URL", ""),
		QdrantURL:          getEnvOrDefault("QDRANT_URL", ""),
		QdrantCollection:   getEnvOrDefault("QDRANT_COLLECTION", "ocr_blocks"),
		VoyageAPIKey:       getEnvOrDefault("VOYAGE_API_KEY", ""),
		QueueBackend:       strings.ToLower(getEnvOrDefault("QUEUE_BACKEND", QueueBackendRedis)),
		QueueName:          getEnvOrDefault("QUEUE_NAME", "ocrtree:jobs"),
		WorkerConcurrency:  getEnvAsIntOrDefault("WORKER_CONCURRENCY", 4),
		MaxFileSize:        getEnvAsInt64OrDefault("MAX_FILE_SIZE", 104857600), // 100MB
		ProcessingTimeout:  getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 300000), // 5 minutes
		TesseractLanguages: getEnvAsListOrDefault("TESSERACT_LANGUAGES", []string{"eng"}),
		TesseractPSM:       getEnvAsIntOrDefault("TESSERACT_PSM", 3),
		TesseractThreads:   getEnvAsIntOrDefault("TESSERACT_THREADS", 1),
		NodeEnv:            getEnvOrDefault("NODE_ENV", "development"),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.QueueBackend != QueueBackendRedis && c.QueueBackend != QueueBackendAsynq {
		return fmt.Errorf("QUEUE_BACKEND must be %q or %q, got %q", QueueBackendRedis, QueueBackendAsynq, c.QueueBackend)
	}

	if c.QueueName == "" {
		return fmt.Errorf("QUEUE_NAME is required")
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.MaxFileSize < 1024 || c.MaxFileSize > 10737418240 { // 1KB to 10GB
		return fmt.Errorf("MAX_FILE_SIZE must be between 1KB and 10GB, got %d", c.MaxFileSize)
	}

	if c.ProcessingTimeout < 1000 {
		return fmt.Errorf("PROCESSING_TIMEOUT must be at least 1000ms, got %d", c.ProcessingTimeout)
	}

	if c.TesseractPSM < 0 || c.TesseractPSM > 13 {
		return fmt.Errorf("TESSERACT_PSM must be between 0 and 13, got %d", c.TesseractPSM)
	}

	if len(c.TesseractLanguages) == 0 {
		return fmt.Errorf("TESSERACT_LANGUAGES must name at least one language")
	}

	return nil
}

// IndexingEnabled reports whether block embeddings should be written to Qdrant
func (c *Config) IndexingEnabled() bool {
	return c.QdrantURL != "" && c.VoyageAPIKey != ""
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsInt64OrDefault gets environment variable as int64 or returns default
func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsListOrDefault splits a "+" or "," separated variable (eng+deu, eng,deu)
func getEnvAsListOrDefault(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.FieldsFunc(valueStr, func(r rune) bool { return r == '+' || r == ',' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
