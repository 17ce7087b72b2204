package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/adverant/nexus/ocrtree-worker/internal/config"
	"github.com/adverant/nexus/ocrtree-worker/internal/processor"
	"github.com/adverant/nexus/ocrtree-worker/internal/queue"
	"github.com/adverant/nexus/ocrtree-worker/internal/storage"
)

// jobStore is the part of storage the job commands read
type jobStore interface {
	GetJobByID(ctx context.Context, jobID string) (map[string]interface{}, error)
	GetPages(ctx context.Context, jobID string) ([]*storage.PageRecord, error)
	GetStats(ctx context.Context) (map[string]interface{}, error)
	SearchBlocks(ctx context.Context, queryVector []float32, limit int, jobID string) ([]*storage.BlockMatch, error)
	Close() error
}

// jobQueue submits jobs and reports queue depth
type jobQueue interface {
	Enqueue(ctx context.Context, payload *queue.JobPayload) (string, error)
	Stats(ctx context.Context) (map[string]int64, error)
	Close() error
}

type queryEmbedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// backends opens the services behind the job commands. Each opener loads
// the worker configuration from the environment.
type backends struct {
	openStore    func() (jobStore, error)
	openQueue    func() (jobQueue, error)
	openEmbedder func() (queryEmbedder, error)
}

func defaultBackends() *backends {
	return &backends{
		openStore: func() (jobStore, error) {
			cfg, err := loadConfig()
			if err != nil {
				return nil, err
			}
			sm, err := storage.NewStorageManager(cfg.DatabaseURL, cfg.QdrantURL, cfg.QdrantCollection)
			if err != nil {
				return nil, err
			}
			return sm, nil
		},
		openQueue: func() (jobQueue, error) {
			cfg, err := loadConfig()
			if err != nil {
				return nil, err
			}
			p, err := queue.NewProducer(&queue.ProducerConfig{
				RedisURL:  cfg.RedisURL,
				QueueName: cfg.QueueName,
				Backend:   cfg.QueueBackend,
			})
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		openEmbedder: func() (queryEmbedder, error) {
			cfg, err := loadConfig()
			if err != nil {
				return nil, err
			}
			e, err := processor.NewEmbeddingClient(cfg.VoyageAPIKey)
			if err != nil {
				return nil, err
			}
			return e, nil
		},
	}
}

func loadConfig() (*config.Config, error) {
	// The worker's env file is optional for the CLI
	_ = godotenv.Load(".env.nexus")
	return config.LoadConfig()
}

func newJobCommand(b *backends) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect stored jobs",
	}
	cmd.AddCommand(newJobShowCommand(b), newJobSearchCommand(b))
	return cmd
}

// pageSummary is a stored page as printed by job show
type pageSummary struct {
	ID         string      `json:"id"`
	PageNumber int         `json:"pageNumber"`
	Text       string      `json:"text"`
	Confidence float64     `json:"confidence"`
	BlockCount int         `json:"blockCount"`
	WordCount  int         `json:"wordCount"`
	CreatedAt  time.Time   `json:"createdAt"`
	Tree       interface{} `json:"tree,omitempty"`
}

func newJobShowCommand(b *backends) *cobra.Command {
	var tree bool

	cmd := &cobra.Command{
		Use:   "show JOBID",
		Short: "Print a job and its stored pages as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := b.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			return showJob(cmd.Context(), cmd.OutOrStdout(), store, args[0], tree)
		},
	}
	cmd.Flags().BoolVar(&tree, "tree", false, "include the block/paragraph/line/word/symbol tree of every page")
	return cmd
}

func showJob(ctx context.Context, out io.Writer, store jobStore, jobID string, tree bool) error {
	job, err := store.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}

	records, err := store.GetPages(ctx, jobID)
	if err != nil {
		return err
	}

	pages := make([]pageSummary, 0, len(records))
	for _, r := range records {
		s := pageSummary{
			ID:         r.ID,
			PageNumber: r.PageNumber,
			Text:       r.Text,
			Confidence: r.Confidence,
			BlockCount: r.BlockCount,
			WordCount:  r.WordCount,
			CreatedAt:  r.CreatedAt,
		}
		if tree && r.Page != nil {
			s.Tree = r.Page
		}
		pages = append(pages, s)
	}

	return writeJSON(out, map[string]interface{}{
		"job":   job,
		"pages": pages,
	})
}

func newJobSearchCommand(b *backends) *cobra.Command {
	var jobID string
	var limit int

	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Find indexed blocks similar to QUERY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}
			embedder, err := b.openEmbedder()
			if err != nil {
				return err
			}
			store, err := b.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			return searchBlocks(cmd.Context(), cmd.OutOrStdout(), embedder, store, args[0], jobID, limit)
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "restrict the search to one job")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of blocks")
	return cmd
}

func searchBlocks(ctx context.Context, out io.Writer, embedder queryEmbedder, store jobStore, query, jobID string, limit int) error {
	vector, err := embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to embed query: %w", err)
	}

	matches, err := store.SearchBlocks(ctx, vector, limit, jobID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tJOB\tPAGE\tBLOCK\tTEXT")
	for _, m := range matches {
		fmt.Fprintf(w, "%.4f\t%s\t%d\t%d\t%s\n", m.Score, m.JobID, m.PageNumber, m.BlockIndex, oneLine(m.Text))
	}
	return w.Flush()
}

func newStatsCommand(b *backends) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print storage and queue statistics as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := b.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			q, err := b.openQueue()
			if err != nil {
				return err
			}
			defer q.Close()

			return printStats(cmd.Context(), cmd.OutOrStdout(), store, q)
		},
	}
}

func printStats(ctx context.Context, out io.Writer, store jobStore, q jobQueue) error {
	storageStats, err := store.GetStats(ctx)
	if err != nil {
		return err
	}
	queueStats, err := q.Stats(ctx)
	if err != nil {
		return err
	}
	return writeJSON(out, map[string]interface{}{
		"storage": storageStats,
		"queue":   queueStats,
	})
}

type enqueueFlags struct {
	user     string
	filename string
	rotation float64
	skew     float64
}

func newEnqueueCommand(b *backends) *cobra.Command {
	flags := &enqueueFlags{}

	cmd := &cobra.Command{
		Use:   "enqueue IMAGE...",
		Short: "Submit page images as one job to the worker queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := buildJob(args, flags, uuid.NewString())
			if err != nil {
				return err
			}

			q, err := b.openQueue()
			if err != nil {
				return err
			}
			defer q.Close()

			id, err := q.Enqueue(cmd.Context(), payload)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.user, "user", "anonymous", "user ID recorded with the job")
	cmd.Flags().StringVar(&flags.filename, "filename", "", "file name recorded with the job (default: first image name)")
	cmd.Flags().Float64Var(&flags.rotation, "rotation", 0, "rotation in degrees applied to every page")
	cmd.Flags().Float64Var(&flags.skew, "skew", 0, "skew in degrees applied to every page")
	return cmd
}

// buildJob reads the page images into a job payload
func buildJob(paths []string, flags *enqueueFlags, jobID string) (*queue.JobPayload, error) {
	payload := &queue.JobPayload{
		JobID:    jobID,
		UserID:   flags.user,
		Filename: flags.filename,
		Pages:    make([]queue.PagePayload, 0, len(paths)),
	}
	if payload.Filename == "" {
		payload.Filename = filepath.Base(paths[0])
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		payload.FileSize += int64(len(data))
		payload.Pages = append(payload.Pages, queue.PagePayload{
			Image:    data,
			Rotation: flags.rotation,
			Skew:     flags.skew,
		})
	}
	return payload, nil
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
