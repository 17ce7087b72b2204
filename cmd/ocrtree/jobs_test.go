package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/adverant/nexus/ocrtree-worker/internal/exporter"
	"github.com/adverant/nexus/ocrtree-worker/internal/ocrtree"
	"github.com/adverant/nexus/ocrtree-worker/internal/queue"
	"github.com/adverant/nexus/ocrtree-worker/internal/storage"
)

type fakeStore struct {
	job     map[string]interface{}
	pages   []*storage.PageRecord
	matches []*storage.BlockMatch

	searchLimit int
	searchJob   string
	closed      bool
}

func (s *fakeStore) GetJobByID(ctx context.Context, jobID string) (map[string]interface{}, error) {
	return s.job, nil
}

func (s *fakeStore) GetPages(ctx context.Context, jobID string) ([]*storage.PageRecord, error) {
	return s.pages, nil
}

func (s *fakeStore) GetStats(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{"postgres": map[string]interface{}{"open_connections": 1}}, nil
}

func (s *fakeStore) SearchBlocks(ctx context.Context, queryVector []float32, limit int, jobID string) ([]*storage.BlockMatch, error) {
	s.searchLimit = limit
	s.searchJob = jobID
	return s.matches, nil
}

func (s *fakeStore) Close() error {
	s.closed = true
	return nil
}

type fakeQueue struct {
	payload *queue.JobPayload
}

func (q *fakeQueue) Enqueue(ctx context.Context, payload *queue.JobPayload) (string, error) {
	q.payload = payload
	return payload.JobID, nil
}

func (q *fakeQueue) Stats(ctx context.Context) (map[string]int64, error) {
	return map[string]int64{"waiting": 2, "failed": 1}, nil
}

func (q *fakeQueue) Close() error { return nil }

type fakeEmbedder struct {
	query string
}

func (e *fakeEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	e.query = text
	return []float32{1, 0, 0}, nil
}

func fakeBackends(store *fakeStore, q *fakeQueue, e *fakeEmbedder) *backends {
	return &backends{
		openStore:    func() (jobStore, error) { return store, nil },
		openQueue:    func() (jobQueue, error) { return q, nil },
		openEmbedder: func() (queryEmbedder, error) { return e, nil },
	}
}

func execute(t *testing.T, b *backends, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommandWith(b)
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func samplePage() *exporter.Page {
	word := func(i int, text string, x int) *exporter.Node {
		return &exporter.Node{Level: ocrtree.Word, Index: i, Text: text, Confidence: 91.5, BBox: exporter.BBox{x, 10, x + 40, 30}}
	}
	return &exporter.Page{
		PageNumber: 2,
		Text:       "hello world",
		Blocks: []*exporter.Node{{
			Level:    ocrtree.Block,
			Text:     "hello world",
			Children: []*exporter.Node{word(0, "hello", 0), word(1, "world", 50)},
		}},
	}
}

func TestJobShow(t *testing.T) {
	store := &fakeStore{
		job: map[string]interface{}{"id": "job-1", "status": "completed"},
		pages: []*storage.PageRecord{
			{ID: "p1", JobID: "job-1", PageNumber: 1, Text: "hello world", WordCount: 2, Page: samplePage()},
		},
	}

	tests := []struct {
		name     string
		args     []string
		wantTree bool
	}{
		{"summary", []string{"job", "show", "job-1"}, false},
		{"with tree", []string{"job", "show", "--tree", "job-1"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, fakeBackends(store, &fakeQueue{}, &fakeEmbedder{}), tt.args...)
			if err != nil {
				t.Fatalf("job show failed: %v", err)
			}

			var got struct {
				Job   map[string]interface{}   `json:"job"`
				Pages []map[string]interface{} `json:"pages"`
			}
			if err := json.Unmarshal([]byte(out), &got); err != nil {
				t.Fatalf("output is not JSON: %v\n%s", err, out)
			}
			if got.Job["status"] != "completed" {
				t.Errorf("job = %v, want status completed", got.Job)
			}
			if len(got.Pages) != 1 || got.Pages[0]["wordCount"] != float64(2) {
				t.Fatalf("pages = %v, want one page with 2 words", got.Pages)
			}
			if _, ok := got.Pages[0]["tree"]; ok != tt.wantTree {
				t.Errorf("tree present = %v, want %v", ok, tt.wantTree)
			}
			if !store.closed {
				t.Error("store not closed")
			}
		})
	}
}

func TestJobSearch(t *testing.T) {
	store := &fakeStore{matches: []*storage.BlockMatch{{
		BlockPoint: storage.BlockPoint{JobID: "job-1", PageNumber: 3, BlockIndex: 1, Text: "total\n  due"},
		Score:      0.875,
	}}}
	embedder := &fakeEmbedder{}

	out, err := execute(t, fakeBackends(store, &fakeQueue{}, embedder), "job", "search", "--job", "job-1", "--limit", "5", "amount due")
	if err != nil {
		t.Fatalf("job search failed: %v", err)
	}

	if embedder.query != "amount due" {
		t.Errorf("embedded query = %q, want %q", embedder.query, "amount due")
	}
	if store.searchLimit != 5 || store.searchJob != "job-1" {
		t.Errorf("search limit=%d job=%q, want 5 job-1", store.searchLimit, store.searchJob)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want header and one match:\n%s", len(lines), out)
	}
	for _, want := range []string{"0.8750", "job-1", "total due"} {
		if !strings.Contains(lines[1], want) {
			t.Errorf("match line %q missing %q", lines[1], want)
		}
	}
}

func TestJobSearchRejectsLimit(t *testing.T) {
	_, err := execute(t, fakeBackends(&fakeStore{}, &fakeQueue{}, &fakeEmbedder{}), "job", "search", "--limit", "0", "query")
	if err == nil || !strings.Contains(err.Error(), "--limit") {
		t.Errorf("err = %v, want --limit error", err)
	}
}

func TestStats(t *testing.T) {
	out, err := execute(t, fakeBackends(&fakeStore{}, &fakeQueue{}, &fakeEmbedder{}), "stats")
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}

	var got struct {
		Storage map[string]interface{} `json:"storage"`
		Queue   map[string]int64       `json:"queue"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if got.Queue["waiting"] != 2 || got.Queue["failed"] != 1 {
		t.Errorf("queue = %v, want waiting 2 failed 1", got.Queue)
	}
	if _, ok := got.Storage["postgres"]; !ok {
		t.Errorf("storage = %v, want postgres entry", got.Storage)
	}
}

func writeImages(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
		if err := os.WriteFile(paths[i], []byte("image "+name), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return paths
}

func TestEnqueue(t *testing.T) {
	paths := writeImages(t, "scan-1.png", "scan-2.png")
	q := &fakeQueue{}

	args := append([]string{"enqueue", "--skew", "1.5"}, paths...)
	out, err := execute(t, fakeBackends(&fakeStore{}, q, &fakeEmbedder{}), args...)
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	p := q.payload
	if p == nil {
		t.Fatal("nothing enqueued")
	}
	if strings.TrimSpace(out) != p.JobID || p.JobID == "" {
		t.Errorf("printed %q, want job ID %q", out, p.JobID)
	}
	if p.Filename != "scan-1.png" || p.UserID != "anonymous" {
		t.Errorf("filename=%q user=%q, want scan-1.png anonymous", p.Filename, p.UserID)
	}
	if len(p.Pages) != 2 || string(p.Pages[1].Image) != "image scan-2.png" || p.Pages[0].Skew != 1.5 {
		t.Errorf("pages = %+v, want both images with skew 1.5", p.Pages)
	}
	if p.FileSize != int64(len("image scan-1.png")+len("image scan-2.png")) {
		t.Errorf("FileSize = %d", p.FileSize)
	}
}

func TestBuildJobMissingFile(t *testing.T) {
	_, err := buildJob([]string{filepath.Join(t.TempDir(), "missing.png")}, &enqueueFlags{}, "job-1")
	if err == nil || !strings.Contains(err.Error(), "missing.png") {
		t.Errorf("err = %v, want read error naming the file", err)
	}
}

func TestWriteWords(t *testing.T) {
	var out bytes.Buffer
	if err := writeWords(&out, []*exporter.Page{samplePage()}); err != nil {
		t.Fatalf("writeWords failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header and two words:\n%s", len(lines), out.String())
	}

	tests := []struct {
		line int
		want []string
	}{
		{1, []string{"2", "0", "40", "91.50", "hello"}},
		{2, []string{"2", "1", "90", "91.50", "world"}},
	}
	for _, tt := range tests {
		fields := strings.Fields(lines[tt.line])
		if len(fields) != 8 {
			t.Errorf("line %d = %q, want 8 columns", tt.line, lines[tt.line])
			continue
		}
		got := []string{fields[0], fields[1], fields[4], fields[6], fields[7]}
		for i := range tt.want {
			if got[i] != tt.want[i] {
				t.Errorf("line %d column values = %v, want %v", tt.line, got, tt.want)
				break
			}
		}
	}
}
