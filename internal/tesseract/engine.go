//go:build ocr

// Package tesseract recognizes page images with the Tesseract engine via
// gosseract and exposes each result as an ocrtree.Accessor.
//
// It requires Tesseract and its language data to be installed. On
// Ubuntu/Debian:
//
//	apt-get install tesseract-ocr libtesseract-dev
package tesseract

import (
	"context"
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/adverant/nexus/ocrtree-worker/internal/logging"
)

// Engine runs Tesseract on page images. A new client is created per page.
type Engine struct {
	opts   Options
	logger *logging.Logger
}

// NewEngine creates a Tesseract engine
func NewEngine(opts Options) (*Engine, error) {
	if len(opts.Languages) == 0 {
		opts.Languages = []string{"eng"}
	}
	if opts.PageSegMode < 0 || opts.PageSegMode > 13 {
		return nil, fmt.Errorf("invalid page segmentation mode %d", opts.PageSegMode)
	}
	if opts.Threads > 0 {
		// Tesseract reads its OpenMP limit from the environment
		if err := os.Setenv("OMP_THREAD_LIMIT", strconv.Itoa(opts.Threads)); err != nil {
			return nil, fmt.Errorf("failed to set thread limit: %w", err)
		}
	}

	return &Engine{
		opts:   opts,
		logger: logging.NewLogger("Tesseract"),
	}, nil
}

// Recognize performs OCR on one page image (PNG, TIFF, JPEG, etc.)
func (e *Engine) Recognize(ctx context.Context, imageData []byte) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	page, err := e.recognize(client, imageData)
	if err != nil {
		client.Close()
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		page.Release()
		return nil, err
	}
	return page, nil
}

func (e *Engine) recognize(client *gosseract.Client, imageData []byte) (*Page, error) {
	if err := client.SetLanguage(e.opts.Languages...); err != nil {
		return nil, fmt.Errorf("failed to set languages %s: %w", strings.Join(e.opts.Languages, "+"), err)
	}
	if err := client.SetPageSegMode(gosseract.PageSegMode(e.opts.PageSegMode)); err != nil {
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	for key, value := range e.opts.Variables {
		if err := client.SetVariable(gosseract.SettableVariable(key), value); err != nil {
			return nil, fmt.Errorf("failed to set variable %s: %w", key, err)
		}
	}

	if err := client.SetImageFromBytes(imageData); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	words, err := client.GetBoundingBoxesVerbose()
	if err != nil {
		return nil, fmt.Errorf("tesseract word boxes failed: %w", err)
	}
	symbols, err := client.GetBoundingBoxes(gosseract.RIL_SYMBOL)
	if err != nil {
		return nil, fmt.Errorf("tesseract symbol boxes failed: %w", err)
	}
	blocks, err := levelRects(client, gosseract.RIL_BLOCK)
	if err != nil {
		return nil, err
	}
	paras, err := levelRects(client, gosseract.RIL_PARA)
	if err != nil {
		return nil, err
	}
	lines, err := levelRects(client, gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, err
	}

	rec := recognition{
		Words:      make([]recognizedBox, len(words)),
		Symbols:    make([]recognizedBox, len(symbols)),
		Blocks:     blocks,
		Paragraphs: paras,
		Lines:      lines,
	}
	for i, w := range words {
		rec.Words[i] = recognizedBox{
			Box:        w.Box,
			Text:       w.Word,
			Confidence: w.Confidence,
			BlockNum:   w.BlockNum,
			ParNum:     w.ParNum,
			LineNum:    w.LineNum,
		}
	}
	for i, s := range symbols {
		rec.Symbols[i] = recognizedBox{Box: s.Box, Text: s.Word, Confidence: s.Confidence}
	}

	logger := e.logger.With("languages", strings.Join(e.opts.Languages, "+"), "psm", e.opts.PageSegMode)
	result, err := assemble(rec, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble page: %w", err)
	}

	logger.Debug("page recognized",
		"blocks", len(blocks), "lines", len(lines), "words", len(words), "symbols", len(symbols))

	return newPage(result, client), nil
}

func levelRects(client *gosseract.Client, level gosseract.PageIteratorLevel) ([]image.Rectangle, error) {
	boxes, err := client.GetBoundingBoxes(level)
	if err != nil {
		return nil, fmt.Errorf("tesseract boxes at level %d failed: %w", level, err)
	}
	out := make([]image.Rectangle, 0, len(boxes))
	for _, b := range boxes {
		if strings.TrimSpace(b.Word) == "" {
			continue
		}
		out = append(out, b.Box)
	}
	return out, nil
}
