//go:build !ocr

// Package tesseract recognizes page images with the Tesseract engine via
// gosseract and exposes each result as an ocrtree.Accessor.
//
// This is the stub implementation used when the "ocr" build tag is not set.
// NewEngine returns ErrOCRNotEnabled. To enable OCR, rebuild with:
//
//	go build -tags ocr
package tesseract

import "context"

// Engine is a stub engine that cannot recognize anything
type Engine struct{}

// NewEngine returns an error indicating OCR support is not enabled
func NewEngine(opts Options) (*Engine, error) {
	return nil, ErrOCRNotEnabled
}

// Recognize returns ErrOCRNotEnabled. It is safe to call on a nil engine.
func (e *Engine) Recognize(ctx context.Context, imageData []byte) (*Page, error) {
	return nil, ErrOCRNotEnabled
}
