package processor

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/adverant/nexus/ocrtree-worker/internal/exporter"
	"github.com/adverant/nexus/ocrtree-worker/internal/ocrtree"
	"github.com/adverant/nexus/ocrtree-worker/internal/tesseract"
)

// RecognizedPage is one engine result. The processor owns it from
// Recognize until Release, which it calls exactly once.
type RecognizedPage interface {
	ocrtree.Accessor
	Release()
}

// Recognizer produces one engine result per page image
type Recognizer interface {
	Recognize(ctx context.Context, imageData []byte) (RecognizedPage, error)
}

type tesseractRecognizer struct {
	engine *tesseract.Engine
}

// NewTesseractRecognizer adapts a Tesseract engine to Recognizer
func NewTesseractRecognizer(engine *tesseract.Engine) Recognizer {
	return &tesseractRecognizer{engine: engine}
}

func (r *tesseractRecognizer) Recognize(ctx context.Context, imageData []byte) (RecognizedPage, error) {
	page, err := r.engine.Recognize(ctx, imageData)
	if err != nil {
		return nil, err
	}
	return page, nil
}

// PageOrigin returns the centre of the page image, the point rotation and
// skew are applied about. ok is false when the image header can't be read.
func PageOrigin(imageData []byte) (origin exporter.Point, ok bool) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(imageData))
	if err != nil {
		return exporter.Point{}, false
	}
	return exporter.Point{X: float64(cfg.Width) / 2, Y: float64(cfg.Height) / 2}, true
}
