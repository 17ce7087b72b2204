package tesseract

import (
	"errors"
	"io"
	"sync"

	"github.com/adverant/nexus/ocrtree-worker/internal/ocrtree"
)

// ErrOCRNotEnabled is returned when the binary was built without Tesseract
// support. Rebuild with -tags ocr to enable it.
var ErrOCRNotEnabled = errors.New("OCR support not enabled; rebuild with -tags ocr")

// Options configures an Engine
type Options struct {
	Languages   []string          // e.g. eng, deu; joined with "+"
	PageSegMode int               // Tesseract PSM 0-13
	Threads     int               // OMP thread limit, 0 leaves the default
	Variables   map[string]string // extra Tesseract variables
}

// Page is one recognized page. It owns the engine handle that produced it
// and must be released exactly once; cursors over it are invalid afterwards.
type Page struct {
	*ocrtree.FlatResult

	handle io.Closer
	once   sync.Once
	err    error
}

func newPage(result *ocrtree.FlatResult, handle io.Closer) *Page {
	return &Page{FlatResult: result, handle: handle}
}

// Release closes the engine handle. Later calls are no-ops.
func (p *Page) Release() {
	p.once.Do(func() {
		if p.handle != nil {
			p.err = p.handle.Close()
		}
		p.FlatResult = nil
	})
}

// ReleaseErr returns the error from closing the engine handle, if any
func (p *Page) ReleaseErr() error {
	return p.err
}
