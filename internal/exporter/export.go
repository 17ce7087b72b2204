/**
 * Tree Exporter
 *
 * Walks one recognized page exactly once with the ocrtree cursor and emits
 * a nested Block -> Paragraph -> Line -> Word -> Symbol document carrying
 * text, confidence and geometry for every node.
 */

package exporter

import (
	"image"
	"strings"

	"github.com/adverant/nexus/ocrtree-worker/internal/ocrtree"
)

// Options controls page-level metadata and the geometry transform
type Options struct {
	PageNumber int     // 1-based
	Rotation   float64 // degrees
	Skew       float64 // degrees
	Origin     Point   // rotation/skew center
}

// Node is one level instance in the exported tree
type Node struct {
	Level      ocrtree.Level `json:"level"`
	Index      int           `json:"index"` // page-wide index of this level instance
	Text       string        `json:"text"`
	Confidence float64       `json:"confidence"`
	BBox       BBox          `json:"bbox"`
	Polygon    Polygon       `json:"polygon"`
	Children   []*Node       `json:"children,omitempty"`
}

// Page is the exported tree of one recognized page
type Page struct {
	PageNumber  int     `json:"pageNumber"`
	Rotation    float64 `json:"rotation"`
	Skew        float64 `json:"skew"`
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
	BBox        BBox    `json:"bbox"`
	WordCount   int     `json:"wordCount"`
	SymbolCount int     `json:"symbolCount"`
	Blocks      []*Node `json:"blocks"`
}

// Separators between the children of a node, by parent level
var childSeparator = map[ocrtree.Level]string{
	ocrtree.Block:     "\n",
	ocrtree.Paragraph: "\n",
	ocrtree.Line:      " ",
}

const blockSeparator = "\n\n"

type walker struct {
	matrix  Matrix
	bounds  image.Rectangle
	words   int
	symbols int
	confSum float64
}

// Export converts a recognized page into a Page.
// An empty result yields a page with no blocks and empty text.
func Export(r ocrtree.Accessor, opts Options) *Page {
	page := &Page{
		PageNumber: opts.PageNumber,
		Rotation:   opts.Rotation,
		Skew:       opts.Skew,
		Blocks:     []*Node{},
	}
	if r == nil || r.CharCount() == 0 {
		return page
	}

	w := &walker{matrix: opts.Matrix()}
	c := ocrtree.NewCursor(r)
	for {
		page.Blocks = append(page.Blocks, w.node(c, ocrtree.Block))
		if !c.Next(ocrtree.Block, ocrtree.Block) {
			break
		}
	}

	texts := make([]string, len(page.Blocks))
	for i, b := range page.Blocks {
		texts[i] = b.Text
	}
	page.Text = strings.Join(texts, blockSeparator)
	page.BBox = NewBBox(w.bounds)
	page.WordCount = w.words
	page.SymbolCount = w.symbols
	if w.symbols > 0 {
		page.Confidence = w.confSum / float64(w.symbols)
	}
	return page
}

// node emits the instance of level the cursor begins and all its descendants
func (w *walker) node(c ocrtree.Cursor, level ocrtree.Level) *Node {
	box, _ := c.BoundingBox(level)
	n := &Node{
		Level:      level,
		Index:      c.Index(level),
		Confidence: c.Confidence(level),
		BBox:       NewBBox(box),
		Polygon:    w.matrix.Polygon(box),
	}

	switch level {
	case ocrtree.Block:
		w.bounds = w.bounds.Union(box)
	case ocrtree.Word:
		w.words++
		n.Text = c.Text(level)
	case ocrtree.Symbol:
		w.symbols++
		w.confSum += n.Confidence
		n.Text = c.Text(level)
		return n
	}

	child := level.Child()
	for {
		n.Children = append(n.Children, w.node(c, child))
		if !c.Next(level, child) {
			break
		}
	}

	if level != ocrtree.Word {
		texts := make([]string, len(n.Children))
		for i, ch := range n.Children {
			texts[i] = ch.Text
		}
		n.Text = strings.Join(texts, childSeparator[level])
	}
	return n
}

// Words returns every word node of the page in reading order
func (p *Page) Words() []*Node {
	var words []*Node
	for _, b := range p.Blocks {
		words = append(words, collect(b, ocrtree.Word)...)
	}
	return words
}

func collect(n *Node, level ocrtree.Level) []*Node {
	if n.Level == level {
		return []*Node{n}
	}
	var out []*Node
	for _, ch := range n.Children {
		out = append(out, collect(ch, level)...)
	}
	return out
}
