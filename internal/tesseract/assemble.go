/**
 * Result assembly
 *
 * Converts Tesseract's per-level box lists into a validated flat result.
 * Words carry their block/paragraph/line numbers; symbols are matched to
 * words in reading order by box containment, falling back to rune count.
 */

package tesseract

import (
	"errors"
	"fmt"
	"image"
	"strings"
	"unicode/utf8"

	"github.com/adverant/nexus/ocrtree-worker/internal/logging"
	"github.com/adverant/nexus/ocrtree-worker/internal/ocrtree"
)

// ErrInconsistentResult is returned when symbol and word boxes disagree
var ErrInconsistentResult = errors.New("inconsistent recognition result")

// recognizedBox mirrors one gosseract bounding box
type recognizedBox struct {
	Box        image.Rectangle
	Text       string
	Confidence float64
	BlockNum   int
	ParNum     int
	LineNum    int
}

// recognition is the raw engine output of one page
type recognition struct {
	Words      []recognizedBox
	Symbols    []recognizedBox
	Blocks     []image.Rectangle
	Paragraphs []image.Rectangle
	Lines      []image.Rectangle
}

type lineKey struct{ block, par, line int }

// group is one block, paragraph or line instance found in the word list
type group struct {
	union image.Rectangle
}

type plannedWord struct {
	box      recognizedBox
	text     string
	newBlock bool
	newPar   bool
	newLine  bool
}

// assemble builds a flat result from one page of recognition output
func assemble(rec recognition, logger *logging.Logger) (*ocrtree.FlatResult, error) {
	var words []plannedWord
	var blocks, paras, lines []group
	var prev lineKey
	first := true

	for _, w := range rec.Words {
		text := strings.TrimSpace(w.Text)
		if text == "" {
			continue
		}
		key := lineKey{w.BlockNum, w.ParNum, w.LineNum}
		pw := plannedWord{box: w, text: text}
		pw.newBlock = first || key.block != prev.block
		pw.newPar = pw.newBlock || key.par != prev.par
		pw.newLine = pw.newPar || key.line != prev.line
		first = false
		prev = key

		if pw.newBlock {
			blocks = append(blocks, group{})
		}
		if pw.newPar {
			paras = append(paras, group{})
		}
		if pw.newLine {
			lines = append(lines, group{})
		}
		extend(&blocks[len(blocks)-1], w.Box)
		extend(&paras[len(paras)-1], w.Box)
		extend(&lines[len(lines)-1], w.Box)

		words = append(words, pw)
	}

	runs, err := assignSymbols(words, rec.Symbols)
	if err != nil {
		return nil, err
	}

	blockBoxes := levelBoxes(ocrtree.Block, rec.Blocks, blocks, logger)
	paraBoxes := levelBoxes(ocrtree.Paragraph, rec.Paragraphs, paras, logger)
	lineBoxes := levelBoxes(ocrtree.Line, rec.Lines, lines, logger)

	b := ocrtree.NewBuilder()
	var nb, np, nl int
	for i, w := range words {
		if w.newBlock {
			b.StartBlock(blockBoxes[nb])
			nb++
		}
		if w.newPar {
			b.StartParagraph(paraBoxes[np])
			np++
		}
		if w.newLine {
			b.StartLine(lineBoxes[nl])
			nl++
		}
		b.StartWord(w.box.Box)
		for _, s := range runs[i] {
			b.AddChar(s.Text, clampConfidence(s.Confidence), s.Box)
		}
	}

	return b.Build()
}

// assignSymbols splits the symbol list into one run per word. A word takes
// the following symbols whose centre lies in its box, so a ligature reported
// as one symbol still lands in its word. When no symbol falls in the box the
// word takes as many symbols as it has runes.
func assignSymbols(words []plannedWord, symbols []recognizedBox) ([][]recognizedBox, error) {
	runs := make([][]recognizedBox, len(words))
	ns := 0
	for i, w := range words {
		start := ns
		for ns < len(symbols) && center(symbols[ns].Box).In(w.box.Box) {
			ns++
		}
		if ns == start {
			n := utf8.RuneCountInString(w.text)
			if start+n > len(symbols) {
				return nil, fmt.Errorf("%w: word %d needs %d symbols, %d left", ErrInconsistentResult, i, n, len(symbols)-start)
			}
			ns = start + n
		}
		runs[i] = symbols[start:ns]
	}
	if ns != len(symbols) {
		return nil, fmt.Errorf("%w: %d symbols left after %d words", ErrInconsistentResult, len(symbols)-ns, len(words))
	}
	return runs, nil
}

func center(r image.Rectangle) image.Point {
	return image.Pt((r.Min.X+r.Max.X)/2, (r.Min.Y+r.Max.Y)/2)
}

func extend(g *group, r image.Rectangle) {
	g.union = g.union.Union(r)
}

// levelBoxes prefers the engine's native boxes; when their count does not
// match the instances found in the word list it falls back to word unions
func levelBoxes(level ocrtree.Level, native []image.Rectangle, groups []group, logger *logging.Logger) []image.Rectangle {
	if len(native) == len(groups) {
		return native
	}
	if logger != nil {
		logger.Warn("native level boxes do not match word groups, using word union",
			"level", level, "native", len(native), "groups", len(groups))
	}
	out := make([]image.Rectangle, len(groups))
	for i, g := range groups {
		out[i] = g.union
	}
	return out
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 100:
		return 100
	}
	return c
}
