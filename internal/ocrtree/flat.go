/**
 * FlatResult - in-memory Accessor
 *
 * Arena of five parallel slices indexed by position. Engine adapters copy
 * their output into a FlatResult through Builder, which validates the
 * partition before handing out a result.
 */

package ocrtree

import (
	"errors"
	"fmt"
	"image"
)

// ErrEmptyScope is returned by Build when a level instance has no children
var ErrEmptyScope = errors.New("level instance has no children")

// ErrNoOpenScope is returned by Build when an element was added without an enclosing parent
var ErrNoOpenScope = errors.New("no enclosing level instance")

type flatChar struct {
	text       string
	confidence float64
	bounds     image.Rectangle
	word       int
}

type flatWord struct {
	line      int
	firstChar int
	bounds    image.Rectangle
}

type flatLine struct {
	para      int
	firstWord int
	bounds    image.Rectangle
}

type flatParagraph struct {
	block     int
	firstLine int
	bounds    image.Rectangle
}

type flatBlock struct {
	firstPara int
	bounds    image.Rectangle
}

// FlatResult is an immutable Accessor backed by slices
type FlatResult struct {
	chars  []flatChar
	words  []flatWord
	lines  []flatLine
	paras  []flatParagraph
	blocks []flatBlock
}

var _ Accessor = (*FlatResult)(nil)

func (r *FlatResult) CharCount() int { return len(r.chars) }
func (r *FlatResult) CharText(char int) string { return r.chars[char].text }
func (r *FlatResult) CharConfidence(char int) float64 { return r.chars[char].confidence }
func (r *FlatResult) CharWord(char int) int { return r.chars[char].word }
func (r *FlatResult) WordLine(word int) int { return r.words[word].line }
func (r *FlatResult) WordFirstChar(word int) int { return r.words[word].firstChar }
func (r *FlatResult) LineParagraph(line int) int { return r.lines[line].para }
func (r *FlatResult) LineFirstWord(line int) int { return r.lines[line].firstWord }
func (r *FlatResult) ParagraphBlock(para int) int { return r.paras[para].block }
func (r *FlatResult) ParagraphFirstLine(para int) int { return r.paras[para].firstLine }
func (r *FlatResult) BlockFirstParagraph(block int) int { return r.blocks[block].firstPara }

func (r *FlatResult) BlockBounds(block int) image.Rectangle { return r.blocks[block].bounds }
func (r *FlatResult) ParagraphBounds(para int) image.Rectangle { return r.paras[para].bounds }
func (r *FlatResult) LineBounds(line int) image.Rectangle { return r.lines[line].bounds }
func (r *FlatResult) WordBounds(word int) image.Rectangle { return r.words[word].bounds }
func (r *FlatResult) CharBounds(char int) image.Rectangle { return r.chars[char].bounds }

// Count returns the number of instances of a level
func (r *FlatResult) Count(level Level) int {
	switch level {
	case Block:
		return len(r.blocks)
	case Paragraph:
		return len(r.paras)
	case Line:
		return len(r.lines)
	case Word:
		return len(r.words)
	case Symbol:
		return len(r.chars)
	}
	return 0
}

// Builder assembles a FlatResult in reading order.
//
// Calls must nest: StartBlock, then StartParagraph, StartLine, StartWord and
// AddChar. Starting a level closes the currently open instance of that level
// and of every finer level.
type Builder struct {
	result FlatResult
	err    error
}

// NewBuilder returns an empty builder
func NewBuilder() *Builder {
	return &Builder{}
}

// StartBlock opens a new block
func (b *Builder) StartBlock(bounds image.Rectangle) *Builder {
	b.result.blocks = append(b.result.blocks, flatBlock{
		firstPara: len(b.result.paras),
		bounds:    bounds,
	})
	return b
}

// StartParagraph opens a new paragraph in the current block
func (b *Builder) StartParagraph(bounds image.Rectangle) *Builder {
	if len(b.result.blocks) == 0 {
		b.fail(fmt.Errorf("paragraph %d: %w", len(b.result.paras), ErrNoOpenScope))
		return b
	}
	b.result.paras = append(b.result.paras, flatParagraph{
		block:     len(b.result.blocks) - 1,
		firstLine: len(b.result.lines),
		bounds:    bounds,
	})
	return b
}

// StartLine opens a new line in the current paragraph
func (b *Builder) StartLine(bounds image.Rectangle) *Builder {
	if len(b.result.paras) == 0 {
		b.fail(fmt.Errorf("line %d: %w", len(b.result.lines), ErrNoOpenScope))
		return b
	}
	b.result.lines = append(b.result.lines, flatLine{
		para:      len(b.result.paras) - 1,
		firstWord: len(b.result.words),
		bounds:    bounds,
	})
	return b
}

// StartWord opens a new word in the current line
func (b *Builder) StartWord(bounds image.Rectangle) *Builder {
	if len(b.result.lines) == 0 {
		b.fail(fmt.Errorf("word %d: %w", len(b.result.words), ErrNoOpenScope))
		return b
	}
	b.result.words = append(b.result.words, flatWord{
		line:      len(b.result.lines) - 1,
		firstChar: len(b.result.chars),
		bounds:    bounds,
	})
	return b
}

// AddChar appends a character to the current word
func (b *Builder) AddChar(text string, confidence float64, bounds image.Rectangle) *Builder {
	if len(b.result.words) == 0 {
		b.fail(fmt.Errorf("character %d: %w", len(b.result.chars), ErrNoOpenScope))
		return b
	}
	b.result.chars = append(b.result.chars, flatChar{
		text:       text,
		confidence: confidence,
		bounds:     bounds,
		word:       len(b.result.words) - 1,
	})
	return b
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Build validates the partition and returns the result.
// The builder must not be used afterwards.
func (b *Builder) Build() (*FlatResult, error) {
	if b.err != nil {
		return nil, b.err
	}

	r := &b.result
	for i, blk := range r.blocks {
		if next := nextFirst(i, len(r.blocks), len(r.paras), func(j int) int { return r.blocks[j].firstPara }); next <= blk.firstPara {
			return nil, fmt.Errorf("block %d: %w", i, ErrEmptyScope)
		}
	}
	for i, p := range r.paras {
		if next := nextFirst(i, len(r.paras), len(r.lines), func(j int) int { return r.paras[j].firstLine }); next <= p.firstLine {
			return nil, fmt.Errorf("paragraph %d: %w", i, ErrEmptyScope)
		}
	}
	for i, l := range r.lines {
		if next := nextFirst(i, len(r.lines), len(r.words), func(j int) int { return r.lines[j].firstWord }); next <= l.firstWord {
			return nil, fmt.Errorf("line %d: %w", i, ErrEmptyScope)
		}
	}
	for i, w := range r.words {
		if next := nextFirst(i, len(r.words), len(r.chars), func(j int) int { return r.words[j].firstChar }); next <= w.firstChar {
			return nil, fmt.Errorf("word %d: %w", i, ErrEmptyScope)
		}
	}

	return r, nil
}

// nextFirst returns the first child index of instance i+1, or total for the last instance
func nextFirst(i, n, total int, first func(int) int) int {
	if i+1 < n {
		return first(i + 1)
	}
	return total
}
