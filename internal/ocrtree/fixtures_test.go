package ocrtree

import (
	"image"
	"testing"
)

// levelRect gives every instance a distinct native rectangle so tests can
// tell which accessor produced it
func levelRect(level Level, idx int) image.Rectangle {
	return image.Rect(idx*10, int(level)*100, idx*10+5, int(level)*100+5)
}

// buildPage builds a result from blocks -> paragraphs -> lines -> words.
// Each rune of a word becomes one character with confidence 50+index.
func buildPage(t *testing.T, blocks [][][][]string) *FlatResult {
	t.Helper()

	b := NewBuilder()
	var nb, np, nl, nw, nc int
	for _, paras := range blocks {
		b.StartBlock(levelRect(Block, nb))
		nb++
		for _, lines := range paras {
			b.StartParagraph(levelRect(Paragraph, np))
			np++
			for _, words := range lines {
				b.StartLine(levelRect(Line, nl))
				nl++
				for _, word := range words {
					b.StartWord(levelRect(Word, nw))
					nw++
					for _, r := range word {
						b.AddChar(string(r), float64(50+nc), levelRect(Symbol, nc))
						nc++
					}
				}
			}
		}
	}

	result, err := b.Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	return result
}

// scenarioPage is one block, paragraph and line holding the words "AB",
// "CD" and "E". The last word carries a trailing zero-width symbol so the
// line has six characters with confidences 90, 80, 100, 70, 60, 50.
func scenarioPage(t *testing.T) *FlatResult {
	t.Helper()

	b := NewBuilder()
	b.StartBlock(levelRect(Block, 0))
	b.StartParagraph(levelRect(Paragraph, 0))
	b.StartLine(levelRect(Line, 0))

	b.StartWord(levelRect(Word, 0))
	b.AddChar("A", 90, levelRect(Symbol, 0))
	b.AddChar("B", 80, levelRect(Symbol, 1))

	b.StartWord(levelRect(Word, 1))
	b.AddChar("C", 100, levelRect(Symbol, 2))
	b.AddChar("D", 70, levelRect(Symbol, 3))

	b.StartWord(levelRect(Word, 2))
	b.AddChar("E", 60, levelRect(Symbol, 4))
	b.AddChar("", 50, levelRect(Symbol, 5))

	result, err := b.Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	return result
}

// layeredPage spans every level boundary:
//
//	block 0 / para 0 / line 0: "The"(0-2) "cat"(3-5)
//	block 0 / para 0 / line 1: "a"(6) "dog"(7-9)
//	block 0 / para 1 / line 2: "Hi"(10-11)
//	block 1 / para 2 / line 3: "x"(12)
func layeredPage(t *testing.T) *FlatResult {
	return buildPage(t, [][][][]string{
		{
			{
				{"The", "cat"},
				{"a", "dog"},
			},
			{
				{"Hi"},
			},
		},
		{
			{
				{"x"},
			},
		},
	})
}

// positions lists every character position of a result
func positions(r Accessor) []Cursor {
	out := make([]Cursor, 0, r.CharCount())
	for i := 0; i < r.CharCount(); i++ {
		out = append(out, NewCursorAt(r, i))
	}
	return out
}
