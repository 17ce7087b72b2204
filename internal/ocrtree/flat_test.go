package ocrtree

import (
	"errors"
	"image"
	"testing"
)

func TestBuildRejectsEmptyScopes(t *testing.T) {
	r := image.Rect(0, 0, 1, 1)

	tests := []struct {
		name  string
		build func(b *Builder)
	}{
		{"empty block", func(b *Builder) {
			b.StartBlock(r)
		}},
		{"empty paragraph", func(b *Builder) {
			b.StartBlock(r).StartParagraph(r)
		}},
		{"empty line", func(b *Builder) {
			b.StartBlock(r).StartParagraph(r).StartLine(r)
		}},
		{"empty word", func(b *Builder) {
			b.StartBlock(r).StartParagraph(r).StartLine(r).StartWord(r)
		}},
		{"empty word between words", func(b *Builder) {
			b.StartBlock(r).StartParagraph(r).StartLine(r)
			b.StartWord(r).AddChar("a", 90, r)
			b.StartWord(r)
			b.StartWord(r).AddChar("b", 90, r)
		}},
		{"empty first block", func(b *Builder) {
			b.StartBlock(r)
			b.StartBlock(r).StartParagraph(r).StartLine(r).StartWord(r).AddChar("a", 90, r)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder()
			tt.build(b)
			_, err := b.Build()
			if !errors.Is(err, ErrEmptyScope) {
				t.Errorf("Build() error = %v, want ErrEmptyScope", err)
			}
		})
	}
}

func TestBuildRejectsMissingParent(t *testing.T) {
	r := image.Rect(0, 0, 1, 1)

	tests := []struct {
		name  string
		build func(b *Builder)
	}{
		{"paragraph", func(b *Builder) { b.StartParagraph(r) }},
		{"line", func(b *Builder) { b.StartBlock(r).StartLine(r) }},
		{"word", func(b *Builder) { b.StartBlock(r).StartParagraph(r).StartWord(r) }},
		{"character", func(b *Builder) { b.StartBlock(r).StartParagraph(r).StartLine(r).AddChar("a", 1, r) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder()
			tt.build(b)
			_, err := b.Build()
			if !errors.Is(err, ErrNoOpenScope) {
				t.Errorf("Build() error = %v, want ErrNoOpenScope", err)
			}
		})
	}
}

func TestBuildEmpty(t *testing.T) {
	result, err := NewBuilder().Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	for _, level := range Levels {
		if n := result.Count(level); n != 0 {
			t.Errorf("Count(%v) = %d, want 0", level, n)
		}
	}
}

func TestFlatResultLinks(t *testing.T) {
	page := layeredPage(t)

	counts := map[Level]int{Block: 2, Paragraph: 3, Line: 4, Word: 6, Symbol: 13}
	for level, want := range counts {
		if got := page.Count(level); got != want {
			t.Errorf("Count(%v) = %d, want %d", level, got, want)
		}
	}

	if got := page.BlockFirstParagraph(1); got != 2 {
		t.Errorf("BlockFirstParagraph(1) = %d, want 2", got)
	}
	if got := page.ParagraphFirstLine(1); got != 2 {
		t.Errorf("ParagraphFirstLine(1) = %d, want 2", got)
	}
	if got := page.LineFirstWord(1); got != 2 {
		t.Errorf("LineFirstWord(1) = %d, want 2", got)
	}
	if got := page.WordFirstChar(3); got != 7 {
		t.Errorf("WordFirstChar(3) = %d, want 7", got)
	}
	if got := page.CharText(7); got != "d" {
		t.Errorf("CharText(7) = %q, want d", got)
	}
	if got := page.CharConfidence(7); got != 57 {
		t.Errorf("CharConfidence(7) = %v, want 57", got)
	}
}

func TestFirstIndicesNonDecreasing(t *testing.T) {
	page := layeredPage(t)

	prev := position{}
	for _, c := range positions(page) {
		pos := c.position()
		if pos.Word < prev.Word || pos.Line < prev.Line || pos.Paragraph < prev.Paragraph || pos.Block < prev.Block {
			t.Errorf("indices decreased from %+v to %+v", prev, pos)
		}
		prev = pos
	}
}
