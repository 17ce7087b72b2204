package ocrtree

import "testing"

func TestNewCursorSyncsIndices(t *testing.T) {
	page := layeredPage(t)

	tests := []struct {
		char int
		want position
	}{
		{0, position{Char: 0, Word: 0, Line: 0, Paragraph: 0, Block: 0}},
		{4, position{Char: 4, Word: 1, Line: 0, Paragraph: 0, Block: 0}},
		{6, position{Char: 6, Word: 2, Line: 1, Paragraph: 0, Block: 0}},
		{11, position{Char: 11, Word: 4, Line: 2, Paragraph: 1, Block: 0}},
		{12, position{Char: 12, Word: 5, Line: 3, Paragraph: 2, Block: 1}},
	}

	for _, tt := range tests {
		got := NewCursorAt(page, tt.char).position()
		if got != tt.want {
			t.Errorf("NewCursorAt(%d).position() = %+v, want %+v", tt.char, got, tt.want)
		}
	}
}

func TestExhaustedCursor(t *testing.T) {
	empty, err := NewBuilder().Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	tests := []struct {
		name   string
		cursor Cursor
	}{
		{"empty result", NewCursor(empty)},
		{"past end", NewCursorAt(scenarioPage(t), 6)},
		{"negative", NewCursorAt(scenarioPage(t), -1)},
		{"nil result", NewCursor(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.cursor
			if c.IsAtCharacter() {
				t.Fatal("IsAtCharacter() = true, want false")
			}
			pos := c.position()
			if pos.Word != -1 || pos.Line != -1 || pos.Paragraph != -1 || pos.Block != -1 {
				t.Errorf("derived indices = %+v, want all -1", pos)
			}
			for _, level := range Levels {
				if c.IsAtBeginningOf(level) {
					t.Errorf("IsAtBeginningOf(%v) = true on exhausted cursor", level)
				}
				if got := c.Confidence(level); got != 0 {
					t.Errorf("Confidence(%v) = %v, want 0", level, got)
				}
				if got := c.Text(level); got != "" {
					t.Errorf("Text(%v) = %q, want empty", level, got)
				}
				if c.Next(level, level) || c.Prev(level, level) {
					t.Errorf("movement at level %v succeeded on exhausted cursor", level)
				}
			}
		})
	}
}

func TestIsAtBeginningOfSymbolOnEveryCharacter(t *testing.T) {
	for _, c := range positions(layeredPage(t)) {
		if !c.IsAtBeginningOf(Symbol) {
			t.Errorf("IsAtBeginningOf(Symbol) = false at character %d", c.Char())
		}
	}
}

func TestBeginningImpliesFinerBeginnings(t *testing.T) {
	for _, c := range positions(layeredPage(t)) {
		for _, level := range Levels {
			if !c.IsAtBeginningOf(level) {
				continue
			}
			for finer := level; finer <= Symbol; finer++ {
				if !c.IsAtBeginningOf(finer) {
					t.Errorf("character %d: beginning of %v but not of %v", c.Char(), level, finer)
				}
			}
		}
	}
}

func TestBeginningsOnLayeredPage(t *testing.T) {
	page := layeredPage(t)

	want := map[Level][]int{
		Block:     {0, 12},
		Paragraph: {0, 10, 12},
		Line:      {0, 6, 10, 12},
		Word:      {0, 3, 6, 7, 10, 12},
	}

	for level, chars := range want {
		var got []int
		for _, c := range positions(page) {
			if c.IsAtBeginningOf(level) {
				got = append(got, c.Char())
			}
		}
		if !equalInts(got, chars) {
			t.Errorf("beginnings of %v = %v, want %v", level, got, chars)
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	original := NewCursor(layeredPage(t))
	clone := original.Clone()

	if !clone.Next(Block, Block) {
		t.Fatal("clone.Next(Block, Block) = false, want true")
	}
	if original.Char() != 0 {
		t.Errorf("original moved to %d after clone moved", original.Char())
	}
	if clone.Result() != original.Result() {
		t.Error("clone does not share the accessor")
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
