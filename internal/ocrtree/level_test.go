package ocrtree

import "testing"

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{"block", Block, false},
		{"Paragraph", Paragraph, false},
		{"para", Paragraph, false},
		{" line ", Line, false},
		{"textline", Line, false},
		{"WORD", Word, false},
		{"symbol", Symbol, false},
		{"char", Symbol, false},
		{"page", Block, true},
		{"", Block, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestLevelRoundTrip(t *testing.T) {
	for _, level := range Levels {
		got, err := ParseLevel(level.String())
		if err != nil || got != level {
			t.Errorf("ParseLevel(%q) = %v, %v", level.String(), got, err)
		}
	}
}

func TestLevelNeighbours(t *testing.T) {
	if Symbol.Child() != Symbol {
		t.Error("Symbol must be its own child")
	}
	for i, level := range Levels[:len(Levels)-1] {
		if level.Child() != Levels[i+1] {
			t.Errorf("%v.Child() = %v, want %v", level, level.Child(), Levels[i+1])
		}
	}
	if Level(7).Valid() || !Word.Valid() {
		t.Error("Valid() misreports level range")
	}
}

func TestLevelText(t *testing.T) {
	text, err := Paragraph.MarshalText()
	if err != nil || string(text) != "paragraph" {
		t.Fatalf("MarshalText() = %q, %v", text, err)
	}

	var l Level
	if err := l.UnmarshalText([]byte("textline")); err != nil || l != Line {
		t.Errorf("UnmarshalText(textline) = %v, %v", l, err)
	}
	if _, err := Level(-1).MarshalText(); err == nil {
		t.Error("MarshalText() on invalid level succeeded")
	}
}
