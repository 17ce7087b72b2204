package exporter

import (
	"encoding/json"
	"image"
	"math"
	"testing"

	"github.com/adverant/nexus/ocrtree-worker/internal/ocrtree"
)

// scenarioPage holds the words "AB", "CD" and "E" on one line; the last word
// carries a trailing zero-width symbol
func scenarioPage(t *testing.T) *ocrtree.FlatResult {
	t.Helper()

	b := ocrtree.NewBuilder()
	b.StartBlock(image.Rect(0, 0, 100, 20))
	b.StartParagraph(image.Rect(0, 0, 100, 20))
	b.StartLine(image.Rect(0, 0, 100, 20))

	b.StartWord(image.Rect(0, 0, 20, 20))
	b.AddChar("A", 90, image.Rect(0, 0, 10, 20))
	b.AddChar("B", 80, image.Rect(10, 0, 20, 20))

	b.StartWord(image.Rect(30, 0, 50, 20))
	b.AddChar("C", 100, image.Rect(30, 0, 40, 20))
	b.AddChar("D", 70, image.Rect(40, 0, 50, 20))

	b.StartWord(image.Rect(60, 0, 70, 20))
	b.AddChar("E", 60, image.Rect(60, 0, 70, 20))
	b.AddChar("", 50, image.Rect(70, 0, 70, 20))

	result, err := b.Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	return result
}

// twoBlockPage has two blocks, the first with two paragraphs
func twoBlockPage(t *testing.T) *ocrtree.FlatResult {
	t.Helper()

	r := image.Rect(0, 0, 10, 10)
	b := ocrtree.NewBuilder()
	word := func(text string) {
		b.StartWord(r)
		for _, ch := range text {
			b.AddChar(string(ch), 80, r)
		}
	}

	b.StartBlock(image.Rect(0, 0, 200, 100)).StartParagraph(r).StartLine(r)
	word("Hello")
	word("world")
	b.StartLine(r)
	word("again")
	b.StartParagraph(r).StartLine(r)
	word("Second")
	b.StartBlock(image.Rect(0, 200, 300, 250)).StartParagraph(r).StartLine(r)
	word("Footer")

	result, err := b.Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	return result
}

func TestExportScenario(t *testing.T) {
	page := Export(scenarioPage(t), Options{PageNumber: 1})

	if len(page.Blocks) != 1 {
		t.Fatalf("blocks = %d, want 1", len(page.Blocks))
	}
	para := page.Blocks[0].Children
	if len(para) != 1 || len(para[0].Children) != 1 {
		t.Fatalf("want one paragraph with one line, got %d paragraphs", len(para))
	}
	line := para[0].Children[0]
	if line.Level != ocrtree.Line {
		t.Errorf("line level = %v", line.Level)
	}

	var words []string
	for _, w := range line.Children {
		words = append(words, w.Text)
	}
	if len(words) != 3 || words[0] != "AB" || words[1] != "CD" || words[2] != "E" {
		t.Errorf("words = %q, want [AB CD E]", words)
	}

	if page.Text != "AB CD E" {
		t.Errorf("page text = %q, want %q", page.Text, "AB CD E")
	}
	if page.Confidence != 75 {
		t.Errorf("page confidence = %v, want 75", page.Confidence)
	}
	if line.Confidence != 75 {
		t.Errorf("line confidence = %v, want 75", line.Confidence)
	}
	if page.WordCount != 3 || page.SymbolCount != 6 {
		t.Errorf("counts = %d words, %d symbols; want 3, 6", page.WordCount, page.SymbolCount)
	}
	if got := line.Children[1].BBox; got != (BBox{30, 0, 50, 20}) {
		t.Errorf("word bbox = %v, want native rectangle", got)
	}
	if page.BBox != (BBox{0, 0, 100, 20}) {
		t.Errorf("page bbox = %v", page.BBox)
	}
}

func TestExportJoinsLevels(t *testing.T) {
	page := Export(twoBlockPage(t), Options{PageNumber: 2})

	want := "Hello world\nagain\nSecond\n\nFooter"
	if page.Text != want {
		t.Errorf("page text = %q, want %q", page.Text, want)
	}
	if len(page.Blocks) != 2 {
		t.Fatalf("blocks = %d, want 2", len(page.Blocks))
	}
	if got := len(page.Blocks[0].Children); got != 2 {
		t.Errorf("first block paragraphs = %d, want 2", got)
	}
	words := page.Words()
	if got := len(words); got != 5 {
		t.Errorf("Words() = %d, want 5", got)
	}
	for i, w := range words {
		if w.Index != i {
			t.Errorf("word %q index = %d, want %d", w.Text, w.Index, i)
		}
	}
	if got := page.Blocks[1].Index; got != 1 {
		t.Errorf("second block index = %d, want 1", got)
	}
	if page.BBox != (BBox{0, 0, 300, 250}) {
		t.Errorf("page bbox = %v, want union of blocks", page.BBox)
	}
}

func TestExportEmpty(t *testing.T) {
	empty, err := ocrtree.NewBuilder().Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	for _, r := range []ocrtree.Accessor{empty, nil} {
		page := Export(r, Options{PageNumber: 3})
		if len(page.Blocks) != 0 || page.Text != "" || page.Confidence != 0 {
			t.Errorf("Export(empty) = %+v, want no blocks and empty text", page)
		}
		if page.PageNumber != 3 {
			t.Errorf("page number = %d, want 3", page.PageNumber)
		}
	}
}

func TestExportJSON(t *testing.T) {
	data, err := json.Marshal(Export(scenarioPage(t), Options{PageNumber: 1}))
	if err != nil {
		t.Fatalf("json.Marshal failed: %v", err)
	}

	var decoded Page
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal failed: %v", err)
	}
	if decoded.Blocks[0].Level != ocrtree.Block {
		t.Errorf("decoded block level = %v", decoded.Blocks[0].Level)
	}
	if got := decoded.Words()[1].Text; got != "CD" {
		t.Errorf("decoded second word = %q, want CD", got)
	}
}

func TestExportRotatesPolygons(t *testing.T) {
	page := Export(scenarioPage(t), Options{PageNumber: 1, Rotation: 90})

	word := page.Words()[1]
	// (30,0) rotated 90 degrees about the origin lands on (0,30)
	got := word.Polygon[0]
	if math.Abs(got.X) > 1e-9 || math.Abs(got.Y-30) > 1e-9 {
		t.Errorf("rotated corner = %+v, want (0, 30)", got)
	}
	if word.BBox != (BBox{30, 0, 50, 20}) {
		t.Errorf("bbox changed by rotation: %v", word.BBox)
	}
}
