package processor

import (
	"testing"

	"github.com/adverant/nexus/ocrtree-worker/internal/exporter"
	"github.com/adverant/nexus/ocrtree-worker/internal/ocrtree"
)

// wordNode places a word at x with 10px glyphs
func wordNode(text string, x, y int) *exporter.Node {
	return &exporter.Node{
		Level: ocrtree.Word,
		Text:  text,
		BBox:  exporter.BBox{x, y, x + 10*len(text), y + 10},
	}
}

func lineNode(words ...*exporter.Node) *exporter.Node {
	return &exporter.Node{Level: ocrtree.Line, Children: words}
}

func blockNode(top int, conf float64, lines ...*exporter.Node) *exporter.Node {
	return &exporter.Node{
		Level:      ocrtree.Block,
		Confidence: conf,
		BBox:       exporter.BBox{0, top, 300, top + 50},
		Children:   []*exporter.Node{{Level: ocrtree.Paragraph, Children: lines}},
	}
}

func TestLayoutColumnAlignedTable(t *testing.T) {
	table := blockNode(100, 90,
		lineNode(wordNode("Item", 0, 100), wordNode("Qty", 100, 100), wordNode("Price", 200, 100)),
		lineNode(wordNode("Tea", 0, 115), wordNode("2", 100, 115), wordNode("3.50", 200, 115)),
	)
	prose := blockNode(0, 70,
		lineNode(wordNode("Order", 0, 0), wordNode("summary", 60, 0)),
		lineNode(wordNode("for", 0, 15), wordNode("today", 40, 15)),
	)

	page := &exporter.Page{PageNumber: 1, Blocks: []*exporter.Node{table, prose}}
	result := NewLayoutAnalyzer().Analyze([]*exporter.Page{page})

	if len(result.Regions) != 2 {
		t.Fatalf("got %d regions, want 2", len(result.Regions))
	}
	if result.Regions[0].Type != "table" || result.Regions[1].Type != "text" {
		t.Errorf("region types = %s, %s, want table, text", result.Regions[0].Type, result.Regions[1].Type)
	}
	if result.Confidence != 80 {
		t.Errorf("Confidence = %v, want 80", result.Confidence)
	}

	if len(result.Tables) != 1 {
		t.Fatalf("got %d tables, want 1", len(result.Tables))
	}
	tbl := result.Tables[0]
	if tbl.RegionID != 0 || tbl.PageNumber != 1 {
		t.Errorf("table region/page = %d/%d, want 0/1", tbl.RegionID, tbl.PageNumber)
	}
	if len(tbl.Rows) != 2 || len(tbl.Rows[1].Cells) != 3 {
		t.Fatalf("table rows = %+v, want 2 rows of 3 cells", tbl.Rows)
	}
	if got := tbl.Rows[1].Cells[2].Content; got != "3.50" {
		t.Errorf("cell (1,2) = %q, want 3.50", got)
	}

	// prose block sits above the table
	if len(result.ReadingOrder) != 2 || result.ReadingOrder[0] != 1 || result.ReadingOrder[1] != 0 {
		t.Errorf("ReadingOrder = %v, want [1 0]", result.ReadingOrder)
	}
}

func TestLayoutPipeTable(t *testing.T) {
	block := blockNode(0, 80,
		lineNode(wordNode("|", 0, 0), wordNode("a", 20, 0), wordNode("|", 40, 0), wordNode("b", 60, 0), wordNode("|", 80, 0)),
		lineNode(wordNode("|", 0, 15), wordNode("1", 20, 15), wordNode("|", 40, 15), wordNode("2", 60, 15), wordNode("|", 80, 15)),
	)

	result := NewLayoutAnalyzer().Analyze([]*exporter.Page{{PageNumber: 1, Blocks: []*exporter.Node{block}}})
	if len(result.Tables) != 1 {
		t.Fatalf("got %d tables, want 1", len(result.Tables))
	}
	row := result.Tables[0].Rows[0]
	if len(row.Cells) != 2 || row.Cells[0].Content != "a" || row.Cells[1].Content != "b" {
		t.Errorf("row = %+v, want cells a, b", row)
	}
}

func TestLayoutEmpty(t *testing.T) {
	result := NewLayoutAnalyzer().Analyze([]*exporter.Page{{PageNumber: 1, Blocks: []*exporter.Node{}}, nil})
	if len(result.Regions) != 0 || len(result.Tables) != 0 || len(result.ReadingOrder) != 0 {
		t.Errorf("result = %+v, want empty", result)
	}
	if result.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0", result.Confidence)
	}
}

func TestReadingOrderAcrossPages(t *testing.T) {
	regions := []LayoutRegion{
		{PageNumber: 2, BBox: exporter.BBox{0, 0, 10, 10}},
		{PageNumber: 1, BBox: exporter.BBox{50, 100, 60, 110}},
		{PageNumber: 1, BBox: exporter.BBox{0, 100, 10, 110}},
		{PageNumber: 1, BBox: exporter.BBox{0, 0, 10, 10}},
	}

	got := NewLayoutAnalyzer().determineReadingOrder(regions)
	want := []int{3, 2, 1, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestDetectDelimiter(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"a\tb\tc", "\t"},
		{"| a | b |", "|"},
		{"x,y,z", ","},
		{"a, b", ""},
		{"plain words", ""},
	}

	for _, tt := range tests {
		if got := detectDelimiter(tt.line); got != tt.want {
			t.Errorf("detectDelimiter(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestDetectTableRegions(t *testing.T) {
	lines := []string{
		"Heading",
		"a,b,c",
		"1,2,3",
		"4,5,6,7",
		"prose",
		"x|y|z",
	}

	regions := NewLayoutAnalyzer().detectTableRegions(lines)
	if len(regions) != 1 {
		t.Fatalf("got %d regions, want 1", len(regions))
	}
	if regions[0].StartLine != 1 || regions[0].EndLine != 3 || len(regions[0].Lines) != 3 {
		t.Errorf("region = %+v, want lines 1-3", regions[0])
	}
}

func TestLineTextColumnGaps(t *testing.T) {
	line := lineNode(wordNode("ab", 0, 0), wordNode("cd", 30, 0), wordNode("ef", 200, 0))
	if got := lineText(line); got != "ab cd\tef" {
		t.Errorf("lineText = %q, want %q", got, "ab cd\tef")
	}
}
