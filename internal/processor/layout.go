/**
 * Layout Analyzer for the OCR tree worker
 *
 * Derives a page-region view from exported pages:
 * - one region per recognized block, typed "text" or "table"
 * - tables rebuilt from delimiter-separated or column-aligned lines
 * - reading order by geometry (top to bottom, then left to right)
 */

package processor

import (
	"log"
	"sort"
	"strings"

	"github.com/adverant/nexus/ocrtree-worker/internal/exporter"
	"github.com/adverant/nexus/ocrtree-worker/internal/ocrtree"
)

// columnGapFactor is how many average glyph widths separate two table cells
const columnGapFactor = 2.5

// LayoutAnalyzer performs heuristic layout analysis over exported pages
type LayoutAnalyzer struct{}

// LayoutResult is the layout of a whole document
type LayoutResult struct {
	Confidence   float64        `json:"confidence"`
	Regions      []LayoutRegion `json:"regions"`
	Tables       []Table        `json:"tables"`
	ReadingOrder []int          `json:"readingOrder"`
}

// LayoutRegion is one block of a page
type LayoutRegion struct {
	ID         int           `json:"id"`
	PageNumber int           `json:"pageNumber"`
	BlockIndex int           `json:"blockIndex"`
	Type       string        `json:"type"` // "text", "table"
	BBox       exporter.BBox `json:"bbox"`
	Confidence float64       `json:"confidence"`
	Content    string        `json:"content"`
}

// Table is a table recovered from one block
type Table struct {
	ID         int           `json:"id"`
	RegionID   int           `json:"regionId"`
	PageNumber int           `json:"pageNumber"`
	BBox       exporter.BBox `json:"bbox"`
	Rows       []TableRow    `json:"rows"`
	Confidence float64       `json:"confidence"`
}

// TableRow is one row of a table
type TableRow struct {
	RowNumber int         `json:"rowNumber"`
	Cells     []TableCell `json:"cells"`
}

// TableCell is one cell of a table row
type TableCell struct {
	ColumnNumber int    `json:"columnNumber"`
	Content      string `json:"content"`
}

// TableRegion is a run of consecutive lines sharing a delimiter
type TableRegion struct {
	StartLine int
	EndLine   int
	Delimiter string
	Lines     []string
}

// NewLayoutAnalyzer creates a layout analyzer
func NewLayoutAnalyzer() *LayoutAnalyzer {
	return &LayoutAnalyzer{}
}

// Analyze builds regions, tables and reading order for the given pages
func (l *LayoutAnalyzer) Analyze(pages []*exporter.Page) *LayoutResult {
	result := &LayoutResult{
		Regions:      []LayoutRegion{},
		Tables:       []Table{},
		ReadingOrder: []int{},
	}

	var confSum float64
	for _, page := range pages {
		if page == nil {
			continue
		}
		for blockIndex, block := range page.Blocks {
			region := LayoutRegion{
				ID:         len(result.Regions),
				PageNumber: page.PageNumber,
				BlockIndex: blockIndex,
				Type:       "text",
				BBox:       block.BBox,
				Confidence: block.Confidence,
				Content:    block.Text,
			}

			if table := l.extractTable(block); table != nil {
				region.Type = "table"
				table.ID = len(result.Tables)
				table.RegionID = region.ID
				table.PageNumber = page.PageNumber
				result.Tables = append(result.Tables, *table)
			}

			confSum += region.Confidence
			result.Regions = append(result.Regions, region)
		}
	}

	if len(result.Regions) > 0 {
		result.Confidence = confSum / float64(len(result.Regions))
	}
	result.ReadingOrder = l.determineReadingOrder(result.Regions)

	log.Printf("Layout analysis complete: regions=%d, tables=%d, confidence=%.2f",
		len(result.Regions), len(result.Tables), result.Confidence)

	return result
}

// extractTable returns the block's table, or nil when its lines do not form one
func (l *LayoutAnalyzer) extractTable(block *exporter.Node) *Table {
	lines := blockLines(block)
	if len(lines) < 2 {
		return nil
	}

	regions := l.detectTableRegions(lines)
	if len(regions) == 0 {
		return nil
	}

	// The longest run wins; a block is one region
	best := regions[0]
	for _, r := range regions[1:] {
		if len(r.Lines) > len(best.Lines) {
			best = r
		}
	}

	rows := make([]TableRow, 0, len(best.Lines))
	for i, line := range best.Lines {
		cells := extractCellsFromLine(line, best.Delimiter)
		row := TableRow{RowNumber: i, Cells: make([]TableCell, 0, len(cells))}
		for col, content := range cells {
			row.Cells = append(row.Cells, TableCell{
				ColumnNumber: col,
				Content:      strings.TrimSpace(content),
			})
		}
		rows = append(rows, row)
	}

	return &Table{
		BBox:       block.BBox,
		Rows:       rows,
		Confidence: block.Confidence,
	}
}

// detectTableRegions finds runs of at least two lines with the same delimiter
// and a column count within one of the first line's
func (l *LayoutAnalyzer) detectTableRegions(lines []string) []TableRegion {
	regions := make([]TableRegion, 0)

	i := 0
	for i < len(lines) {
		delimiter := detectDelimiter(lines[i])
		if delimiter == "" {
			i++
			continue
		}

		startLine := i
		regionLines := []string{lines[i]}
		expectedCols := countDelimiters(lines[i], delimiter)

		i++
		for i < len(lines) && detectDelimiter(lines[i]) == delimiter {
			if abs(countDelimiters(lines[i], delimiter)-expectedCols) > 1 {
				break
			}
			regionLines = append(regionLines, lines[i])
			i++
		}

		if len(regionLines) >= 2 {
			regions = append(regions, TableRegion{
				StartLine: startLine,
				EndLine:   i - 1,
				Delimiter: delimiter,
				Lines:     regionLines,
			})
		}
	}

	return regions
}

// determineReadingOrder orders regions by page, then top edge, then left edge
func (l *LayoutAnalyzer) determineReadingOrder(regions []LayoutRegion) []int {
	order := make([]int, len(regions))
	for i := range regions {
		order[i] = i
	}

	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := regions[order[a]], regions[order[b]]
		if ra.PageNumber != rb.PageNumber {
			return ra.PageNumber < rb.PageNumber
		}
		a0, b0 := ra.BBox.Rect().Min, rb.BBox.Rect().Min
		if a0.Y != b0.Y {
			return a0.Y < b0.Y
		}
		return a0.X < b0.X
	})

	return order
}

// blockLines renders every line of a block as text. Words separated by a
// wide horizontal gap are joined with a tab so column-aligned text reads as
// a tab-delimited row.
func blockLines(block *exporter.Node) []string {
	var lines []string
	for _, par := range block.Children {
		for _, line := range par.Children {
			if line.Level != ocrtree.Line {
				continue
			}
			lines = append(lines, lineText(line))
		}
	}
	return lines
}

func lineText(line *exporter.Node) string {
	glyphWidth := averageGlyphWidth(line)

	var sb strings.Builder
	for i, word := range line.Children {
		if i > 0 {
			gap := word.BBox[0] - line.Children[i-1].BBox[2]
			if glyphWidth > 0 && float64(gap) > columnGapFactor*glyphWidth {
				sb.WriteString("\t")
			} else {
				sb.WriteString(" ")
			}
		}
		sb.WriteString(word.Text)
	}
	return sb.String()
}

func averageGlyphWidth(line *exporter.Node) float64 {
	var width, glyphs int
	for _, word := range line.Children {
		n := len([]rune(word.Text))
		if n == 0 {
			continue
		}
		width += word.BBox[2] - word.BBox[0]
		glyphs += n
	}
	if glyphs == 0 {
		return 0
	}
	return float64(width) / float64(glyphs)
}

// detectDelimiter identifies the delimiter used in a line
func detectDelimiter(line string) string {
	// Tab first: it only appears where column gaps were detected
	delimiters := []string{"\t", "|", ","}

	for _, delim := range delimiters {
		// At least 2 delimiters needed for a table
		if countDelimiters(line, delim) >= 2 {
			return delim
		}
	}

	return ""
}

// countDelimiters counts occurrences of delimiter in line
func countDelimiters(line string, delimiter string) int {
	return strings.Count(line, delimiter)
}

// extractCellsFromLine splits line into cells based on delimiter
func extractCellsFromLine(line string, delimiter string) []string {
	switch delimiter {
	case "\t", ",":
		return strings.Split(line, delimiter)
	case "|":
		// Pipe-separated, often with leading/trailing pipes
		cells := strings.Split(line, "|")
		if len(cells) > 0 && strings.TrimSpace(cells[0]) == "" {
			cells = cells[1:]
		}
		if len(cells) > 0 && strings.TrimSpace(cells[len(cells)-1]) == "" {
			cells = cells[:len(cells)-1]
		}
		return cells
	}

	return []string{}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
