package exporter

import (
	"bytes"
	"fmt"
	"math"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/adverant/nexus/ocrtree-worker/internal/ocrtree"
)

const ocrSystem = "ocrtree-worker"

// hOCR class per level
var hocrClass = map[ocrtree.Level]string{
	ocrtree.Block:     "ocr_carea",
	ocrtree.Paragraph: "ocr_par",
	ocrtree.Line:      "ocr_line",
	ocrtree.Word:      "ocrx_word",
	ocrtree.Symbol:    "ocrx_cinfo",
}

var hocrElement = map[ocrtree.Level]atom.Atom{
	ocrtree.Block:     atom.Div,
	ocrtree.Paragraph: atom.P,
	ocrtree.Line:      atom.Span,
	ocrtree.Word:      atom.Span,
	ocrtree.Symbol:    atom.Span,
}

// RenderHOCR renders pages as an hOCR 1.2 document
func RenderHOCR(pages ...*Page) ([]byte, error) {
	doc := &html.Node{Type: html.DocumentNode}
	doc.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})

	root := element(atom.Html, "xmlns", "http://www.w3.org/1999/xhtml", "lang", "en")
	doc.AppendChild(root)

	head := element(atom.Head)
	root.AppendChild(head)
	title := element(atom.Title)
	title.AppendChild(&html.Node{Type: html.TextNode, Data: "OCR output"})
	head.AppendChild(title)
	head.AppendChild(element(atom.Meta, "http-equiv", "Content-Type", "content", "text/html; charset=utf-8"))
	head.AppendChild(element(atom.Meta, "name", "ocr-system", "content", ocrSystem))
	head.AppendChild(element(atom.Meta, "name", "ocr-capabilities",
		"content", "ocr_page ocr_carea ocr_par ocr_line ocrx_word ocrx_cinfo"))

	body := element(atom.Body)
	root.AppendChild(body)

	for i, page := range pages {
		if page == nil {
			return nil, fmt.Errorf("page %d is nil", i)
		}
		num := page.PageNumber
		if num == 0 {
			num = i + 1
		}
		div := element(atom.Div,
			"class", "ocr_page",
			"id", fmt.Sprintf("page_%d", num),
			"title", fmt.Sprintf("bbox %s; ppageno %d", bboxString(page.BBox), num-1))
		body.AppendChild(div)

		for _, block := range page.Blocks {
			div.AppendChild(hocrNode(block, num))
		}
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, fmt.Errorf("failed to render hOCR: %w", err)
	}
	return buf.Bytes(), nil
}

func hocrNode(n *Node, page int) *html.Node {
	id := fmt.Sprintf("%s_%d_%d", n.Level, page, n.Index+1)

	var title string
	switch n.Level {
	case ocrtree.Word:
		title = fmt.Sprintf("bbox %s; x_wconf %d", bboxString(n.BBox), roundConfidence(n.Confidence))
	case ocrtree.Symbol:
		title = fmt.Sprintf("x_bboxes %s; x_conf %.2f", bboxString(n.BBox), n.Confidence)
	default:
		title = "bbox " + bboxString(n.BBox)
	}

	el := element(hocrElement[n.Level], "class", hocrClass[n.Level], "id", id, "title", title)
	if n.Level == ocrtree.Symbol {
		el.AppendChild(&html.Node{Type: html.TextNode, Data: n.Text})
		return el
	}
	for _, ch := range n.Children {
		el.AppendChild(hocrNode(ch, page))
	}
	return el
}

// element creates an element node with attribute key/value pairs
func element(a atom.Atom, kv ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	for i := 0; i+1 < len(kv); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: kv[i], Val: kv[i+1]})
	}
	return n
}

func bboxString(b BBox) string {
	return fmt.Sprintf("%d %d %d %d", b[0], b[1], b[2], b[3])
}

func roundConfidence(c float64) int {
	return int(math.Round(c))
}
