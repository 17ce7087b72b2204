/**
 * Engine Accessor Contract
 *
 * The read-only capability set an OCR engine result must expose for the
 * traversal core. Characters are the only authoritative position; every
 * coarser index is reached through upward (child -> parent) lookups.
 */

package ocrtree

import "image"

// Accessor is the read-only view of one recognized page.
//
// Every character belongs to exactly one word, line, paragraph and block,
// and the first-index lookups are non-decreasing as the character index
// grows. Each lookup is expected to be O(1); the core does not cache
// across steps. Implementations need not be safe for concurrent use.
type Accessor interface {
	CharCount() int
	CharText(char int) string
	CharConfidence(char int) float64 // 0-100
	CharWord(char int) int

	WordLine(word int) int
	WordFirstChar(word int) int

	LineParagraph(line int) int
	LineFirstWord(line int) int

	ParagraphBlock(para int) int
	ParagraphFirstLine(para int) int

	BlockFirstParagraph(block int) int

	BlockBounds(block int) image.Rectangle
	ParagraphBounds(para int) image.Rectangle
	LineBounds(line int) image.Rectangle
	WordBounds(word int) image.Rectangle
	CharBounds(char int) image.Rectangle
}
