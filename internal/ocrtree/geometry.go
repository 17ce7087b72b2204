package ocrtree

import "image"

// BoundingBox returns the engine's native rectangle for the current instance
// of level. It reports false, with the zero rectangle, unless the cursor is
// at the beginning of level. The rectangle is not derived from the child
// rectangles.
func (c Cursor) BoundingBox(level Level) (image.Rectangle, bool) {
	if !c.IsAtBeginningOf(level) {
		return image.Rectangle{}, false
	}

	switch level {
	case Block:
		return c.result.BlockBounds(c.block), true
	case Paragraph:
		return c.result.ParagraphBounds(c.para), true
	case Line:
		return c.result.LineBounds(c.line), true
	case Word:
		return c.result.WordBounds(c.word), true
	case Symbol:
		return c.result.CharBounds(c.char), true
	}
	return image.Rectangle{}, false
}
