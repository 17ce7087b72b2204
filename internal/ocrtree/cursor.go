/**
 * PositionCursor
 *
 * A plain value holding the character index plus the word, line, paragraph
 * and block indices derived from it, and a shared read-only Accessor.
 * Copying a Cursor is a full, independent clone.
 */

package ocrtree

// position is the comparable snapshot of a cursor's five indices
type position struct {
	Char      int
	Word      int
	Line      int
	Paragraph int
	Block     int
}

// Cursor navigates one recognized page.
//
// The character index is authoritative; the other four are recomputed from
// it by SyncFromCharacter after every move. A cursor whose character index
// is outside [0, CharCount) is exhausted and its derived indices are -1.
// Cursors become invalid when the underlying result is released.
type Cursor struct {
	result Accessor
	char   int
	word   int
	line   int
	para   int
	block  int
}

// NewCursor returns a cursor at character 0
func NewCursor(result Accessor) Cursor {
	return NewCursorAt(result, 0)
}

// NewCursorAt returns a cursor at the given character
func NewCursorAt(result Accessor, char int) Cursor {
	c := Cursor{result: result, char: char}
	c.SyncFromCharacter()
	return c
}

// Clone returns an independent copy sharing the same Accessor
func (c Cursor) Clone() Cursor {
	return c
}

// Result returns the accessor the cursor walks
func (c Cursor) Result() Accessor {
	return c.result
}

// position returns the current indices
func (c Cursor) position() position {
	return position{
		Char:      c.char,
		Word:      c.word,
		Line:      c.line,
		Paragraph: c.para,
		Block:     c.block,
	}
}

// Char returns the current character index
func (c Cursor) Char() int {
	return c.char
}

// IsAtCharacter reports whether the cursor is on a valid character
func (c Cursor) IsAtCharacter() bool {
	return c.result != nil && c.char >= 0 && c.char < c.result.CharCount()
}

// SyncFromCharacter recomputes the word, line, paragraph and block indices
func (c *Cursor) SyncFromCharacter() {
	if !c.IsAtCharacter() {
		c.word, c.line, c.para, c.block = -1, -1, -1, -1
		return
	}
	c.word = c.result.CharWord(c.char)
	c.line = c.result.WordLine(c.word)
	c.para = c.result.LineParagraph(c.line)
	c.block = c.result.ParagraphBlock(c.para)
}

// IsAtBeginningOf reports whether the cursor is on the first character of
// the current instance of level. Beginning of a level implies beginning of
// every finer level.
func (c Cursor) IsAtBeginningOf(level Level) bool {
	if !c.IsAtCharacter() {
		return false
	}

	switch level {
	case Block:
		return c.para == c.result.BlockFirstParagraph(c.block) && c.IsAtBeginningOf(Paragraph)
	case Paragraph:
		return c.line == c.result.ParagraphFirstLine(c.para) && c.IsAtBeginningOf(Line)
	case Line:
		return c.word == c.result.LineFirstWord(c.line) && c.IsAtBeginningOf(Word)
	case Word:
		return c.char == c.result.WordFirstChar(c.word)
	case Symbol:
		return true
	}
	return false
}

// Index returns the index of the current instance of level, or -1 when exhausted
func (c Cursor) Index(level Level) int {
	switch level {
	case Block:
		return c.block
	case Paragraph:
		return c.para
	case Line:
		return c.line
	case Word:
		return c.word
	case Symbol:
		return c.char
	}
	return -1
}
