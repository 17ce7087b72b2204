/**
 * Level traversal
 *
 * Walks the flat character index one character at a time until the cursor
 * lands on the beginning of the requested level, or leaves the current
 * instance of the enclosing (parent) level. The walk is bounded by the
 * character count, so every call terminates.
 */

package ocrtree

// Next moves forward to the beginning of the next instance of level inside
// the current instance of parent.
//
// Returns true with the cursor on the found beginning. Returns false with
// the cursor where it started when the next beginning lies in another
// parent instance, or at the last reachable character when the page ends.
// Pass parent == level for an unscoped walk.
func (c *Cursor) Next(parent, level Level) bool {
	return c.walk(parent, level, 1)
}

// Prev is the backward mirror of Next: it moves to the beginning of the
// previous instance of level without leaving the current parent instance.
func (c *Cursor) Prev(parent, level Level) bool {
	return c.walk(parent, level, -1)
}

// HasNext reports whether Next would succeed. The cursor is not moved.
func (c Cursor) HasNext(parent, level Level) bool {
	ahead := c.Clone()
	return ahead.Next(parent, level)
}

// HasPrev reports whether Prev would succeed. The cursor is not moved.
func (c Cursor) HasPrev(parent, level Level) bool {
	ahead := c.Clone()
	return ahead.Prev(parent, level)
}

// IsAtFinalOf reports whether the current instance of level is the last one
// inside the current instance of parent. The cursor is not moved.
func (c Cursor) IsAtFinalOf(parent, level Level) bool {
	return !c.HasNext(parent, level)
}

func (c *Cursor) walk(parent, level Level, dir int) bool {
	start := c.char
	for c.canStep(dir) {
		c.char += dir
		c.SyncFromCharacter()

		if level != parent && c.crossedBeginningOf(parent, dir) {
			c.char = start
			c.SyncFromCharacter()
			return false
		}

		if c.IsAtBeginningOf(level) {
			return true
		}
	}
	return false
}

// canStep reports whether one more character step in dir stays on the page.
// An exhausted cursor never moves.
func (c *Cursor) canStep(dir int) bool {
	if !c.IsAtCharacter() {
		return false
	}
	next := c.char + dir
	return next >= 0 && next < c.result.CharCount()
}

// crossedBeginningOf reports whether the step just taken in dir crossed a
// boundary of level: forward steps cross by landing on a beginning, backward
// steps by leaving one.
func (c *Cursor) crossedBeginningOf(level Level, dir int) bool {
	if dir > 0 {
		return c.IsAtBeginningOf(level)
	}
	left := NewCursorAt(c.result, c.char-dir)
	return left.IsAtBeginningOf(level)
}
