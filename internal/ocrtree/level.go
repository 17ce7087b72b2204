/**
 * Levels of the recognized text hierarchy.
 *
 * Block ⊃ Paragraph ⊃ Line ⊃ Word ⊃ Symbol. The set is closed; every
 * level-specific lookup in this package is an exhaustive switch over it.
 */

package ocrtree

import (
	"fmt"
	"strings"
)

// Level is one granularity of recognized text
type Level int

const (
	Block Level = iota
	Paragraph
	Line
	Word
	Symbol
)

// Levels lists every level from coarsest to finest
var Levels = []Level{Block, Paragraph, Line, Word, Symbol}

// String returns the lower-case level name
func (l Level) String() string {
	switch l {
	case Block:
		return "block"
	case Paragraph:
		return "paragraph"
	case Line:
		return "line"
	case Word:
		return "word"
	case Symbol:
		return "symbol"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Valid reports whether l is one of the five known levels
func (l Level) Valid() bool {
	return l >= Block && l <= Symbol
}

// Child returns the next finer level. Symbol is its own child.
func (l Level) Child() Level {
	if l >= Symbol {
		return Symbol
	}
	return l + 1
}


// ParseLevel parses a level name as produced by String
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "block":
		return Block, nil
	case "paragraph", "para":
		return Paragraph, nil
	case "line", "textline":
		return Line, nil
	case "word":
		return Word, nil
	case "symbol", "char", "character":
		return Symbol, nil
	}
	return Block, fmt.Errorf("unknown level: %q", name)
}

// MarshalText encodes the level by name
func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid level: %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText decodes a level name accepted by ParseLevel
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
