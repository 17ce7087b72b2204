/**
 * Scope fold
 *
 * Left-to-right reduction over every character of the current instance of
 * a level. Text and confidence are the two canonical folds.
 */

package ocrtree

import "strings"

// Fold applies step to each character of the current instance of level, in
// reading order, starting from seed.
//
// The cursor is not moved; the scan runs on a clone that first seeks back
// to the beginning of the instance. Returns seed unchanged when the cursor
// is exhausted or the beginning cannot be established.
func Fold[T any](c Cursor, level Level, seed T, step func(char int, acc T) T) T {
	if !c.IsAtCharacter() {
		return seed
	}
	if level == Symbol {
		return step(c.char, seed)
	}

	scan := c.Clone()
	for !scan.IsAtBeginningOf(level) {
		if !scan.Prev(level, Symbol) {
			break
		}
	}
	if !scan.IsAtBeginningOf(level) {
		return seed
	}

	acc := seed
	for {
		acc = step(scan.char, acc)
		if !scan.Next(level, Symbol) {
			return acc
		}
	}
}

// Text concatenates the character values of the current instance of level
func (c Cursor) Text(level Level) string {
	sb := Fold(c, level, &strings.Builder{}, func(char int, sb *strings.Builder) *strings.Builder {
		sb.WriteString(c.result.CharText(char))
		return sb
	})
	return sb.String()
}

type confidenceSum struct {
	total float64
	count int
}

// Confidence returns the mean character confidence (0-100) of the current
// instance of level, or 0 when there is nothing to average
func (c Cursor) Confidence(level Level) float64 {
	sum := Fold(c, level, confidenceSum{}, func(char int, acc confidenceSum) confidenceSum {
		acc.total += c.result.CharConfidence(char)
		acc.count++
		return acc
	})
	if sum.count == 0 {
		return 0
	}
	return sum.total / float64(sum.count)
}
