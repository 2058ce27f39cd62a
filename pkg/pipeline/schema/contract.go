package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingColumn is returned when a required column is not in the header.
var ErrMissingColumn = errors.New("missing required column")

// Field captures the minimal behavior-relevant schema fields.
type Field struct {
	Name     string
	Type     string
	Nullable bool
}

// TableContract is the logical schema contract of a tabular pipeline: which
// sheet is read, which column keys each record, and which columns the
// pipeline appends to the input columns.
type TableContract struct {
	Sheet     string
	KeyColumn string
	Appended  []Field
}

// NormalizeName trims surrounding whitespace (including non-breaking spaces)
// from a column header.
func NormalizeName(raw string) string {
	return strings.TrimSpace(raw)
}

// KeyIndex returns the position of the key column in header.
func (c TableContract) KeyIndex(header []string) (int, error) {
	want := NormalizeName(c.KeyColumn)
	for i, col := range header {
		if NormalizeName(col) == want {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w %q", ErrMissingColumn, c.KeyColumn)
}

// OutputHeader returns the input header followed by the appended columns.
//
// Appended columns already present in the input (a re-run over a previous
// output) are reused in place instead of being duplicated.
func (c TableContract) OutputHeader(input []string) []string {
	out := make([]string, 0, len(input)+len(c.Appended))
	out = append(out, input...)
	for _, f := range c.Appended {
		if c.indexOf(input, f.Name) >= 0 {
			continue
		}
		out = append(out, f.Name)
	}
	return out
}

// AppendedIndexes maps each appended column to its position in OutputHeader(input).
func (c TableContract) AppendedIndexes(input []string) map[string]int {
	header := c.OutputHeader(input)
	idx := make(map[string]int, len(c.Appended))
	for _, f := range c.Appended {
		idx[f.Name] = c.indexOf(header, f.Name)
	}
	return idx
}

func (c TableContract) indexOf(header []string, name string) int {
	want := NormalizeName(name)
	for i, col := range header {
		if NormalizeName(col) == want {
			return i
		}
	}
	return -1
}
