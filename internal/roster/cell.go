package roster

import (
	"strconv"
	"strings"
)

type CellKind int

const (
	Empty CellKind = iota
	Number
	Text
)

// Cell is a single roster value of unknown origin type.
type Cell struct {
	Kind CellKind
	Num  float64
	Str  string
}

func TextCell(s string) Cell {
	if s == "" {
		return Cell{Kind: Empty}
	}
	return Cell{Kind: Text, Str: s}
}

func NumberCell(v float64) Cell { return Cell{Kind: Number, Num: v} }

func EmptyCell() Cell { return Cell{Kind: Empty} }

// String renders the cell the way identifier search sees it: empty cells are
// "", numbers use their shortest decimal form (202400001, not 2.02400001e+08).
func (c Cell) String() string {
	switch c.Kind {
	case Number:
		return strconv.FormatFloat(c.Num, 'f', -1, 64)
	case Text:
		return c.Str
	default:
		return ""
	}
}

// Row is one roster line in column order.
type Row []Cell

// Joined concatenates all cells with single spaces so adjacent cells cannot
// form a digit run together.
func (r Row) Joined() string {
	parts := make([]string, len(r))
	for i, c := range r {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}

// TextRow is a convenience for tests and CSV input.
func TextRow(values ...string) Row {
	row := make(Row, len(values))
	for i, v := range values {
		row[i] = TextCell(v)
	}
	return row
}
