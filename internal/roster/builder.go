package roster

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mind-engage/mindengage-handin/internal/ident"
)

// UnknownName is shown when no cell in a row qualifies as a display name.
const UnknownName = "unknown name"

type Entry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Roster maps identifiers to display names and remembers load order.
// It is immutable once Build returns.
type Roster struct {
	byID  map[string]string
	order []string
}

// Build scans rows in order. Rows without an identifier are skipped; when two
// rows share an identifier the first one wins.
func Build(rows []Row, ex *ident.Extractor) (*Roster, error) {
	r := &Roster{byID: make(map[string]string)}
	for _, row := range rows {
		id, ok := ex.Extract(row.Joined())
		if !ok {
			continue
		}
		if _, seen := r.byID[id]; seen {
			continue
		}
		r.byID[id] = displayName(row, id)
		r.order = append(r.order, id)
	}
	if len(r.order) == 0 {
		return nil, ErrRosterEmpty
	}
	return r, nil
}

// displayName picks the first cell that is not the identifier, not purely
// numeric and at least two characters long.
func displayName(row Row, id string) string {
	for _, c := range row {
		if c.Kind == Empty {
			continue
		}
		v := strings.TrimSpace(c.String())
		if v == id || isDigits(v) || utf8.RuneCountInString(v) < 2 {
			continue
		}
		return v
	}
	return UnknownName
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func (r *Roster) Len() int { return len(r.order) }

func (r *Roster) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// Name returns the display name, or UnknownName for ids not on the roster.
func (r *Roster) Name(id string) string {
	if n, ok := r.byID[id]; ok {
		return n
	}
	return UnknownName
}

// IDs returns identifiers in load order. The slice is a copy.
func (r *Roster) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Roster) Entries() []Entry {
	out := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, Entry{ID: id, Name: r.byID[id]})
	}
	return out
}
