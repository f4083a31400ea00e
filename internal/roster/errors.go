package roster

import (
	"errors"
	"fmt"
)

// ErrRosterEmpty means no row carried an identifier; nothing can be reconciled.
var ErrRosterEmpty = errors.New("roster: no student identifiers found")

// ParseError reports a roster file that could not be read as tabular data.
type ParseError struct {
	Name string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("roster: cannot parse %q: %v", e.Name, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
