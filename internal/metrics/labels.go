package metrics

import (
	"errors"

	"github.com/mind-engage/mindengage-handin/internal/assist"
	"github.com/mind-engage/mindengage-handin/internal/roster"
)

func runResult(err error) string {
	var pe *roster.ParseError
	switch {
	case errors.Is(err, roster.ErrRosterEmpty):
		return "roster_empty"
	case errors.As(err, &pe):
		return "roster_parse"
	default:
		return "error"
	}
}

func assistResult(err error) string {
	if err == nil {
		return "ok"
	}
	if k := assist.KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}
