package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mind-engage/mindengage-handin/internal/assist"
	"github.com/mind-engage/mindengage-handin/internal/render"
	"github.com/mind-engage/mindengage-handin/internal/roster"
	"github.com/mind-engage/mindengage-handin/internal/session"
	"github.com/mind-engage/mindengage-handin/internal/storage"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorBody{Error: msg})
}

// statusFor maps domain errors to an HTTP status and an optional kind tag.
func statusFor(err error) (int, string) {
	var (
		pe *roster.ParseError
		ae *assist.Error
	)
	switch {
	case errors.Is(err, roster.ErrRosterEmpty):
		return http.StatusUnprocessableEntity, "roster_empty"
	case errors.As(err, &pe):
		return http.StatusBadRequest, "roster_parse"
	case errors.Is(err, session.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, ""
	case errors.Is(err, session.ErrNoFile), errors.Is(err, session.ErrBusy),
		errors.Is(err, session.ErrNotReady), errors.Is(err, session.ErrStale):
		return http.StatusConflict, "state"
	case errors.Is(err, session.ErrNotCandidate), errors.Is(err, session.ErrEmptyMessage):
		return http.StatusBadRequest, ""
	case errors.Is(err, render.ErrNoBrowser):
		return http.StatusServiceUnavailable, "pdf_unavailable"
	case errors.As(err, &ae):
		switch ae.Kind {
		case assist.KindTimeout:
			return http.StatusGatewayTimeout, string(ae.Kind)
		case assist.KindConfig:
			return http.StatusServiceUnavailable, string(ae.Kind)
		case assist.KindRender:
			return http.StatusUnprocessableEntity, string(ae.Kind)
		default:
			return http.StatusBadGateway, string(ae.Kind)
		}
	}
	return http.StatusInternalServerError, ""
}

func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
		msg = "internal error"
	}
	respondJSON(w, status, errorBody{Error: msg, Kind: kind})
}
