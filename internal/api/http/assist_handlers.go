package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/mind-engage/mindengage-handin/internal/assist"
	"github.com/mind-engage/mindengage-handin/internal/session"
)

var errAssistDisabled = &assist.Error{Kind: assist.KindConfig, Op: "assist", Err: errors.New("no model credential configured")}

// GET /sessions/{id}/assist
func AssistStateHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, sessionFrom(r).Assist.View())
	}
}

// PUT /sessions/{id}/assist/selection  {"filename":"..."}
func SelectFileHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Filename string `json:"filename"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "bad json")
			return
		}
		a := sessionFrom(r).Assist
		if err := a.Select(req.Filename); err != nil {
			writeErr(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, a.View())
	}
}

// POST /sessions/{id}/assist/analyze
// Runs OCR then grading on the selected file. The call outlives a client
// disconnect so the result is still recorded for GET /assist.
func AnalyzeHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Assist == nil {
			writeErr(w, r, errAssistDisabled)
			return
		}
		sess := sessionFrom(r)
		gen, filename, err := sess.Assist.Begin()
		if err != nil {
			writeErr(w, r, err)
			return
		}
		data, ok := sess.Files.Bytes(filename)
		if !ok {
			_ = sess.Assist.Fail(gen, errors.New("file missing from session"))
			respondError(w, http.StatusNotFound, "file not found")
			return
		}

		ctx := context.WithoutCancel(r.Context())
		an, err := d.Assist.Analyze(ctx, filename, data)
		if err != nil {
			_ = sess.Assist.Fail(gen, err)
			d.logger().WarnContext(ctx, "analysis failed",
				"session_id", sess.ID, "file", filename, "kind", assist.KindOf(err), "err", err)
			writeErr(w, r, err)
			return
		}
		if err := sess.Assist.Complete(gen, an); err != nil {
			writeErr(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, sess.Assist.View())
	}
}

// POST /sessions/{id}/assist/chat  {"message":"..."}
// A failed model call leaves the history untouched.
func ChatHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Assist == nil {
			writeErr(w, r, errAssistDisabled)
			return
		}
		var req struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "bad json")
			return
		}
		msg := strings.TrimSpace(req.Message)
		a := sessionFrom(r).Assist
		gen, an, history, err := a.PrepareChat(msg)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		reply, err := d.Assist.Chat(r.Context(), an, history)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		if err := a.Reply(gen, msg, reply); err != nil {
			writeErr(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, struct {
			Reply  string             `json:"reply"`
			Assist session.AssistView `json:"assist"`
		}{reply, a.View()})
	}
}
