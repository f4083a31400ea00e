package http

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-handin/internal/archive"
	authmw "github.com/mind-engage/mindengage-handin/internal/auth/middleware"
	"github.com/mind-engage/mindengage-handin/internal/rbac"
	"github.com/mind-engage/mindengage-handin/internal/reconcile"
	"github.com/mind-engage/mindengage-handin/internal/session"
	"github.com/mind-engage/mindengage-handin/internal/submission"
)

const (
	defaultMaxUpload = 256 << 20
	formMemory       = 32 << 20
	readConcurrency  = 8
)

type sessionResponse struct {
	ID        string             `json:"session_id"`
	Owner     string             `json:"owner"`
	CreatedAt time.Time          `json:"created_at"`
	Report    *reconcile.Report  `json:"report"`
	Assist    session.AssistView `json:"assist"`
}

func toResponse(s *session.Session) sessionResponse {
	return sessionResponse{
		ID:        s.ID,
		Owner:     s.Owner,
		CreatedAt: s.CreatedAt,
		Report:    s.Report,
		Assist:    s.Assist.View(),
	}
}

// POST /sessions  multipart: roster=<file>, files=<file>...
func CreateSessionHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := d.MaxUpload
		if limit <= 0 {
			limit = defaultMaxUpload
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		if err := r.ParseMultipartForm(formMemory); err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				respondError(w, http.StatusRequestEntityTooLarge, "upload exceeds limit")
				return
			}
			respondError(w, http.StatusBadRequest, "multipart form required")
			return
		}
		defer r.MultipartForm.RemoveAll()

		rf, rh, err := requireFile(r, "roster")
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		defer rf.Close()

		headers := r.MultipartForm.File["files"]
		srcs := make([]submission.Source, len(headers))
		for i, fh := range headers {
			srcs[i] = submission.Source{
				Name: fh.Filename,
				Open: func() (io.ReadCloser, error) { return fh.Open() },
			}
		}
		files := submission.Buffer(r.Context(), srcs, readConcurrency)

		out, err := d.Pipeline.Run(r.Context(), rh.Filename, rf, files)
		if err != nil {
			writeErr(w, r, err)
			return
		}

		owner := authmw.SubjectFromContext(r.Context())
		sess := d.Sessions.Create(owner, out)
		d.logger().InfoContext(r.Context(), "reconciled batch",
			"session_id", sess.ID,
			"roster_total", out.Report.TotalRoster,
			"uploaded", out.Report.UploadedFiles,
			"rate", out.Report.RatePercent,
		)

		if d.Runs != nil {
			if run, err := archive.FromReport(owner, out.Report); err == nil {
				err = d.Runs.Append(r.Context(), run)
				if err != nil {
					d.logger().WarnContext(r.Context(), "archive append failed", "session_id", sess.ID, "err", err)
				}
			}
		}
		respondJSON(w, http.StatusCreated, toResponse(sess))
	}
}

func requireFile(r *http.Request, field string) (multipart.File, *multipart.FileHeader, error) {
	f, h, err := r.FormFile(field)
	if err != nil {
		return nil, nil, errors.New("missing file field: " + field)
	}
	return f, h, nil
}

// GET /sessions  own sessions; all sessions with sessions:any
func ListSessionsHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := authmw.SubjectFromContext(r.Context())
		if rbac.Allowed(r.Context(), rbac.PermSessionsAny) {
			owner = r.URL.Query().Get("owner")
		}
		list := d.Sessions.List(owner)
		if list == nil {
			list = []session.Summary{}
		}
		respondJSON(w, http.StatusOK, list)
	}
}

// GET /sessions/{id}
func GetSessionHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, toResponse(sessionFrom(r)))
	}
}

// DELETE /sessions/{id}
func DeleteSessionHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := sessionFrom(r).ID
		d.Sessions.Delete(id)
		d.logger().InfoContext(r.Context(), "session discarded", "session_id", id)
		w.WriteHeader(http.StatusNoContent)
	}
}

// GET /sessions/{id}/files/{name}
func FileHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if r.URL.RawPath != "" {
			if u, err := url.PathUnescape(name); err == nil {
				name = u
			}
		}
		rc, err := sessionFrom(r).Files.Get(r.Context(), name)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		defer rc.Close()

		ct := mime.TypeByExtension(filepath.Ext(name))
		if ct == "" {
			ct = "application/octet-stream"
		}
		w.Header().Set("Content-Type", ct)
		w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": name}))
		_, _ = io.Copy(w, rc)
	}
}
