package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-handin/internal/archive"
	"github.com/mind-engage/mindengage-handin/internal/assist"
	authmw "github.com/mind-engage/mindengage-handin/internal/auth/middleware"
	"github.com/mind-engage/mindengage-handin/internal/rbac"
	"github.com/mind-engage/mindengage-handin/internal/reconcile"
	"github.com/mind-engage/mindengage-handin/internal/render"
	"github.com/mind-engage/mindengage-handin/internal/session"
	"github.com/mind-engage/mindengage-handin/internal/storage"
)

// RunArchive is the append-only run log; archive.RunRepo implements it.
type RunArchive interface {
	Append(ctx context.Context, run archive.Run) error
	List(ctx context.Context, owner string, limit int) ([]archive.Run, error)
}

// Deps are the collaborators of the session API. Assist and Runs may be nil
// when the feature is not configured.
type Deps struct {
	Pipeline  *reconcile.Pipeline
	Sessions  *session.Store
	Assist    *assist.Service
	Runs      RunArchive
	PDF       render.PDFRenderer
	Exports   storage.BlobStore
	MaxUpload int64 // bytes per request
	Log       *slog.Logger
}

func (d *Deps) logger() *slog.Logger {
	if d.Log == nil {
		return slog.Default()
	}
	return d.Log
}

// Mount registers the session API on r. r must already carry an identity
// (JWT or offline) in the request context.
func Mount(r chi.Router, d *Deps) {
	r.With(rbac.Require(rbac.PermReconcileRun)).Post("/sessions", CreateSessionHandler(d))
	r.With(rbac.Require(rbac.PermReportView)).Get("/sessions", ListSessionsHandler(d))

	r.Route("/sessions/{id}", func(sr chi.Router) {
		sr.Use(withSession(d.Sessions))
		sr.Use(rbac.RequireOwnerOr(rbac.PermSessionsAny, isSessionOwner))

		sr.Group(func(vr chi.Router) {
			vr.Use(rbac.Require(rbac.PermReportView))
			vr.Get("/", GetSessionHandler(d))
			vr.Get("/report.{format}", ReportHandler(d))
			vr.Post("/exports", ExportReportHandler(d))
			vr.Get("/files/{name}", FileHandler(d))
		})

		sr.With(rbac.Require(rbac.PermReconcileRun)).Delete("/", DeleteSessionHandler(d))

		sr.Route("/assist", func(ar chi.Router) {
			ar.Use(rbac.Require(rbac.PermAssistUse))
			ar.Get("/", AssistStateHandler(d))
			ar.Put("/selection", SelectFileHandler(d))
			ar.Post("/analyze", AnalyzeHandler(d))
			ar.Post("/chat", ChatHandler(d))
		})
	})

	r.With(rbac.Require(rbac.PermRunsList)).Get("/runs", ListRunsHandler(d))
}

type ctxKey struct{}

var ctxKeySession = ctxKey{}

func withSession(store *session.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := store.Get(chi.URLParam(r, "id"))
			if err != nil {
				writeErr(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeySession, sess)))
		})
	}
}

func sessionFrom(r *http.Request) *session.Session {
	sess, _ := r.Context().Value(ctxKeySession).(*session.Session)
	return sess
}

func isSessionOwner(r *http.Request) bool {
	sess := sessionFrom(r)
	sub := authmw.SubjectFromContext(r.Context())
	return sess != nil && sub != "" && sess.Owner == sub
}
