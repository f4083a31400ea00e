package http

import (
	"net/http"
	"strconv"

	authmw "github.com/mind-engage/mindengage-handin/internal/auth/middleware"
	"github.com/mind-engage/mindengage-handin/internal/rbac"
)

// GET /runs?limit=50[&owner=...]
func ListRunsHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Runs == nil {
			respondError(w, http.StatusNotFound, "run archive disabled")
			return
		}
		owner := authmw.SubjectFromContext(r.Context())
		if rbac.Allowed(r.Context(), rbac.PermRunsListAll) {
			owner = r.URL.Query().Get("owner")
		}
		runs, err := d.Runs.List(r.Context(), owner, parseIntDefault(r.URL.Query().Get("limit"), 50))
		if err != nil {
			writeErr(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, runs)
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
