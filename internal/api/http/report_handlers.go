package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-handin/internal/render"
	"github.com/mind-engage/mindengage-handin/internal/session"
)

const reportTitle = "Homework submission report"

type renderedReport struct {
	body        []byte
	contentType string
	ext         string
}

func renderReport(ctx context.Context, d *Deps, sess *session.Session, format string) (renderedReport, error) {
	view := sess.Assist.View()
	md := render.Markdown(sess.Report, view.Analysis)
	switch strings.ToLower(format) {
	case "md", "markdown":
		return renderedReport{[]byte(md), "text/markdown; charset=utf-8", "md"}, nil
	case "html":
		doc, err := render.HTML(reportTitle, md)
		if err != nil {
			return renderedReport{}, err
		}
		return renderedReport{[]byte(doc), "text/html; charset=utf-8", "html"}, nil
	case "pdf":
		if d.PDF == nil {
			return renderedReport{}, render.ErrNoBrowser
		}
		doc, err := render.HTML(reportTitle, md)
		if err != nil {
			return renderedReport{}, err
		}
		pdf, err := d.PDF.Render(ctx, doc)
		if err != nil {
			return renderedReport{}, err
		}
		return renderedReport{pdf, "application/pdf", "pdf"}, nil
	}
	return renderedReport{}, errUnknownFormat
}

var errUnknownFormat = errors.New("format must be md, html or pdf")

// GET /sessions/{id}/report.{format}
func ReportHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := renderReport(r.Context(), d, sessionFrom(r), chi.URLParam(r, "format"))
		if errors.Is(err, errUnknownFormat) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			writeErr(w, r, err)
			return
		}
		w.Header().Set("Content-Type", out.contentType)
		_, _ = w.Write(out.body)
	}
}

// POST /sessions/{id}/exports  {"format":"pdf"}
// Writes the rendered report to the export store.
func ExportReportHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Exports == nil {
			respondError(w, http.StatusServiceUnavailable, "export store not configured")
			return
		}
		var req struct {
			Format string `json:"format"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "bad json")
			return
		}
		sess := sessionFrom(r)
		out, err := renderReport(r.Context(), d, sess, req.Format)
		if errors.Is(err, errUnknownFormat) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			writeErr(w, r, err)
			return
		}
		key, err := d.Exports.Put(r.Context(), "reports/"+sess.ID+"/report."+out.ext, bytes.NewReader(out.body))
		if err != nil {
			writeErr(w, r, err)
			return
		}
		u, err := d.Exports.SignedURL(key)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, map[string]any{"key": key, "url": u, "bytes": len(out.body)})
	}
}
