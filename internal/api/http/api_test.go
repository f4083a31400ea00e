package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-handin/internal/archive"
	"github.com/mind-engage/mindengage-handin/internal/assist"
	authmw "github.com/mind-engage/mindengage-handin/internal/auth/middleware"
	"github.com/mind-engage/mindengage-handin/internal/ident"
	"github.com/mind-engage/mindengage-handin/internal/rbac"
	"github.com/mind-engage/mindengage-handin/internal/reconcile"
	"github.com/mind-engage/mindengage-handin/internal/session"
	"github.com/mind-engage/mindengage-handin/internal/storage"
	"github.com/mind-engage/mindengage-handin/internal/submission"
)

// ---- fakes ----

type scriptedCompleter struct {
	mu      sync.Mutex
	replies []string
	err     error
}

func (c *scriptedCompleter) Complete(context.Context, assist.Request) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	if len(c.replies) == 0 {
		return "ok", nil
	}
	out := c.replies[0]
	c.replies = c.replies[1:]
	return out, nil
}

type onePage struct{}

func (onePage) Render([]byte) ([][]byte, error) { return [][]byte{[]byte("png")}, nil }

type fakePDF struct{}

func (fakePDF) Render(_ context.Context, doc string) ([]byte, error) {
	return []byte("%PDF-fake " + doc[:15]), nil
}

type memArchive struct {
	mu   sync.Mutex
	runs []archive.Run
}

func (m *memArchive) Append(_ context.Context, run archive.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *memArchive) List(_ context.Context, owner string, limit int) ([]archive.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []archive.Run{}
	for _, r := range m.runs {
		if owner == "" || r.Owner == owner {
			out = append(out, r)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- harness ----

type harness struct {
	srv       *httptest.Server
	deps      *Deps
	completer *scriptedCompleter
	runs      *memArchive
}

// identity takes the caller from test headers instead of a JWT.
func identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := authmw.WithSubject(r.Context(), r.Header.Get("X-Sub"))
		ctx = rbac.WithRole(ctx, r.Header.Get("X-Role"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ex := ident.New(9)
	h := &harness{completer: &scriptedCompleter{}, runs: &memArchive{}}
	h.deps = &Deps{
		Pipeline: reconcile.NewPipeline(ex, submission.NewClassifier(ex), nil),
		Sessions: session.NewStore(0),
		Assist:   assist.NewService(h.completer, assist.WithRenderer(onePage{})),
		Runs:     h.runs,
		PDF:      fakePDF{},
		Exports:  storage.NewMemStore(),
	}
	r := chi.NewRouter()
	r.Use(identity)
	Mount(r, h.deps)
	h.srv = httptest.NewServer(r)
	t.Cleanup(h.srv.Close)
	return h
}

type upload struct {
	name string
	data []byte
}

const rosterCSV = "学号,姓名\n202400001,Alice\n202400002,Bob\n202400003,Carol\n202400004,Dave\n"

var essay = bytes.Repeat([]byte("the same essay "), 20)

func standardBatch() []upload {
	return []upload{
		{"202400001_hw.pdf", essay},
		{"202400002_hw.pdf", essay},
		{"202400003.txt", []byte("too short")},
		{"notes.txt", bytes.Repeat([]byte("x"), 300)},
		{"~$202400004.docx", bytes.Repeat([]byte("y"), 300)},
	}
}

func (h *harness) do(t *testing.T, method, path, sub, role string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, h.srv.URL+path, body)
	require.NoError(t, err)
	req.Header.Set("X-Sub", sub)
	req.Header.Set("X-Role", role)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := h.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (h *harness) postSession(t *testing.T, sub, role string, rosterName, roster string, files []upload) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if rosterName != "" {
		fw, err := mw.CreateFormFile("roster", rosterName)
		require.NoError(t, err)
		_, _ = fw.Write([]byte(roster))
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile("files", f.name)
		require.NoError(t, err)
		_, _ = fw.Write(f.data)
	}
	require.NoError(t, mw.Close())
	return h.do(t, http.MethodPost, "/sessions", sub, role, &buf, mw.FormDataContentType())
}

func (h *harness) jsonCall(t *testing.T, method, path, sub, role string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	return h.do(t, method, path, sub, role, rd, "application/json")
}

type viewJSON struct {
	State      string           `json:"state"`
	Selected   string           `json:"selected"`
	Candidates []string         `json:"candidates"`
	Analysis   *assist.Analysis `json:"analysis"`
	History    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"history"`
	LastError string `json:"last_error"`
	LastKind  string `json:"last_error_kind"`
}

type sessionJSON struct {
	ID     string           `json:"session_id"`
	Owner  string           `json:"owner"`
	Report reconcile.Report `json:"report"`
	Assist viewJSON         `json:"assist"`
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (h *harness) createStandard(t *testing.T, sub string) sessionJSON {
	t.Helper()
	resp := h.postSession(t, sub, "instructor", "roster.csv", rosterCSV, standardBatch())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[sessionJSON](t, resp)
}

// ---- tests ----

func TestCreateSessionReconciles(t *testing.T) {
	h := newHarness(t)
	s := h.createStandard(t, "alice")

	rep := s.Report
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "alice", s.Owner)
	assert.Equal(t, 4, rep.TotalRoster)
	assert.Equal(t, []string{"202400001", "202400002", "202400003"}, rep.Submitted)
	assert.Equal(t, []string{"202400004"}, rep.Missing)
	assert.Equal(t, 75.0, rep.RatePercent)
	require.Len(t, rep.Duplicates, 1)
	assert.Len(t, rep.Duplicates[0].Members, 2)
	require.Len(t, rep.Anomalous, 1)
	assert.Equal(t, "Carol", rep.Anomalous[0].Name)
	assert.Len(t, rep.Ignored, 2)
	assert.Equal(t, 5, rep.UploadedFiles)
	assert.Equal(t, []string{"202400001_hw.pdf", "202400002_hw.pdf"}, s.Assist.Candidates)
	assert.Equal(t, "no_selection", s.Assist.State)

	require.Len(t, h.runs.runs, 1)
	assert.Equal(t, "alice", h.runs.runs[0].Owner)
	assert.Equal(t, 3, h.runs.runs[0].Submitted)
}

func TestCreateSessionRosterErrors(t *testing.T) {
	h := newHarness(t)

	resp := h.postSession(t, "alice", "instructor", "roster.csv", "学号,姓名\n", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "roster_empty", decode[errorBody](t, resp).Kind)

	resp = h.postSession(t, "alice", "instructor", "roster.xls", "binary", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "roster_parse", decode[errorBody](t, resp).Kind)

	resp = h.postSession(t, "alice", "instructor", "", "", standardBatch())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/sessions", "alice", "instructor", strings.NewReader("{}"), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Empty(t, h.runs.runs)
}

func TestCreateSessionUploadLimit(t *testing.T) {
	h := newHarness(t)
	h.deps.MaxUpload = 1024
	big := []upload{{"202400001.pdf", bytes.Repeat([]byte("z"), 4096)}}
	resp := h.postSession(t, "alice", "instructor", "roster.csv", rosterCSV, big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestCreateSessionRequiresPermission(t *testing.T) {
	h := newHarness(t)
	resp := h.postSession(t, "ta1", "assistant", "roster.csv", rosterCSV, standardBatch())
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSessionAccess(t *testing.T) {
	h := newHarness(t)
	s := h.createStandard(t, "alice")

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/sessions/"+s.ID, "alice", "instructor", nil, "").StatusCode)
	assert.Equal(t, http.StatusForbidden, h.do(t, http.MethodGet, "/sessions/"+s.ID, "bob", "instructor", nil, "").StatusCode)
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/sessions/"+s.ID, "root", "admin", nil, "").StatusCode)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/sessions/missing", "alice", "instructor", nil, "").StatusCode)

	h.createStandard(t, "bob")
	mine := decode[[]session.Summary](t, h.do(t, http.MethodGet, "/sessions", "alice", "instructor", nil, ""))
	require.Len(t, mine, 1)
	assert.Equal(t, s.ID, mine[0].ID)
	all := decode[[]session.Summary](t, h.do(t, http.MethodGet, "/sessions", "root", "admin", nil, ""))
	assert.Len(t, all, 2)
}

func TestDeleteSession(t *testing.T) {
	h := newHarness(t)
	s := h.createStandard(t, "alice")
	path := "/sessions/" + s.ID

	assert.Equal(t, http.StatusForbidden, h.do(t, http.MethodDelete, path, "bob", "instructor", nil, "").StatusCode)
	assert.Equal(t, http.StatusForbidden, h.do(t, http.MethodDelete, path, "ta1", "assistant", nil, "").StatusCode)

	assert.Equal(t, http.StatusNoContent, h.do(t, http.MethodDelete, path, "alice", "instructor", nil, "").StatusCode)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, path, "alice", "instructor", nil, "").StatusCode)
	assert.Empty(t, h.deps.Sessions.List("alice"))
}

func TestReportFormats(t *testing.T) {
	h := newHarness(t)
	s := h.createStandard(t, "alice")
	base := "/sessions/" + s.ID + "/report."

	resp := h.do(t, http.MethodGet, base+"md", "alice", "instructor", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "| 202400004 | Dave |")
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/markdown"))

	resp = h.do(t, http.MethodGet, base+"html", "alice", "instructor", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ = io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "<table>")

	resp = h.do(t, http.MethodGet, base+"pdf", "alice", "instructor", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	body, _ = io.ReadAll(resp.Body)
	assert.True(t, bytes.HasPrefix(body, []byte("%PDF-fake")))

	resp = h.do(t, http.MethodGet, base+"docx", "alice", "instructor", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	h.deps.PDF = nil
	resp = h.do(t, http.MethodGet, base+"pdf", "alice", "instructor", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestExportReport(t *testing.T) {
	h := newHarness(t)
	s := h.createStandard(t, "alice")

	resp := h.jsonCall(t, http.MethodPost, "/sessions/"+s.ID+"/exports", "alice", "instructor", map[string]string{"format": "html"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	out := decode[map[string]any](t, resp)
	assert.Equal(t, "reports/"+s.ID+"/report.html", out["key"])

	b, ok := h.deps.Exports.(*storage.MemStore).Bytes("reports/" + s.ID + "/report.html")
	require.True(t, ok)
	assert.Contains(t, string(b), "<!doctype html>")
}

func TestFileHandler(t *testing.T) {
	h := newHarness(t)
	s := h.createStandard(t, "alice")

	resp := h.do(t, http.MethodGet, "/sessions/"+s.ID+"/files/202400001_hw.pdf", "alice", "instructor", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, essay, body)

	resp = h.do(t, http.MethodGet, "/sessions/"+s.ID+"/files/notes.txt", "alice", "instructor", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "ignored files are not cached")
}

func TestAssistFlow(t *testing.T) {
	h := newHarness(t)
	s := h.createStandard(t, "alice")
	base := "/sessions/" + s.ID + "/assist"
	h.completer.replies = []string{"# transcript", "Score: 82", "Q2 lost points for units."}

	resp := h.jsonCall(t, http.MethodPost, base+"/analyze", "alice", "instructor", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = h.jsonCall(t, http.MethodPut, base+"/selection", "alice", "instructor", map[string]string{"filename": "202400003.txt"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.jsonCall(t, http.MethodPut, base+"/selection", "alice", "instructor", map[string]string{"filename": "202400001_hw.pdf"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "202400001_hw.pdf", decode[viewJSON](t, resp).Selected)

	resp = h.jsonCall(t, http.MethodPost, base+"/chat", "alice", "instructor", map[string]string{"message": "why?"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = h.jsonCall(t, http.MethodPost, base+"/analyze", "alice", "instructor", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	v := decode[viewJSON](t, resp)
	assert.Equal(t, "analysis_ready", v.State)
	require.NotNil(t, v.Analysis)
	assert.Equal(t, "# transcript", v.Analysis.Text)
	assert.Equal(t, "Score: 82", v.Analysis.Evaluation)

	resp = h.jsonCall(t, http.MethodPost, base+"/chat", "alice", "instructor", map[string]string{"message": " where did I lose points? "})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	chat := decode[struct {
		Reply  string   `json:"reply"`
		Assist viewJSON `json:"assist"`
	}](t, resp)
	assert.Equal(t, "Q2 lost points for units.", chat.Reply)
	require.Len(t, chat.Assist.History, 2)
	assert.Equal(t, "where did I lose points?", chat.Assist.History[0].Content)

	h.completer.err = &assist.Error{Kind: assist.KindStatus, Op: "chat completion", StatusCode: 503}
	resp = h.jsonCall(t, http.MethodPost, base+"/chat", "alice", "instructor", map[string]string{"message": "and Q3?"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "status", decode[errorBody](t, resp).Kind)
	v = decode[viewJSON](t, h.do(t, http.MethodGet, base, "alice", "instructor", nil, ""))
	assert.Len(t, v.History, 2, "failed turn is not recorded")

	resp = h.jsonCall(t, http.MethodPut, base+"/selection", "alice", "instructor", map[string]string{"filename": "202400002_hw.pdf"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	v = decode[viewJSON](t, resp)
	assert.Equal(t, "no_selection", v.State)
	assert.Nil(t, v.Analysis)
	assert.Empty(t, v.History)
}

func TestAnalyzeFailureIsRecorded(t *testing.T) {
	h := newHarness(t)
	s := h.createStandard(t, "alice")
	base := "/sessions/" + s.ID + "/assist"
	h.completer.err = &assist.Error{Kind: assist.KindTimeout, Op: "chat completion", Err: context.DeadlineExceeded}

	h.jsonCall(t, http.MethodPut, base+"/selection", "alice", "instructor", map[string]string{"filename": "202400001_hw.pdf"})
	resp := h.jsonCall(t, http.MethodPost, base+"/analyze", "alice", "instructor", nil)
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)

	v := decode[viewJSON](t, h.do(t, http.MethodGet, base, "alice", "instructor", nil, ""))
	assert.Equal(t, "no_selection", v.State)
	assert.Equal(t, "timeout", v.LastKind)
	assert.Equal(t, "202400001_hw.pdf", v.Selected)
}

func TestAssistDisabled(t *testing.T) {
	h := newHarness(t)
	h.deps.Assist = nil
	s := h.createStandard(t, "alice")

	resp := h.jsonCall(t, http.MethodPost, "/sessions/"+s.ID+"/assist/analyze", "alice", "instructor", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "config", decode[errorBody](t, resp).Kind)
}

func TestListRuns(t *testing.T) {
	h := newHarness(t)
	h.createStandard(t, "alice")
	h.createStandard(t, "bob")

	runs := decode[[]archive.Run](t, h.do(t, http.MethodGet, "/runs", "alice", "instructor", nil, ""))
	require.Len(t, runs, 1)
	assert.Equal(t, "alice", runs[0].Owner)

	runs = decode[[]archive.Run](t, h.do(t, http.MethodGet, "/runs?limit=1", "root", "admin", nil, ""))
	assert.Len(t, runs, 1)

	assert.Equal(t, http.StatusForbidden, h.do(t, http.MethodGet, "/runs", "ta1", "assistant", nil, "").StatusCode)

	h.deps.Runs = nil
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/runs", "alice", "instructor", nil, "").StatusCode)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{session.ErrStale, http.StatusConflict},
		{session.ErrEmptyMessage, http.StatusBadRequest},
		{storage.ErrNotFound, http.StatusNotFound},
		{&assist.Error{Kind: assist.KindMalformed}, http.StatusBadGateway},
		{&assist.Error{Kind: assist.KindRender}, http.StatusUnprocessableEntity},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		got, _ := statusFor(tc.err)
		assert.Equal(t, tc.want, got, "%v", tc.err)
	}
}
