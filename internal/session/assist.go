package session

import (
	"errors"
	"sync"

	"github.com/mind-engage/mindengage-handin/internal/assist"
)

// State of the per-session assist workflow.
type State int

const (
	NoSelection State = iota
	Analyzing
	AnalysisReady
)

func (s State) String() string {
	switch s {
	case Analyzing:
		return "analyzing"
	case AnalysisReady:
		return "analysis_ready"
	default:
		return "no_selection"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

var (
	ErrNotCandidate = errors.New("file is not an analysis candidate")
	ErrNoFile       = errors.New("no file selected")
	ErrBusy         = errors.New("analysis already in progress")
	ErrNotReady     = errors.New("no analysis available for the selected file")
	ErrStale        = errors.New("analysis belongs to a superseded selection")
	ErrEmptyMessage = errors.New("empty chat message")
)

// AssistView is a read-only copy of the workflow state.
type AssistView struct {
	State      State            `json:"state"`
	Selected   string           `json:"selected,omitempty"`
	Candidates []string         `json:"candidates"`
	Analysis   *assist.Analysis `json:"analysis,omitempty"`
	History    []assist.Message `json:"history"`
	LastError  string           `json:"last_error,omitempty"`
	LastKind   assist.Kind      `json:"last_error_kind,omitempty"`
}

// Assist tracks the selected file, its analysis and the chat history.
//
// Every transition that invalidates earlier work bumps gen; results carrying
// an older gen are dropped.
type Assist struct {
	mu         sync.Mutex
	candidates []string
	allowed    map[string]bool
	state      State
	selected   string
	gen        uint64
	analysis   *assist.Analysis
	history    []assist.Message
	lastErr    error
}

func NewAssist(candidates []string) *Assist {
	allowed := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		allowed[c] = true
	}
	return &Assist{candidates: append([]string(nil), candidates...), allowed: allowed}
}

// Select picks the file to analyze. Choosing a different file from any state
// discards the analysis and chat and returns to NoSelection. Re-selecting the
// current file is a no-op.
func (a *Assist) Select(filename string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.allowed[filename] {
		return ErrNotCandidate
	}
	if filename == a.selected {
		return nil
	}
	a.selected = filename
	a.reset()
	return nil
}

func (a *Assist) reset() {
	a.gen++
	a.state = NoSelection
	a.analysis = nil
	a.history = nil
	a.lastErr = nil
}

// Begin moves to Analyzing and returns the generation the caller must pass
// back to Complete or Fail. A fresh analysis of the same file clears the chat.
func (a *Assist) Begin() (uint64, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.selected == "" {
		return 0, "", ErrNoFile
	}
	if a.state == Analyzing {
		return 0, "", ErrBusy
	}
	a.reset()
	a.state = Analyzing
	return a.gen, a.selected, nil
}

func (a *Assist) Complete(gen uint64, an assist.Analysis) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.gen || a.state != Analyzing {
		return ErrStale
	}
	a.analysis = &an
	a.state = AnalysisReady
	return nil
}

// Fail records err for the current generation; the selection is kept so the
// user can retry.
func (a *Assist) Fail(gen uint64, err error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.gen || a.state != Analyzing {
		return ErrStale
	}
	a.state = NoSelection
	a.lastErr = err
	return nil
}

// PrepareChat returns the analysis and the history with msg appended. The
// history is only committed by Reply, so a failed call leaves no trace.
func (a *Assist) PrepareChat(msg string) (uint64, assist.Analysis, []assist.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if msg == "" {
		return 0, assist.Analysis{}, nil, ErrEmptyMessage
	}
	if a.state != AnalysisReady {
		return 0, assist.Analysis{}, nil, ErrNotReady
	}
	h := make([]assist.Message, 0, len(a.history)+1)
	h = append(h, a.history...)
	h = append(h, assist.Message{Role: assist.RoleUser, Text: msg})
	return a.gen, *a.analysis, h, nil
}

func (a *Assist) Reply(gen uint64, msg, reply string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.gen || a.state != AnalysisReady {
		return ErrStale
	}
	a.history = append(a.history,
		assist.Message{Role: assist.RoleUser, Text: msg},
		assist.Message{Role: assist.RoleAssistant, Text: reply},
	)
	return nil
}

func (a *Assist) View() AssistView {
	a.mu.Lock()
	defer a.mu.Unlock()
	v := AssistView{
		State:      a.state,
		Selected:   a.selected,
		Candidates: append([]string{}, a.candidates...),
		History:    append([]assist.Message{}, a.history...),
	}
	if a.analysis != nil {
		an := *a.analysis
		v.Analysis = &an
	}
	if a.lastErr != nil {
		v.LastError = a.lastErr.Error()
		v.LastKind = assist.KindOf(a.lastErr)
	}
	return v
}
