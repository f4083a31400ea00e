package submission

import (
	"fmt"
	"path/filepath"
	"strings"
)

// File is one uploaded submission, fully buffered.
type File struct {
	Name string
	Data []byte
	Size int64
	ID   string // extracted identifier, empty when absent
	Err  error  // set by ingestion when the file could not be read
}

// NewFile wraps in-memory bytes; Size is taken from the data.
func NewFile(name string, data []byte) File {
	return File{Name: name, Data: data, Size: int64(len(data))}
}

// IsPDF reports whether the file is eligible for AI assist.
func (f File) IsPDF() bool {
	return strings.EqualFold(filepath.Ext(f.Name), ".pdf")
}

// FileReadError marks an upload that could not be read or sized.
type FileReadError struct {
	Name string
	Err  error
}

func (e *FileReadError) Error() string {
	return fmt.Sprintf("read %q: %v", e.Name, e.Err)
}

func (e *FileReadError) Unwrap() error { return e.Err }

type Member struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
}

// Group collects files sharing one content digest, in input order.
type Group struct {
	Digest  string   `json:"digest"`
	Members []Member `json:"members"`
}

// IsDuplicate reports whether more than one file shares the digest.
func (g Group) IsDuplicate() bool { return len(g.Members) > 1 }

// SingleSubmitter reports whether every member carries the same identifier,
// i.e. one student uploaded identical bytes more than once.
func (g Group) SingleSubmitter() bool {
	for _, m := range g.Members[1:] {
		if m.ID != g.Members[0].ID {
			return false
		}
	}
	return true
}

type Anomaly struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

type IgnoreReason string

const (
	ReasonHidden       IgnoreReason = "hidden"
	ReasonNoIdentifier IgnoreReason = "no_identifier"
	ReasonNotOnRoster  IgnoreReason = "not_on_roster"
	ReasonUnreadable   IgnoreReason = "unreadable"
)

type Ignored struct {
	Filename string       `json:"filename"`
	Reason   IgnoreReason `json:"reason"`
	Detail   string       `json:"detail,omitempty"`
}

// Result is the classifier output for one batch.
type Result struct {
	FilesByName  map[string]File
	Groups       []Group
	Anomalous    []Anomaly
	SubmittedIDs []string
	Ignored      []Ignored
	// Accepted lists roster-matched filenames in input order.
	Accepted []string
}

// Duplicates returns the groups with more than one member.
func (r *Result) Duplicates() []Group {
	var out []Group
	for _, g := range r.Groups {
		if g.IsDuplicate() {
			out = append(out, g)
		}
	}
	return out
}

// PDFCandidates lists accepted PDF filenames in input order, without repeats.
func (r *Result) PDFCandidates() []string {
	seen := make(map[string]bool)
	var out []string
	for _, name := range r.Accepted {
		if seen[name] {
			continue
		}
		seen[name] = true
		if r.FilesByName[name].IsPDF() {
			out = append(out, name)
		}
	}
	return out
}
