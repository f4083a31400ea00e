// Package reconcile joins a roster with classified submissions.
package reconcile

import (
	"sort"
	"strconv"

	"github.com/mind-engage/mindengage-handin/internal/roster"
	"github.com/mind-engage/mindengage-handin/internal/submission"
)

// Result is the roster/submission join. Submitted and Missing partition the
// roster: their union is every roster id and they never overlap.
type Result struct {
	TotalRoster int      `json:"total_roster"`
	Submitted   []string `json:"submitted"`
	Missing     []string `json:"missing"`
	RatePercent float64  `json:"rate_percent"`
}

// Reconcile computes submitted and missing sets. Submitted keeps the order of
// submittedIDs (ids not on the roster are dropped); Missing is sorted.
func Reconcile(r *roster.Roster, submittedIDs []string) Result {
	seen := make(map[string]bool, len(submittedIDs))
	res := Result{TotalRoster: r.Len(), Submitted: []string{}, Missing: []string{}}
	for _, id := range submittedIDs {
		if seen[id] || !r.Has(id) {
			continue
		}
		seen[id] = true
		res.Submitted = append(res.Submitted, id)
	}
	for _, id := range r.IDs() {
		if !seen[id] {
			res.Missing = append(res.Missing, id)
		}
	}
	sort.Strings(res.Missing)
	res.RatePercent = Rate(len(res.Submitted), res.TotalRoster)
	return res
}

// Rate is submitted/total*100 correctly rounded to one decimal. Exact ties
// go to the even digit, so 1 of 16 is 6.2 and 3 of 16 is 18.8.
func Rate(submitted, total int) float64 {
	if total <= 0 {
		return 0
	}
	pct := float64(submitted) / float64(total) * 100
	r, _ := strconv.ParseFloat(strconv.FormatFloat(pct, 'f', 1, 64), 64)
	return r
}

type Person struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type DuplicateMember struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Filename string `json:"filename"`
}

type DuplicateGroup struct {
	Digest          string            `json:"digest"`
	SingleSubmitter bool              `json:"single_submitter"`
	Members         []DuplicateMember `json:"members"`
}

// Report is everything the dashboard shows for one batch.
type Report struct {
	Result

	SubmittedPeople []Person             `json:"submitted_people"`
	MissingPeople   []Person             `json:"missing_people"`
	Duplicates      []DuplicateGroup     `json:"duplicates"`
	Anomalous       []submission.Anomaly `json:"anomalous"`
	UniqueFiles     int                  `json:"unique_files"`
	UploadedFiles   int                  `json:"uploaded_files"`
	Ignored         []submission.Ignored `json:"ignored"`
	PDFCandidates   []string             `json:"pdf_candidates"`
}

// BuildReport attaches display names and classifier findings to the join.
func BuildReport(r *roster.Roster, cls *submission.Result, uploaded int) *Report {
	rep := &Report{
		Result:          Reconcile(r, cls.SubmittedIDs),
		SubmittedPeople: []Person{},
		MissingPeople:   []Person{},
		Duplicates:      []DuplicateGroup{},
		Anomalous:       append([]submission.Anomaly{}, cls.Anomalous...),
		UploadedFiles:   uploaded,
		Ignored:         append([]submission.Ignored{}, cls.Ignored...),
		PDFCandidates:   append([]string{}, cls.PDFCandidates()...),
	}
	for _, id := range rep.Submitted {
		rep.SubmittedPeople = append(rep.SubmittedPeople, Person{ID: id, Name: r.Name(id)})
	}
	for _, id := range rep.Missing {
		rep.MissingPeople = append(rep.MissingPeople, Person{ID: id, Name: r.Name(id)})
	}
	for _, g := range cls.Groups {
		if !g.IsDuplicate() {
			rep.UniqueFiles++
			continue
		}
		dg := DuplicateGroup{Digest: g.Digest, SingleSubmitter: g.SingleSubmitter()}
		for _, m := range g.Members {
			dg.Members = append(dg.Members, DuplicateMember{ID: m.ID, Name: r.Name(m.ID), Filename: m.Filename})
		}
		rep.Duplicates = append(rep.Duplicates, dg)
	}
	return rep
}
