// Package render turns a reconciliation report into Markdown, HTML and PDF.
package render

import (
	"fmt"
	"strings"

	"github.com/mind-engage/mindengage-handin/internal/assist"
	"github.com/mind-engage/mindengage-handin/internal/reconcile"
)

// Markdown writes the report. an may be nil.
func Markdown(rep *reconcile.Report, an *assist.Analysis) string {
	var b strings.Builder
	b.WriteString("# Homework submission report\n\n")

	b.WriteString("| Total roster | Submitted | Missing | Submission rate |\n")
	b.WriteString("|---:|---:|---:|---:|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %.1f%% |\n\n",
		rep.TotalRoster, len(rep.Submitted), len(rep.Missing), rep.RatePercent)
	fmt.Fprintf(&b, "Uploaded files: %d, unique submissions: %d, ignored: %d.\n\n",
		rep.UploadedFiles, rep.UniqueFiles, len(rep.Ignored))

	fmt.Fprintf(&b, "## Missing (%d)\n\n", len(rep.MissingPeople))
	if len(rep.MissingPeople) == 0 {
		b.WriteString("Everyone on the roster has submitted.\n\n")
	} else {
		b.WriteString("| ID | Name |\n|---|---|\n")
		for _, p := range rep.MissingPeople {
			fmt.Fprintf(&b, "| %s | %s |\n", cell(p.ID), cell(p.Name))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Submitted (%d)\n\n", len(rep.SubmittedPeople))
	for _, p := range rep.SubmittedPeople {
		fmt.Fprintf(&b, "- %s %s\n", p.ID, p.Name)
	}
	if len(rep.SubmittedPeople) > 0 {
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Identical files (%d groups)\n\n", len(rep.Duplicates))
	if len(rep.Duplicates) == 0 {
		b.WriteString("No identical files found.\n\n")
	}
	for i, g := range rep.Duplicates {
		fmt.Fprintf(&b, "### Group %d", i+1)
		if g.SingleSubmitter {
			b.WriteString(" (same student)")
		}
		fmt.Fprintf(&b, "\n\nSHA-256 `%s`\n\n", g.Digest)
		for _, m := range g.Members {
			fmt.Fprintf(&b, "- %s %s: `%s`\n", m.ID, m.Name, m.Filename)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Suspiciously small files (%d)\n\n", len(rep.Anomalous))
	if len(rep.Anomalous) > 0 {
		b.WriteString("| ID | Name | File | Bytes |\n|---|---|---|---:|\n")
		for _, a := range rep.Anomalous {
			fmt.Fprintf(&b, "| %s | %s | %s | %d |\n", cell(a.ID), cell(a.Name), cell(a.Filename), a.Size)
		}
		b.WriteString("\n")
	}

	if len(rep.Ignored) > 0 {
		fmt.Fprintf(&b, "## Ignored files (%d)\n\n", len(rep.Ignored))
		b.WriteString("| File | Reason |\n|---|---|\n")
		for _, ig := range rep.Ignored {
			reason := string(ig.Reason)
			if ig.Detail != "" {
				reason += ": " + ig.Detail
			}
			fmt.Fprintf(&b, "| %s | %s |\n", cell(ig.Filename), cell(reason))
		}
		b.WriteString("\n")
	}

	if an != nil {
		fmt.Fprintf(&b, "## AI review: %s\n\n", an.Filename)
		b.WriteString("### Evaluation\n\n")
		b.WriteString(strings.TrimSpace(an.Evaluation))
		b.WriteString("\n\n### Transcript\n\n")
		b.WriteString(strings.TrimSpace(an.Text))
		b.WriteString("\n")
	}
	return b.String()
}

var cellEscaper = strings.NewReplacer("|", `\|`, "\n", " ", "\r", "")

func cell(s string) string { return cellEscaper.Replace(s) }
