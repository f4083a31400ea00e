// Command handinctl reconciles a roster against a directory of submissions
// and prints the report.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"

	"github.com/mind-engage/mindengage-handin/internal/assist"
	"github.com/mind-engage/mindengage-handin/internal/config"
	"github.com/mind-engage/mindengage-handin/internal/ident"
	"github.com/mind-engage/mindengage-handin/internal/logger"
	"github.com/mind-engage/mindengage-handin/internal/reconcile"
	"github.com/mind-engage/mindengage-handin/internal/render"
	"github.com/mind-engage/mindengage-handin/internal/roster"
	"github.com/mind-engage/mindengage-handin/internal/submission"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

type cli struct {
	stdout, stderr io.Writer
	// assist builds the AI service on demand; nil means assist is unavailable.
	assist func() (*assist.Service, error)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := &cli{stdout: os.Stdout, stderr: os.Stderr, assist: assistFromEnv}
	os.Exit(c.run(ctx, os.Args[1:]))
}

func assistFromEnv() (*assist.Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if !cfg.AssistEnabled() {
		return nil, errors.New("no API key configured (ASSIST_API_KEY or ANTHROPIC_API_KEY)")
	}
	var comp assist.Completer
	if cfg.AssistProvider == config.ProviderAnthropic {
		a, err := assist.NewAnthropic(cfg.AnthropicAPIKey)
		if err != nil {
			return nil, err
		}
		comp = a
	} else {
		comp = assist.NewOpenAICompatible(cfg.AssistBaseURL, cfg.AssistAPIKey, nil)
	}
	return assist.NewService(comp,
		assist.WithOCRModel(cfg.AssistOCRModel),
		assist.WithTextModel(cfg.AssistTextModel),
		assist.WithOCRTimeout(cfg.AssistOCRTimeout),
		assist.WithTextTimeout(cfg.AssistTextTimeout),
		assist.WithRenderer(assist.NewFitzRenderer(cfg.AssistRenderDPI)),
	), nil
}

func (c *cli) run(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("handinctl", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	var (
		rosterPath = fs.String("roster", "", "roster file (.xlsx, .csv, .tsv, .json)")
		dir        = fs.String("dir", "", "directory of submitted files")
		idLength   = fs.Int("id-length", ident.DefaultLength, "digits in a student identifier")
		minSize    = fs.Int64("min-size", submission.DefaultMinSize, "files smaller than this many bytes are flagged")
		format     = fs.String("format", "text", "output format: text|json|md")
		analyze    = fs.String("analyze", "", "run OCR and grading on this accepted PDF")
		logLevel   = fs.String("log-level", "warn", "log level")
	)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *rosterPath == "" || *dir == "" {
		fmt.Fprintln(c.stderr, "handinctl: -roster and -dir are required")
		fs.Usage()
		return exitUsage
	}
	switch *format {
	case "text", "json", "md":
	default:
		fmt.Fprintf(c.stderr, "handinctl: unknown format %q\n", *format)
		return exitUsage
	}
	log := logger.NewWriter(c.stderr, *logLevel, "text")

	rf, err := os.Open(*rosterPath)
	if err != nil {
		fmt.Fprintf(c.stderr, "handinctl: %v\n", err)
		return exitUsage
	}
	defer rf.Close()

	files, err := submission.ReadDir(ctx, *dir)
	if err != nil {
		fmt.Fprintf(c.stderr, "handinctl: read submissions: %v\n", err)
		return exitFailed
	}
	for _, f := range files {
		if f.Err != nil {
			log.Warn("unreadable submission", "file", f.Name, "err", f.Err)
		}
	}

	ex := ident.New(*idLength)
	p := reconcile.NewPipeline(ex, submission.NewClassifier(ex, submission.WithMinSize(*minSize)), nil)
	out, err := p.Run(ctx, *rosterPath, rf, files)
	if err != nil {
		fmt.Fprintf(c.stderr, "handinctl: %v\n", err)
		var pe *roster.ParseError
		if errors.Is(err, roster.ErrRosterEmpty) || errors.As(err, &pe) {
			return exitUsage
		}
		return exitFailed
	}

	var an *assist.Analysis
	if *analyze != "" {
		a, err := c.analyze(ctx, out, *analyze)
		if err != nil {
			fmt.Fprintf(c.stderr, "handinctl: analyze %s: %v\n", *analyze, err)
			return exitFailed
		}
		an = &a
	}

	switch *format {
	case "json":
		enc := json.NewEncoder(c.stdout)
		enc.SetIndent("", "  ")
		err = enc.Encode(struct {
			Report   *reconcile.Report `json:"report"`
			Analysis *assist.Analysis  `json:"analysis,omitempty"`
		}{out.Report, an})
	case "md":
		_, err = io.WriteString(c.stdout, render.Markdown(out.Report, an))
	default:
		err = writeText(c.stdout, out.Report, an)
	}
	if err != nil {
		fmt.Fprintf(c.stderr, "handinctl: %v\n", err)
		return exitFailed
	}
	return exitOK
}

func (c *cli) analyze(ctx context.Context, out *reconcile.Outcome, name string) (assist.Analysis, error) {
	if !slices.Contains(out.Report.PDFCandidates, name) {
		return assist.Analysis{}, errors.New("not an accepted PDF submission")
	}
	if c.assist == nil {
		return assist.Analysis{}, errors.New("assist is not available")
	}
	svc, err := c.assist()
	if err != nil {
		return assist.Analysis{}, err
	}
	return svc.Analyze(ctx, name, out.Files.FilesByName[name].Data)
}

func writeText(w io.Writer, rep *reconcile.Report, an *assist.Analysis) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Roster: %d  Submitted: %d  Missing: %d  Rate: %.1f%%\n",
		rep.TotalRoster, len(rep.Submitted), len(rep.Missing), rep.RatePercent)
	fmt.Fprintf(&b, "Files: %d uploaded, %d unique, %d ignored\n", rep.UploadedFiles, rep.UniqueFiles, len(rep.Ignored))

	if len(rep.MissingPeople) > 0 {
		b.WriteString("\nMissing:\n")
		for _, p := range rep.MissingPeople {
			fmt.Fprintf(&b, "  %s  %s\n", p.ID, p.Name)
		}
	}
	for i, g := range rep.Duplicates {
		fmt.Fprintf(&b, "\nIdentical group %d", i+1)
		if g.SingleSubmitter {
			b.WriteString(" (same student)")
		}
		b.WriteString(":\n")
		for _, m := range g.Members {
			fmt.Fprintf(&b, "  %s  %s  %s\n", m.ID, m.Name, m.Filename)
		}
	}
	if len(rep.Anomalous) > 0 {
		b.WriteString("\nSuspiciously small:\n")
		for _, a := range rep.Anomalous {
			fmt.Fprintf(&b, "  %s  %s  %s (%d bytes)\n", a.ID, a.Name, a.Filename, a.Size)
		}
	}
	if an != nil {
		fmt.Fprintf(&b, "\nAI review of %s:\n%s\n", an.Filename, an.Evaluation)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
