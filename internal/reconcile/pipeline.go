package reconcile

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mind-engage/mindengage-handin/internal/ident"
	"github.com/mind-engage/mindengage-handin/internal/roster"
	"github.com/mind-engage/mindengage-handin/internal/submission"
)

// Recorder receives run outcomes; metrics.Metrics implements it.
type Recorder interface {
	ObserveRun(rep *Report, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRun(*Report, error) {}

// Pipeline runs roster loading, classification and the join for one batch.
// It holds configuration only; every Run works on its own data.
type Pipeline struct {
	ex         *ident.Extractor
	classifier *submission.Classifier
	rec        Recorder
}

func NewPipeline(ex *ident.Extractor, cls *submission.Classifier, rec Recorder) *Pipeline {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Pipeline{ex: ex, classifier: cls, rec: rec}
}

// Outcome bundles the report with the classified files it was built from.
type Outcome struct {
	Roster *roster.Roster
	Files  *submission.Result
	Report *Report
}

// Run parses the roster and reconciles files against it. Roster errors are
// fatal and returned before any classification happens.
func (p *Pipeline) Run(ctx context.Context, rosterName string, rosterData io.Reader, files []submission.File) (*Outcome, error) {
	_, span := otel.Tracer("handin/reconcile").Start(ctx, "reconcile.run")
	defer span.End()

	out, err := p.run(rosterName, rosterData, files)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.rec.ObserveRun(nil, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("roster.total", out.Report.TotalRoster),
		attribute.Int("files.uploaded", out.Report.UploadedFiles),
		attribute.Int("duplicates", len(out.Report.Duplicates)),
	)
	p.rec.ObserveRun(out.Report, nil)
	return out, nil
}

func (p *Pipeline) run(rosterName string, rosterData io.Reader, files []submission.File) (*Outcome, error) {
	rows, err := roster.Load(rosterName, rosterData)
	if err != nil {
		return nil, err
	}
	r, err := roster.Build(rows, p.ex)
	if err != nil {
		return nil, err
	}
	cls := p.classifier.Classify(files, r)
	return &Outcome{Roster: r, Files: cls, Report: BuildReport(r, cls, len(files))}, nil
}
