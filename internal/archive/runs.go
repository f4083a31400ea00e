// Package archive appends a summary row per reconciliation run. Nothing in
// the reconciliation path reads it back.
package archive

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mind-engage/mindengage-handin/internal/reconcile"
)

type Run struct {
	ID              string  `db:"id" json:"id"`
	CreatedAt       int64   `db:"created_at" json:"created_at"`
	Owner           string  `db:"owner" json:"owner"`
	RosterTotal     int     `db:"roster_total" json:"roster_total"`
	Submitted       int     `db:"submitted" json:"submitted"`
	Missing         int     `db:"missing" json:"missing"`
	Rate            float64 `db:"rate" json:"rate"`
	DuplicateGroups int     `db:"duplicate_groups" json:"duplicate_groups"`
	Anomalous       int     `db:"anomalous" json:"anomalous"`
	SummaryJSON     string  `db:"summary_json" json:"-"`
}

// FromReport flattens a report into an archive row.
func FromReport(owner string, rep *reconcile.Report) (Run, error) {
	b, err := json.Marshal(rep)
	if err != nil {
		return Run{}, err
	}
	return Run{
		ID:              uuid.NewString(),
		CreatedAt:       time.Now().Unix(),
		Owner:           owner,
		RosterTotal:     rep.TotalRoster,
		Submitted:       len(rep.Submitted),
		Missing:         len(rep.Missing),
		Rate:            rep.RatePercent,
		DuplicateGroups: len(rep.Duplicates),
		Anomalous:       len(rep.Anomalous),
		SummaryJSON:     string(b),
	}, nil
}

type RunRepo struct{ db *sqlx.DB }

func NewRunRepo(db *sqlx.DB) *RunRepo { return &RunRepo{db: db} }

func (r *RunRepo) Append(ctx context.Context, run Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().Unix()
	}
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO reconciliation_runs
		   (id, created_at, owner, roster_total, submitted, missing, rate, duplicate_groups, anomalous, summary_json)
		 VALUES
		   (:id, :created_at, :owner, :roster_total, :submitted, :missing, :rate, :duplicate_groups, :anomalous, :summary_json)`,
		run)
	return err
}

// List returns the newest runs first. An empty owner lists every owner.
func (r *RunRepo) List(ctx context.Context, owner string, limit int) ([]Run, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id, created_at, owner, roster_total, submitted, missing, rate, duplicate_groups, anomalous, summary_json
	        FROM reconciliation_runs`
	args := []any{}
	if owner != "" {
		q += ` WHERE owner = ?`
		args = append(args, owner)
	}
	q += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, limit)

	runs := []Run{}
	if err := r.db.SelectContext(ctx, &runs, r.db.Rebind(q), args...); err != nil {
		return nil, err
	}
	return runs, nil
}
