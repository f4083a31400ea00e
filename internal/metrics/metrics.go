package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mind-engage/mindengage-handin/internal/reconcile"
)

// Metrics provides observability for reconciliation runs and assist calls.
type Metrics struct {
	Reconciliations *prometheus.CounterVec
	FilesClassified *prometheus.CounterVec
	SubmissionRate  prometheus.Gauge
	AssistRequests  *prometheus.CounterVec
	AssistDuration  *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers all metrics on reg. A nil reg uses the default registry.
func New(reg *prometheus.Registry) *Metrics {
	var (
		r prometheus.Registerer = prometheus.DefaultRegisterer
		g prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		r, g = reg, reg
	}
	f := promauto.With(r)
	return &Metrics{
		Reconciliations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "handin_reconciliations_total",
			Help: "Reconciliation runs by result (ok, roster_empty, roster_parse, error)",
		}, []string{"result"}),
		FilesClassified: f.NewCounterVec(prometheus.CounterOpts{
			Name: "handin_files_classified_total",
			Help: "Uploaded files by classification outcome",
		}, []string{"outcome"}),
		SubmissionRate: f.NewGauge(prometheus.GaugeOpts{
			Name: "handin_submission_rate_percent",
			Help: "Submission rate of the most recent successful run",
		}),
		AssistRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "handin_assist_requests_total",
			Help: "Remote model calls by operation and result",
		}, []string{"op", "result"}),
		AssistDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "handin_assist_duration_seconds",
			Help:    "Duration of remote model calls",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 120, 180},
		}, []string{"op"}),
		gatherer: g,
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveRun records one reconciliation. rep is nil when err is set.
func (m *Metrics) ObserveRun(rep *reconcile.Report, err error) {
	if err != nil {
		m.Reconciliations.WithLabelValues(runResult(err)).Inc()
		return
	}
	m.Reconciliations.WithLabelValues("ok").Inc()
	m.SubmissionRate.Set(rep.RatePercent)

	accepted := rep.UploadedFiles - len(rep.Ignored)
	m.FilesClassified.WithLabelValues("accepted").Add(float64(accepted))
	m.FilesClassified.WithLabelValues("anomalous").Add(float64(len(rep.Anomalous)))
	for _, ig := range rep.Ignored {
		m.FilesClassified.WithLabelValues(string(ig.Reason)).Inc()
	}
}

// ObserveAssist records one remote model call.
func (m *Metrics) ObserveAssist(op string, d time.Duration, err error) {
	m.AssistRequests.WithLabelValues(op, assistResult(err)).Inc()
	m.AssistDuration.WithLabelValues(op).Observe(d.Seconds())
}
