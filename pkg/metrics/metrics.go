package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SearchMetrics holds the Prometheus collectors of the evolutionary search.
type SearchMetrics struct {
	GenerationsTotal   prometheus.Counter
	EvaluationsTotal   prometheus.Counter
	EvaluationErrors   prometheus.Counter
	CheckpointsTotal   *prometheus.CounterVec
	BestFitness        prometheus.Gauge
	Generation         prometheus.Gauge
	GenerationDuration prometheus.Histogram
	State              *prometheus.GaugeVec
}

// New registers the search collectors with reg.
func New(reg prometheus.Registerer) *SearchMetrics {
	f := promauto.With(reg)
	return &SearchMetrics{
		GenerationsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "fuelsolver_generations_total",
			Help: "Generations completed by this process",
		}),
		EvaluationsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "fuelsolver_evaluations_total",
			Help: "Chromosome fitness evaluations",
		}),
		EvaluationErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "fuelsolver_evaluation_errors_total",
			Help: "Chromosome evaluations that failed",
		}),
		CheckpointsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fuelsolver_checkpoints_total",
			Help: "Checkpoint writes by status",
		}, []string{"status"}),
		BestFitness: f.NewGauge(prometheus.GaugeOpts{
			Name: "fuelsolver_best_fitness",
			Help: "Fitness of the elite chromosome",
		}),
		Generation: f.NewGauge(prometheus.GaugeOpts{
			Name: "fuelsolver_generation",
			Help: "Index of the last completed generation",
		}),
		GenerationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fuelsolver_generation_duration_seconds",
			Help:    "Wall-clock time per generation",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		State: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fuelsolver_state",
			Help: "1 for the controller's current state, 0 otherwise",
		}, []string{"state"}),
	}
}

// RecordGeneration updates the per-generation collectors.
func (m *SearchMetrics) RecordGeneration(generation int, best float64, took time.Duration) {
	if m == nil {
		return
	}
	m.GenerationsTotal.Inc()
	m.Generation.Set(float64(generation))
	m.BestFitness.Set(best)
	m.GenerationDuration.Observe(took.Seconds())
}

// RecordEvaluations counts n evaluations, failed of which returned an error.
func (m *SearchMetrics) RecordEvaluations(n, failed int) {
	if m == nil {
		return
	}
	m.EvaluationsTotal.Add(float64(n))
	m.EvaluationErrors.Add(float64(failed))
}

// RecordCheckpoint counts a checkpoint write.
func (m *SearchMetrics) RecordCheckpoint(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.CheckpointsTotal.WithLabelValues(status).Inc()
}

// SetState marks state as the current one among all.
func (m *SearchMetrics) SetState(state string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.State.WithLabelValues(s).Set(v)
	}
}
