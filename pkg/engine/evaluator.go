package engine

import (
	"time"

	"github.com/Cedric-Boucher/Genetic-Vehicular-Fuel-Efficiency-Solver/pkg/checkpoint"
	"github.com/Cedric-Boucher/Genetic-Vehicular-Fuel-Efficiency-Solver/pkg/solution"
	"github.com/Cedric-Boucher/Genetic-Vehicular-Fuel-Efficiency-Solver/pkg/trip"
)

// Evaluator scores a chromosome. Implementations must be safe for concurrent
// use and deterministic.
type Evaluator interface {
	Evaluate(genes []float64) (float64, error)
}

// Observer is told about every completed generation.
type Observer interface {
	OnGenerationComplete(p Progress)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(p Progress)

func (f ObserverFunc) OnGenerationComplete(p Progress) { f(p) }

// Clock supplies wall-clock time for throughput reporting.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// CheckpointStore persists controller state.
type CheckpointStore interface {
	Load() (checkpoint.Checkpoint, error)
	Save(cp checkpoint.Checkpoint) error
}

// StopSignal is the durable stop marker polled between generations.
type StopSignal interface {
	Reset() error
	Raised() (bool, error)
}

// DatasetEvaluator scores chromosomes by their mean per-trip fitness over a
// fixed set of records. The records are shared read-only between workers.
type DatasetEvaluator struct {
	records []trip.Record
}

// NewDatasetEvaluator returns an evaluator over records.
func NewDatasetEvaluator(records []trip.Record) *DatasetEvaluator {
	return &DatasetEvaluator{records: records}
}

func (d *DatasetEvaluator) Evaluate(genes []float64) (float64, error) {
	s, err := solution.Decode(genes)
	if err != nil {
		return 0, err
	}
	return s.DatasetFitness(d.records)
}
