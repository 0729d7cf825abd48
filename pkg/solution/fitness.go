package solution

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/Cedric-Boucher/Genetic-Vehicular-Fuel-Efficiency-Solver/pkg/trip"
)

const (
	// PerfectFitness scores an exact prediction. It is above log2(1/d) for
	// every positive float64 d, the largest of which is about 1074.
	PerfectFitness = 2048.0

	// WorstFitness scores a prediction that is not a finite number.
	WorstFitness = -1e9
)

// ErrEmptyDataset is returned when fitness is requested over no trips.
var ErrEmptyDataset = errors.New("solution: empty dataset")

// ScoreError maps an absolute prediction error onto a fitness: log2(1/d),
// larger for smaller errors.
func ScoreError(d float64) float64 {
	switch {
	case math.IsNaN(d) || math.IsInf(d, 0):
		return WorstFitness
	case d == 0:
		return PerfectFitness
	}
	return math.Log2(1 / d)
}

// Fitness scores the prediction for one trip.
func (s Solution) Fitness(r trip.Record) (float64, error) {
	y, err := s.Predict(r)
	if errors.Is(err, ErrNonFinite) {
		return WorstFitness, nil
	}
	if err != nil {
		return 0, err
	}
	return ScoreError(math.Abs(r.Observed - y)), nil
}

// DatasetFitness is the mean of the per-trip fitness over records. This is
// the score selection ranks by.
func (s Solution) DatasetFitness(records []trip.Record) (float64, error) {
	if len(records) == 0 {
		return 0, ErrEmptyDataset
	}
	total := 0.0
	for _, r := range records {
		f, err := s.Fitness(r)
		if err != nil {
			return 0, err
		}
		total += f
	}
	return total / float64(len(records)), nil
}

// NativeError is the absolute prediction error expressed in L/100 km.
func (s Solution) NativeError(r trip.Record) (float64, error) {
	y, err := s.Predict(r)
	if err != nil {
		return 0, err
	}
	return math.Abs(100/y - 100/r.Observed), nil
}

// PercentError is |predicted - observed| / observed * 100.
func (s Solution) PercentError(r trip.Record) (float64, error) {
	y, err := s.Predict(r)
	if err != nil {
		return 0, err
	}
	return math.Abs(y-r.Observed) / r.Observed * 100, nil
}

// ErrorSummary aggregates reporting errors over a dataset.
type ErrorSummary struct {
	Trips              int     `json:"trips"`
	Failed             int     `json:"failed"`
	MeanNativeError    float64 `json:"mean_native_error_l_per_100km"`
	MedianNativeError  float64 `json:"median_native_error_l_per_100km"`
	MeanPercentError   float64 `json:"mean_percent_error"`
	MedianPercentError float64 `json:"median_percent_error"`
}

// Summarize computes the error summary. Trips whose prediction fails or
// whose error is not finite are counted in Failed and left out of the
// statistics.
func (s Solution) Summarize(records []trip.Record) ErrorSummary {
	sum := ErrorSummary{Trips: len(records)}
	native := make([]float64, 0, len(records))
	percent := make([]float64, 0, len(records))
	for _, r := range records {
		n, err := s.NativeError(r)
		if err != nil {
			sum.Failed++
			continue
		}
		p, err := s.PercentError(r)
		if err != nil || !finite(n) || !finite(p) {
			sum.Failed++
			continue
		}
		native = append(native, n)
		percent = append(percent, p)
	}
	if len(native) == 0 {
		return sum
	}
	sum.MeanNativeError, sum.MedianNativeError = meanMedian(native)
	sum.MeanPercentError, sum.MedianPercentError = meanMedian(percent)
	return sum
}

func meanMedian(xs []float64) (float64, float64) {
	sort.Float64s(xs)
	return stat.Mean(xs, nil), stat.Quantile(0.5, stat.Empirical, xs, nil)
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }
