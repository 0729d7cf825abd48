package solution

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Cedric-Boucher/Genetic-Vehicular-Fuel-Efficiency-Solver/pkg/basis"
	"github.com/Cedric-Boucher/Genetic-Vehicular-Fuel-Efficiency-Solver/pkg/trip"
)

// ChromosomeLength is the number of genes encoding a whole solution.
const ChromosomeLength = trip.NumVariables * basis.GenesPerVariable

var (
	ErrChromosomeLength = errors.New("solution: wrong chromosome length")
	ErrGeneRange        = errors.New("solution: gene outside [0, 1]")
	ErrNonFinite        = errors.New("solution: prediction is not finite")
)

// Solution is a decoded chromosome: one basis function per trip variable.
// Its prediction is the sum of every function applied to its variable.
type Solution struct {
	Functions [trip.NumVariables]basis.Function
}

// Decode splits a chromosome into per-variable gene blocks and decodes each.
func Decode(chromosome []float64) (Solution, error) {
	if len(chromosome) != ChromosomeLength {
		return Solution{}, fmt.Errorf("%w: got %d, want %d", ErrChromosomeLength, len(chromosome), ChromosomeLength)
	}
	for i, g := range chromosome {
		if !(g >= 0 && g <= 1) {
			return Solution{}, fmt.Errorf("%w: gene %d = %v", ErrGeneRange, i, g)
		}
	}

	var s Solution
	for v := range s.Functions {
		block := chromosome[v*basis.GenesPerVariable : (v+1)*basis.GenesPerVariable]
		f, err := basis.New(block)
		if err != nil {
			return Solution{}, fmt.Errorf("variable %s: %w", trip.Variable(v), err)
		}
		s.Functions[v] = f
	}
	return s, nil
}

// Predict sums every variable's contribution, in trip.Variables order.
func (s Solution) Predict(r trip.Record) (float64, error) {
	y := 0.0
	for v, f := range s.Functions {
		c, err := f.Eval(r.Attributes[v])
		if err != nil {
			return 0, fmt.Errorf("variable %s: %w", trip.Variable(v), err)
		}
		y += c
	}
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return 0, ErrNonFinite
	}
	return y, nil
}

// Equations renders each variable's decoded function, keyed by variable name.
func (s Solution) Equations() map[string]string {
	out := make(map[string]string, len(s.Functions))
	for v, f := range s.Functions {
		name := trip.Variable(v).String()
		out[name] = f.Format(name)
	}
	return out
}

// String returns the full equation, one variable per line.
func (s Solution) String() string {
	var b strings.Builder
	b.WriteString("efficiency_km_per_l =\n")
	for v, f := range s.Functions {
		if v > 0 {
			b.WriteString("  +\n")
		}
		fmt.Fprintf(&b, "  [%s] %s\n", trip.Variable(v), f.Format("x"))
	}
	return b.String()
}
