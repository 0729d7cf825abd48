package basis

import (
	"errors"
	"fmt"

	"github.com/Cedric-Boucher/Genetic-Vehicular-Fuel-Efficiency-Solver/pkg/gene"
)

const (
	// CoefficientCount is the number of real parameters of one basis function (p0..p38).
	CoefficientCount = 39

	// GenesPerVariable is the gene block length of one variable: a (raw, scale)
	// pair per coefficient.
	GenesPerVariable = 2 * CoefficientCount
)

// ErrGeneCount is returned when a gene block has the wrong length.
var ErrGeneCount = errors.New("basis: wrong gene count")

// Pair is a coefficient together with the base it is raised to or logged in.
type Pair struct {
	Coeff float64
	Base  float64
}

// Sine is one a*sin(b*x + c) term.
type Sine struct {
	Amplitude float64
	Frequency float64
	Phase     float64
}

// Coefficients is the decoded parameter set of one basis function.
type Coefficients struct {
	Poly       [6]float64 // x^5 .. x^0
	Reciprocal struct {
		Num    float64
		Offset float64
	}
	Rational struct {
		Num [4]float64 // x^3 .. x^0
		Den [4]float64
	}
	Log   Pair // Coeff*log_|Base|(x)
	XLog  Pair // Coeff*x*log_|Base|(x)
	Sines [5]Sine
	Exp   Pair // Coeff*Base^x
	XExp  Pair // Coeff*x*Base^x
}

// slots lists the coefficient fields in gene order p0..p38.
func (c *Coefficients) slots() [CoefficientCount]*float64 {
	return [CoefficientCount]*float64{
		&c.Poly[0], &c.Poly[1], &c.Poly[2], &c.Poly[3], &c.Poly[4], &c.Poly[5],
		&c.Reciprocal.Num, &c.Reciprocal.Offset,
		&c.Rational.Num[0], &c.Rational.Num[1], &c.Rational.Num[2], &c.Rational.Num[3],
		&c.Rational.Den[0], &c.Rational.Den[1], &c.Rational.Den[2], &c.Rational.Den[3],
		&c.Log.Coeff, &c.Log.Base,
		&c.XLog.Coeff, &c.XLog.Base,
		&c.Sines[0].Amplitude, &c.Sines[0].Frequency, &c.Sines[0].Phase,
		&c.Sines[1].Amplitude, &c.Sines[1].Frequency, &c.Sines[1].Phase,
		&c.Sines[2].Amplitude, &c.Sines[2].Frequency, &c.Sines[2].Phase,
		&c.Sines[3].Amplitude, &c.Sines[3].Frequency, &c.Sines[3].Phase,
		&c.Sines[4].Amplitude, &c.Sines[4].Frequency, &c.Sines[4].Phase,
		&c.Exp.Coeff, &c.Exp.Base,
		&c.XExp.Coeff, &c.XExp.Base,
	}
}

// Values returns the coefficients in gene order p0..p38.
func (c Coefficients) Values() [CoefficientCount]float64 {
	var out [CoefficientCount]float64
	for i, p := range c.slots() {
		out[i] = *p
	}
	return out
}

// FromValues builds a coefficient record from p0..p38 in gene order.
func FromValues(p [CoefficientCount]float64) Coefficients {
	var c Coefficients
	for i, slot := range c.slots() {
		*slot = p[i]
	}
	return c
}

// Decode turns one variable's gene block into coefficients. Genes are read in
// (raw, scale) pairs: the scale gene sets the standard deviation the raw gene's
// quantile is stretched by.
func Decode(genes []float64) (Coefficients, error) {
	if len(genes) != GenesPerVariable {
		return Coefficients{}, fmt.Errorf("%w: got %d, want %d", ErrGeneCount, len(genes), GenesPerVariable)
	}
	var c Coefficients
	for i, slot := range c.slots() {
		raw, scale := genes[2*i], genes[2*i+1]
		*slot = gene.Decode(raw, gene.Scale(scale))
	}
	return c, nil
}
