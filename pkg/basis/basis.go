package basis

import (
	"errors"
	"fmt"
	"math"
)

// ZeroSubstitute replaces an input of exactly zero, where the logarithmic
// terms are undefined.
const ZeroSubstitute = 1e-9

// ErrNegativeInput is returned for inputs below zero (or NaN).
var ErrNegativeInput = errors.New("basis: input must not be negative")

// Function is the fixed-shape equation modelling one variable's contribution:
//
//	p0*x^5 + p1*x^4 + p2*x^3 + p3*x^2 + p4*x + p5
//	+ p6/(x+p7)
//	+ (p8*x^3 + p9*x^2 + p10*x + p11) / (p12*x^3 + p13*x^2 + p14*x + p15)
//	+ p16*log_|p17|(x) + p18*x*log_|p19|(x)
//	+ sum of five a*sin(b*x + c)
//	+ p35*p36^x + p37*x*p38^x
type Function struct {
	Coefficients
}

// New decodes a gene block into a basis function.
func New(genes []float64) (Function, error) {
	c, err := Decode(genes)
	if err != nil {
		return Function{}, err
	}
	return Function{Coefficients: c}, nil
}

// Eval computes the function at x. Terms that are undefined at x (zero
// denominators, a logarithm base of 0 or 1) or that overflow are left out,
// so the result is always finite.
func (f Function) Eval(x float64) (float64, error) {
	if math.IsNaN(x) || x < 0 {
		return 0, fmt.Errorf("%w: %v", ErrNegativeInput, x)
	}
	if x == 0 {
		x = ZeroSubstitute
	}
	c := &f.Coefficients

	var s sum
	s.add(horner(c.Poly[:], x))

	if d := x + c.Reciprocal.Offset; d != 0 {
		s.add(c.Reciprocal.Num / d)
	}

	if den := horner(c.Rational.Den[:], x); den != 0 {
		s.add(horner(c.Rational.Num[:], x) / den)
	}

	if l, ok := logBase(x, c.Log.Base); ok {
		s.add(c.Log.Coeff * l)
	}
	if l, ok := logBase(x, c.XLog.Base); ok {
		s.add(c.XLog.Coeff * x * l)
	}

	for _, sn := range c.Sines {
		s.add(sn.Amplitude * math.Sin(sn.Frequency*x+sn.Phase))
	}

	s.add(c.Exp.Coeff * realPow(c.Exp.Base, x))
	s.add(c.XExp.Coeff * x * realPow(c.XExp.Base, x))

	return s.v, nil
}

// sum accumulates terms, dropping any term that is not finite or that would
// push the total out of range.
type sum struct {
	v float64
}

func (s *sum) add(term float64) {
	next := s.v + term
	if math.IsNaN(next) || math.IsInf(next, 0) {
		return
	}
	s.v = next
}

// horner evaluates a polynomial whose coefficients run from the highest power down.
func horner(coeffs []float64, x float64) float64 {
	y := 0.0
	for _, c := range coeffs {
		y = y*x + c
	}
	return y
}

// logBase returns log_|base|(x); ok is false when the base is 0 or 1.
func logBase(x, base float64) (float64, bool) {
	b := math.Abs(base)
	if b == 0 || b == 1 {
		return 0, false
	}
	return math.Log(x) / math.Log(b), true
}

// realPow returns the real part of base^x. A negative base with a fractional
// exponent is a complex number |base|^x * e^(i*pi*x).
func realPow(base, x float64) float64 {
	if base >= 0 || x == math.Trunc(x) {
		return math.Pow(base, x)
	}
	return math.Pow(-base, x) * math.Cos(math.Pi*x)
}
