package gene

import (
	"fmt"

	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// Epsilon keeps a raw gene away from the 0 and 1 quantiles, which are infinite.
	Epsilon = 1e-10

	// StandardDeviationMultiplier is the upper end of the range a scale gene maps onto.
	StandardDeviationMultiplier = 10.0
)

// Clamp pulls raw into the open interval (Epsilon, 1-Epsilon).
func Clamp(raw float64) float64 {
	if raw != raw || raw < Epsilon {
		// NaN sorts nowhere, treat it like the lower bound.
		return Epsilon
	}
	if raw > 1-Epsilon {
		return 1 - Epsilon
	}
	return raw
}

// Decode maps a uniform gene onto a zero-mean Gaussian draw with the given
// standard deviation.
func Decode(raw, stdDev float64) float64 {
	return DecodeWithMean(raw, stdDev, 0)
}

// DecodeWithMean maps a uniform gene through the inverse standard-normal CDF,
// then scales by stdDev and shifts by mean.
func DecodeWithMean(raw, stdDev, mean float64) float64 {
	u := Clamp(raw)
	if !(u > 0 && u < 1) {
		panic(fmt.Sprintf("gene: clamped value %v outside (0, 1)", u))
	}
	return distuv.UnitNormal.Quantile(u)*stdDev + mean
}

// Scale maps a scale gene in [0, 1] linearly onto [0, StandardDeviationMultiplier].
func Scale(s float64) float64 {
	switch {
	case s != s || s < 0:
		return 0
	case s > 1:
		return StandardDeviationMultiplier
	}
	return s * StandardDeviationMultiplier
}
