package trip

import (
	"math"
	"time"
)

// Variable identifies one normalized input of the fuel-efficiency equation.
type Variable int

const (
	TimeSinceEpoch Variable = iota
	Odometer
	TripDistance
	Temperature
	EngineRunningTime
	TemperatureDelta
	AverageSpeed
	TimeOfDay
	TimeOfYear

	// NumVariables is the number of equation inputs.
	NumVariables = int(TimeOfYear) + 1
)

var variableNames = [NumVariables]string{
	TimeSinceEpoch:    "time_since_epoch",
	Odometer:          "odometer",
	TripDistance:      "trip_distance",
	Temperature:       "temperature",
	EngineRunningTime: "engine_running_time",
	TemperatureDelta:  "temperature_delta",
	AverageSpeed:      "average_speed",
	TimeOfDay:         "time_of_day",
	TimeOfYear:        "time_of_year",
}

func (v Variable) String() string {
	if v < 0 || int(v) >= NumVariables {
		return "unknown"
	}
	return variableNames[v]
}

// Variables returns all inputs in equation order.
func Variables() []Variable {
	vs := make([]Variable, NumVariables)
	for i := range vs {
		vs[i] = Variable(i)
	}
	return vs
}

// Normalization scales. Each attribute is divided by its scale so typical
// values sit near 1.
const (
	secondsPerYear = 365.25 * 24 * 3600
	secondsPerDay  = 24 * 3600

	OdometerScaleKm       = 100000.0
	DistanceScaleKm       = 100.0
	TemperatureScaleK     = 300.0
	EngineScaleMinutes    = 60.0
	TemperatureDeltaScale = 100.0
	AverageSpeedScale     = 120.0 // s/km, i.e. 30 km/h

	// OperatingTemperatureK is the engine's nominal operating point (90 C).
	OperatingTemperatureK = 363.15

	celsiusToKelvin = 273.15
)

// Trip is one row of the trip log, in the units it is recorded in.
type Trip struct {
	Time                    time.Time
	OdometerKm              float64
	DistanceKm              float64
	TemperatureC            float64
	EngineMinutes           float64
	FuelEfficiencyLPer100Km float64
}

// KmPerLiter converts the recorded consumption into the efficiency the
// equation predicts.
func (t Trip) KmPerLiter() float64 {
	if t.FuelEfficiencyLPer100Km <= 0 {
		return 0
	}
	return 100 / t.FuelEfficiencyLPer100Km
}

// AverageSpeedSecondsPerKm is the engine-on time per kilometre travelled, 0
// for a trip that covered no distance.
func (t Trip) AverageSpeedSecondsPerKm() float64 {
	if t.DistanceKm <= 0 {
		return 0
	}
	return t.EngineMinutes * 60 / t.DistanceKm
}

// Record is a trip reduced to normalized equation inputs and the observed
// efficiency in km/L.
type Record struct {
	Attributes [NumVariables]float64
	Observed   float64
}

// Attribute returns the normalized value of v.
func (r Record) Attribute(v Variable) float64 {
	return r.Attributes[v]
}

// Normalize converts trips into records. Time since epoch is measured from
// epoch, or from the earliest trip when epoch is zero.
func Normalize(trips []Trip, epoch time.Time) []Record {
	if epoch.IsZero() {
		epoch = Earliest(trips)
	}
	out := make([]Record, len(trips))
	for i, t := range trips {
		out[i] = NormalizeTrip(t, epoch)
	}
	return out
}

// NormalizeTrip converts a single trip. Every attribute is clamped at zero.
func NormalizeTrip(t Trip, epoch time.Time) Record {
	var r Record
	tempK := t.TemperatureC + celsiusToKelvin

	r.Attributes[TimeSinceEpoch] = t.Time.Sub(epoch).Seconds() / secondsPerYear
	r.Attributes[Odometer] = t.OdometerKm / OdometerScaleKm
	r.Attributes[TripDistance] = t.DistanceKm / DistanceScaleKm
	r.Attributes[Temperature] = tempK / TemperatureScaleK
	r.Attributes[EngineRunningTime] = t.EngineMinutes / EngineScaleMinutes
	r.Attributes[TemperatureDelta] = math.Abs(OperatingTemperatureK-tempK) / TemperatureDeltaScale
	r.Attributes[AverageSpeed] = t.AverageSpeedSecondsPerKm() / AverageSpeedScale
	r.Attributes[TimeOfDay] = secondsFromMidnight(t.Time) / secondsPerDay
	r.Attributes[TimeOfYear] = secondsFromNewYear(t.Time) / secondsPerYear

	for i, a := range r.Attributes {
		if a < 0 || math.IsNaN(a) {
			r.Attributes[i] = 0
		}
	}
	r.Observed = t.KmPerLiter()
	return r
}

// Earliest returns the time of the first trip, or the zero time for none.
func Earliest(trips []Trip) time.Time {
	var first time.Time
	for i, t := range trips {
		if i == 0 || t.Time.Before(first) {
			first = t.Time
		}
	}
	return first
}

func secondsFromMidnight(t time.Time) float64 {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return t.Sub(midnight).Seconds()
}

func secondsFromNewYear(t time.Time) float64 {
	newYear := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
	return t.Sub(newYear).Seconds()
}
