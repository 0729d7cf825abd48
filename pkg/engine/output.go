package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/Cedric-Boucher/Genetic-Vehicular-Fuel-Efficiency-Solver/pkg/solution"
	"github.com/Cedric-Boucher/Genetic-Vehicular-Fuel-Efficiency-Solver/pkg/trip"
)

// FinalReport summarizes the entire run.
type FinalReport struct {
	Config             Config                `json:"config"`
	Generation         int                   `json:"generation"`
	GenerationsThisRun int                   `json:"generations_this_run"`
	Resumed            bool                  `json:"resumed"`
	StopReason         StopReason            `json:"stop_reason"`
	BestFitness        float64               `json:"best_fitness"`
	Equations          map[string]string     `json:"equations"`
	Errors             solution.ErrorSummary `json:"errors"`
}

// BuildReport decodes the run's elite and measures it against records.
func BuildReport(cfg Config, res Result, records []trip.Record) (FinalReport, error) {
	r := FinalReport{
		Config:             cfg,
		Generation:         res.Generation,
		GenerationsThisRun: res.GenerationsThisRun,
		Resumed:            res.Resumed,
		StopReason:         res.StopReason,
		BestFitness:        res.BestFitness,
	}
	if len(res.Elite) == 0 {
		return r, nil
	}
	s, err := solution.Decode(res.Elite)
	if err != nil {
		return r, fmt.Errorf("decode elite: %w", err)
	}
	r.Equations = s.Equations()
	r.Errors = s.Summarize(records)
	return r, nil
}

// WriteTextProgress writes a generation report in human-readable format.
func WriteTextProgress(w io.Writer, p Progress) {
	fmt.Fprintf(w, "Gen %6d | Best: %.6f | Avg: %.4f | %.2f gen/s | %s\n",
		p.Generation, p.BestFitness, p.MeanFitness, p.GenerationsPerSecond,
		p.Elapsed.Round(time.Millisecond))
}

// WriteTextFinal writes the final report in human-readable format.
func WriteTextFinal(w io.Writer, r FinalReport) {
	fmt.Fprintln(w, "\n========== FINAL RESULT ==========")
	fmt.Fprintf(w, "Strategy:    %s\n", r.Config.Strategy)
	fmt.Fprintf(w, "Population:  %d\n", r.Config.Population)
	fmt.Fprintf(w, "Generation:  %d (%d this run)\n", r.Generation, r.GenerationsThisRun)
	if r.StopReason != StopNone {
		fmt.Fprintf(w, "Stopped by:  %s\n", strings.ReplaceAll(string(r.StopReason), "_", " "))
	}
	fmt.Fprintf(w, "Fitness:     %.6f\n", r.BestFitness)
	if r.Errors.Trips > 0 {
		fmt.Fprintf(w, "Trips:       %d (%d failed)\n", r.Errors.Trips, r.Errors.Failed)
		fmt.Fprintf(w, "Error:       mean %.3f / median %.3f L/100km\n",
			r.Errors.MeanNativeError, r.Errors.MedianNativeError)
		fmt.Fprintf(w, "Error %%:     mean %.2f%% / median %.2f%%\n",
			r.Errors.MeanPercentError, r.Errors.MedianPercentError)
	}
	if len(r.Equations) > 0 {
		fmt.Fprintln(w, "Equation:    efficiency_km_per_l =")
		WriteEquations(w, r.Equations)
	}
	fmt.Fprintln(w, "==================================")
}

// WriteEquations writes one line per variable, in variable order.
func WriteEquations(w io.Writer, equations map[string]string) {
	names := make([]string, 0, len(equations))
	for _, v := range trip.Variables() {
		if _, ok := equations[v.String()]; ok {
			names = append(names, v.String())
		}
	}
	if len(names) != len(equations) {
		names = names[:0]
		for name := range equations {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	for i, name := range names {
		prefix := "    "
		if i > 0 {
			prefix = "  + "
		}
		fmt.Fprintf(w, "%s[%s] %s\n", prefix, name, equations[name])
	}
}

// WriteJSONFinal writes the final report as JSON.
func WriteJSONFinal(w io.Writer, r FinalReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
