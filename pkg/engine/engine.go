package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Cedric-Boucher/Genetic-Vehicular-Fuel-Efficiency-Solver/pkg/checkpoint"
	"github.com/Cedric-Boucher/Genetic-Vehicular-Fuel-Efficiency-Solver/pkg/metrics"
	"github.com/Cedric-Boucher/Genetic-Vehicular-Fuel-Efficiency-Solver/pkg/strategy"
)

// ErrCheckpointMismatch is returned when a checkpoint does not fit the
// configured chromosome length.
var ErrCheckpointMismatch = errors.New("checkpoint does not match config")

// Deps are the collaborators injected into the engine.
type Deps struct {
	Evaluator Evaluator
	Store     CheckpointStore
	StopFlag  StopSignal
	Observer  Observer               // optional
	Clock     Clock                  // optional, defaults to the system clock
	Logger    *zap.Logger            // optional
	Metrics   *metrics.SearchMetrics // optional
}

// Individual is a population member and its fitness, once evaluated.
type Individual struct {
	Genes     strategy.Chromosome
	Fitness   float64
	Evaluated bool
}

// Progress describes a completed generation.
type Progress struct {
	Generation           int
	BestFitness          float64
	MeanFitness          float64
	Elite                []float64
	GenerationsPerSecond float64
	Elapsed              time.Duration
}

// Result summarizes a finished run.
type Result struct {
	Generation         int // generations completed, including resumed ones
	GenerationsThisRun int
	Resumed            bool
	StopReason         StopReason
	Elite              []float64
	BestFitness        float64
}

// Engine runs the evolutionary search.
type Engine struct {
	cfg      Config
	deps     Deps
	strategy strategy.Strategy
	log      *zap.Logger
	rng      *rand.Rand
	seed     int64

	state      State
	population []Individual
	generation int
	elite      Individual
	resumed    bool

	// last persisted state, re-saved if a later generation fails
	snapshot *checkpoint.Checkpoint
}

// New creates a new engine from the given config.
func New(cfg Config, deps Deps) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Evaluator == nil || deps.Store == nil || deps.StopFlag == nil {
		return nil, fmt.Errorf("%w: evaluator, checkpoint store and stop flag are required", ErrInvalidConfig)
	}
	s, err := strategy.Get(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Engine{
		cfg:      cfg,
		deps:     deps,
		strategy: s,
		log:      log,
		state:    StateInitializing,
	}, nil
}

// State returns the controller's current phase.
func (e *Engine) State() State { return e.state }

// Generation returns the number of completed generations.
func (e *Engine) Generation() int { return e.generation }

// Run executes the evolutionary loop until a goal is reached or a stop is
// requested. The stop flag and ctx are only consulted between generations;
// a generation that has started always completes and is checkpointed.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	if err := e.initialize(); err != nil {
		e.setState(StateTerminated)
		return Result{}, err
	}

	startGen := e.generation
	start := e.deps.Clock.Now()

	for {
		genStart := e.deps.Clock.Now()

		e.setState(StateEvaluating)
		if err := e.evaluatePopulation(); err != nil {
			return e.fail(startGen, fmt.Errorf("generation %d: %w", e.generation+1, err))
		}

		e.setState(StateSelecting)
		mean := e.selectElite()
		e.generation++

		now := e.deps.Clock.Now()
		e.report(Progress{
			Generation:           e.generation,
			BestFitness:          e.elite.Fitness,
			MeanFitness:          mean,
			Elite:                e.elite.Genes.Clone(),
			GenerationsPerSecond: throughput(e.generation-startGen, now.Sub(start).Seconds()),
			Elapsed:              now.Sub(start),
		}, now.Sub(genStart))

		reason, stopErr := e.stopReason(ctx)

		// the checkpoint always holds the next, bred population
		e.setState(StateMutating)
		next := e.evolve()

		e.setState(StateCheckpointing)
		if err := e.save(next); err != nil {
			e.setState(StateTerminated)
			return e.result(startGen, StopNone), errors.Join(stopErr, err)
		}
		e.population = next

		if stopErr != nil {
			e.log.Error("search failed", zap.Error(stopErr), zap.Int("generation", e.generation))
			e.setState(StateTerminated)
			return e.result(startGen, StopNone), stopErr
		}
		if reason != StopNone {
			e.log.Info("search stopped",
				zap.String("reason", string(reason)),
				zap.Int("generation", e.generation),
				zap.Float64("best_fitness", e.elite.Fitness))
			e.setState(StateTerminated)
			return e.result(startGen, reason), nil
		}
	}
}

// initialize resets the stop flag and restores the last checkpoint, or
// creates a random population when there is none.
func (e *Engine) initialize() error {
	e.setState(StateInitializing)
	if err := e.deps.StopFlag.Reset(); err != nil {
		return err
	}

	cp, err := e.deps.Store.Load()
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
		e.seed = e.cfg.Seed
		if e.seed == 0 {
			e.seed = rand.Int63()
		}
		e.rng = rand.New(rand.NewSource(e.seed))
		pop := e.strategy.Initialize(e.rng, e.cfg.Population, e.cfg.ChromosomeLength)
		e.population = individuals(pop)
		e.log.Info("starting new search",
			zap.String("strategy", e.strategy.Name()),
			zap.Int("population", e.cfg.Population),
			zap.Int("chromosome_length", e.cfg.ChromosomeLength),
			zap.Int("workers", e.cfg.Workers),
			zap.Int64("seed", e.seed))
		return nil
	case err != nil:
		return fmt.Errorf("restore: %w", err)
	}

	if err := e.restore(cp); err != nil {
		return err
	}
	e.log.Info("resuming search from checkpoint",
		zap.Int("generation", e.generation),
		zap.Int("population", len(e.population)),
		zap.Float64("best_fitness", e.elite.Fitness))
	return nil
}

func (e *Engine) restore(cp checkpoint.Checkpoint) error {
	for i, genes := range cp.Population {
		if len(genes) != e.cfg.ChromosomeLength {
			return fmt.Errorf("%w: member %d has %d genes, want %d",
				ErrCheckpointMismatch, i, len(genes), e.cfg.ChromosomeLength)
		}
	}
	if len(cp.Elite) != 0 && len(cp.Elite) != e.cfg.ChromosomeLength {
		return fmt.Errorf("%w: elite has %d genes", ErrCheckpointMismatch, len(cp.Elite))
	}
	if len(cp.Population) != e.cfg.Population {
		e.log.Warn("checkpoint population size differs from config, keeping checkpoint size",
			zap.Int("checkpoint", len(cp.Population)),
			zap.Int("config", e.cfg.Population))
	}

	pop := make([]strategy.Chromosome, len(cp.Population))
	for i, genes := range cp.Population {
		pop[i] = strategy.Chromosome(genes).Clone()
	}
	e.population = individuals(pop)
	e.generation = cp.Generation
	e.seed = cp.Seed
	// offset by the generation so a resumed run does not replay old draws
	e.rng = rand.New(rand.NewSource(cp.Seed + int64(cp.Generation)))
	if len(cp.Elite) > 0 {
		e.elite = Individual{
			Genes:     strategy.Chromosome(cp.Elite).Clone(),
			Fitness:   cp.EliteFitness,
			Evaluated: true,
		}
		// the carried elite keeps its stored fitness
		if len(e.population) > 0 && slices.Equal(e.population[0].Genes, e.elite.Genes) {
			e.population[0].Fitness = cp.EliteFitness
			e.population[0].Evaluated = true
		}
	}
	e.resumed = true
	e.snapshot = &cp
	return nil
}

// evaluatePopulation scores every member without a fitness. Pending members
// are split into disjoint sets, one per worker, and the call returns once all
// workers are done.
func (e *Engine) evaluatePopulation() error {
	var pending []int
	for i, ind := range e.population {
		if !ind.Evaluated {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	workers := e.cfg.Workers
	if workers > len(pending) {
		workers = len(pending)
	}

	fitnesses := make([]float64, len(e.population))
	failures := make([]int, workers)
	var g errgroup.Group
	g.SetLimit(workers)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for k := w; k < len(pending); k += workers {
				idx := pending[k]
				f, err := e.deps.Evaluator.Evaluate(e.population[idx].Genes)
				if err != nil {
					failures[w]++
					return fmt.Errorf("member %d: %w", idx, err)
				}
				fitnesses[idx] = f
			}
			return nil
		})
	}
	err := g.Wait()

	failed := 0
	for _, n := range failures {
		failed += n
	}
	e.deps.Metrics.RecordEvaluations(len(pending), failed)
	if err != nil {
		return err
	}

	for _, idx := range pending {
		e.population[idx].Fitness = fitnesses[idx]
		e.population[idx].Evaluated = true
	}
	return nil
}

// selectElite ranks the evaluated population, keeps the best chromosome seen
// so far and returns the population's mean fitness.
func (e *Engine) selectElite() float64 {
	fitnesses := e.fitnesses()
	best := strategy.Rank(fitnesses)[0]
	if !e.elite.Evaluated || fitnesses[best] > e.elite.Fitness {
		e.elite = Individual{
			Genes:     e.population[best].Genes.Clone(),
			Fitness:   fitnesses[best],
			Evaluated: true,
		}
	}

	mean := 0.0
	for _, f := range fitnesses {
		mean += f
	}
	return mean / float64(len(fitnesses))
}

// evolve breeds the next population. Its first member is the current best,
// which keeps its fitness and is not evaluated again.
func (e *Engine) evolve() []Individual {
	pop := make([]strategy.Chromosome, len(e.population))
	for i, ind := range e.population {
		pop[i] = ind.Genes
	}
	fitnesses := e.fitnesses()
	best := strategy.Rank(fitnesses)[0]

	nextPop := e.strategy.Evolve(pop, fitnesses, e.cfg.Params(), e.rng)
	next := individuals(nextPop)
	next[0].Fitness = fitnesses[best]
	next[0].Evaluated = true
	return next
}

func (e *Engine) stopReason(ctx context.Context) (StopReason, error) {
	if e.cfg.Generations > 0 && e.generation >= e.cfg.Generations {
		return StopGenerationGoal, nil
	}
	if e.elite.Fitness >= e.cfg.FitnessGoal {
		return StopFitnessGoal, nil
	}
	raised, err := e.deps.StopFlag.Raised()
	if err != nil {
		return StopNone, err
	}
	if raised {
		return StopFlag, nil
	}
	if ctx.Err() != nil {
		return StopCanceled, nil
	}
	return StopNone, nil
}

func (e *Engine) save(pop []Individual) error {
	cp := checkpoint.Checkpoint{
		Seed:         e.seed,
		Generation:   e.generation,
		Population:   make([][]float64, len(pop)),
		Elite:        e.elite.Genes.Clone(),
		EliteFitness: e.elite.Fitness,
	}
	for i, ind := range pop {
		cp.Population[i] = ind.Genes.Clone()
	}

	err := e.deps.Store.Save(cp)
	e.deps.Metrics.RecordCheckpoint(err)
	if err != nil {
		return fmt.Errorf("checkpoint generation %d: %w", e.generation, err)
	}
	e.snapshot = &cp
	return nil
}

// fail re-saves the last complete generation before surfacing err.
func (e *Engine) fail(startGen int, err error) (Result, error) {
	e.log.Error("search failed", zap.Error(err), zap.Int("generation", e.generation))
	if e.snapshot != nil {
		e.setState(StateCheckpointing)
		saveErr := e.deps.Store.Save(*e.snapshot)
		e.deps.Metrics.RecordCheckpoint(saveErr)
		if saveErr != nil {
			err = errors.Join(err, fmt.Errorf("re-save checkpoint: %w", saveErr))
		}
	}
	e.setState(StateTerminated)
	return e.result(startGen, StopNone), err
}

func (e *Engine) report(p Progress, took time.Duration) {
	e.log.Info("generation complete",
		zap.Int("generation", p.Generation),
		zap.Float64("best_fitness", p.BestFitness),
		zap.Float64("mean_fitness", p.MeanFitness),
		zap.Float64("gens_per_sec", p.GenerationsPerSecond))
	e.deps.Metrics.RecordGeneration(p.Generation, p.BestFitness, took)
	if e.deps.Observer != nil {
		e.deps.Observer.OnGenerationComplete(p)
	}
}

func (e *Engine) setState(s State) {
	if e.state != s {
		e.log.Debug("state", zap.Stringer("from", e.state), zap.Stringer("to", s))
	}
	e.state = s
	e.deps.Metrics.SetState(s.String(), stateNames)
}

func (e *Engine) fitnesses() []float64 {
	out := make([]float64, len(e.population))
	for i, ind := range e.population {
		out[i] = ind.Fitness
	}
	return out
}

func (e *Engine) result(startGen int, reason StopReason) Result {
	return Result{
		Generation:         e.generation,
		GenerationsThisRun: e.generation - startGen,
		Resumed:            e.resumed,
		StopReason:         reason,
		Elite:              e.elite.Genes.Clone(),
		BestFitness:        e.elite.Fitness,
	}
}

func individuals(pop []strategy.Chromosome) []Individual {
	out := make([]Individual, len(pop))
	for i, c := range pop {
		out[i] = Individual{Genes: c}
	}
	return out
}

func throughput(generations int, seconds float64) float64 {
	if seconds <= 0 {
		return 0
	}
	return float64(generations) / seconds
}
