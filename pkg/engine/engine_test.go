package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Cedric-Boucher/Genetic-Vehicular-Fuel-Efficiency-Solver/pkg/checkpoint"
	"github.com/Cedric-Boucher/Genetic-Vehicular-Fuel-Efficiency-Solver/pkg/metrics"
	"github.com/Cedric-Boucher/Genetic-Vehicular-Fuel-Efficiency-Solver/pkg/solution"
	"github.com/Cedric-Boucher/Genetic-Vehicular-Fuel-Efficiency-Solver/pkg/stopflag"
	"github.com/Cedric-Boucher/Genetic-Vehicular-Fuel-Efficiency-Solver/pkg/trip"
)

var errBoom = errors.New("boom")

// sphere rewards genes close to 0.25.
type sphere struct {
	calls atomic.Int64
	// hook runs before each evaluation with the 1-based call number
	hook func(call int64) error
}

func (s *sphere) Evaluate(genes []float64) (float64, error) {
	n := s.calls.Add(1)
	if s.hook != nil {
		if err := s.hook(n); err != nil {
			return 0, err
		}
	}
	f := 0.0
	for _, g := range genes {
		f -= (g - 0.25) * (g - 0.25)
	}
	return f, nil
}

// recorder is a sphere that remembers every chromosome it scored.
type recorder struct {
	sphere
	mu   sync.Mutex
	seen map[string]bool
}

func (r *recorder) Evaluate(genes []float64) (float64, error) {
	r.mu.Lock()
	if r.seen == nil {
		r.seen = make(map[string]bool)
	}
	r.seen[fmt.Sprint(genes)] = true
	r.mu.Unlock()
	return r.sphere.Evaluate(genes)
}

func (r *recorder) evaluated(genes []float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seen[fmt.Sprint(genes)]
}

type memStore struct {
	mu      sync.Mutex
	saved   []checkpoint.Checkpoint
	saveErr error
}

func (m *memStore) Load() (checkpoint.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saved) == 0 {
		return checkpoint.Checkpoint{}, checkpoint.ErrNotFound
	}
	return m.saved[len(m.saved)-1], nil
}

func (m *memStore) Save(cp checkpoint.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, cp)
	return nil
}

func (m *memStore) last() checkpoint.Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[len(m.saved)-1]
}

type memFlag struct {
	raised atomic.Bool
	resets atomic.Int32
}

func (f *memFlag) Reset() error {
	f.resets.Add(1)
	f.raised.Store(false)
	return nil
}

func (f *memFlag) Raised() (bool, error) { return f.raised.Load(), nil }

// failingFlag errors on its failOn-th check.
type failingFlag struct {
	checks int
	failOn int
}

func (f *failingFlag) Reset() error { return nil }

func (f *failingFlag) Raised() (bool, error) {
	f.checks++
	if f.checks == f.failOn {
		return false, errBoom
	}
	return false, nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ChromosomeLength = 8
	cfg.Population = 10
	cfg.Parents = 3
	cfg.MutationGenes = 1
	cfg.Generations = 20
	cfg.FitnessGoal = 1 // unreachable for sphere
	cfg.Seed = 42
	return cfg
}

func newEngine(t *testing.T, cfg Config, ev Evaluator, store CheckpointStore, flag StopSignal) *Engine {
	t.Helper()
	e, err := New(cfg, Deps{
		Evaluator: ev,
		Store:     store,
		StopFlag:  flag,
		Logger:    zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return e
}

func TestEngine_SmallRun(t *testing.T) {
	cfg := testConfig()
	store := &memStore{}
	flag := &memFlag{}
	e := newEngine(t, cfg, &sphere{}, store, flag)

	res, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StopGenerationGoal, res.StopReason)
	assert.Equal(t, 20, res.Generation)
	assert.Equal(t, 20, res.GenerationsThisRun)
	assert.False(t, res.Resumed)
	assert.Len(t, res.Elite, cfg.ChromosomeLength)
	assert.Equal(t, StateTerminated, e.State())
	assert.Equal(t, int32(1), flag.resets.Load())

	// one checkpoint per generation
	require.Len(t, store.saved, 20)
	for i, cp := range store.saved {
		assert.Equal(t, i+1, cp.Generation)
		assert.Len(t, cp.Population, cfg.Population)
	}
	last := store.last()
	assert.Equal(t, res.Elite, last.Elite)
	assert.Equal(t, res.BestFitness, last.EliteFitness)
	assert.Equal(t, int64(42), last.Seed)
}

func TestEngine_ElitismNeverLosesFitness(t *testing.T) {
	cfg := testConfig()
	cfg.Generations = 40

	var bests []float64
	e, err := New(cfg, Deps{
		Evaluator: &sphere{},
		Store:     &memStore{},
		StopFlag:  &memFlag{},
		Observer: ObserverFunc(func(p Progress) {
			bests = append(bests, p.BestFitness)
			assert.Len(t, p.Elite, cfg.ChromosomeLength)
		}),
	})
	require.NoError(t, err)

	_, err = e.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, bests, 40)
	for i := 1; i < len(bests); i++ {
		assert.GreaterOrEqual(t, bests[i], bests[i-1], "generation %d", i+1)
	}
	assert.Greater(t, bests[len(bests)-1], bests[0])
}

func TestEngine_EliteIsNotReevaluated(t *testing.T) {
	cfg := testConfig()
	cfg.Generations = 5
	ev := &sphere{}
	e := newEngine(t, cfg, ev, &memStore{}, &memFlag{})

	_, err := e.Run(context.Background())
	require.NoError(t, err)
	// full population once, then everyone but the elite
	assert.Equal(t, int64(10+4*9), ev.calls.Load())
}

func TestEngine_StopFlagDuringGenerationThree(t *testing.T) {
	cfg := testConfig()
	cfg.Generations = 100
	flag := &memFlag{}
	store := &memStore{}
	// generation 3 starts at call 10 + 9 + 1
	ev := &sphere{hook: func(call int64) error {
		if call == 20 {
			flag.raised.Store(true)
		}
		return nil
	}}
	e := newEngine(t, cfg, ev, store, flag)

	res, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StopFlag, res.StopReason)
	assert.Equal(t, 3, res.Generation)
	// generation 3 finished evaluating every pending member
	assert.Equal(t, int64(10+9+9), ev.calls.Load())
	assert.Equal(t, 3, store.last().Generation)
}

func TestEngine_FitnessGoal(t *testing.T) {
	cfg := testConfig()
	cfg.FitnessGoal = -5 // sphere scores over 8 genes in [0, 1] are above -4.5
	store := &memStore{}
	e := newEngine(t, cfg, &sphere{}, store, &memFlag{})

	res, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopFitnessGoal, res.StopReason)
	assert.Equal(t, 1, res.Generation)
	assert.Len(t, store.saved, 1)
}

func TestEngine_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := newEngine(t, testConfig(), &sphere{}, &memStore{}, &memFlag{})
	res, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StopCanceled, res.StopReason)
	assert.Equal(t, 1, res.Generation)
}

func TestEngine_EvaluationErrorResavesSnapshot(t *testing.T) {
	cfg := testConfig()
	store := &memStore{}
	ev := &sphere{hook: func(call int64) error {
		if call == 15 {
			return errBoom
		}
		return nil
	}}
	e := newEngine(t, cfg, ev, store, &memFlag{})

	res, err := e.Run(context.Background())
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, res.Generation)
	assert.Equal(t, StopNone, res.StopReason)
	assert.Equal(t, StateTerminated, e.State())

	require.Len(t, store.saved, 2)
	assert.Equal(t, 1, store.saved[0].Generation)
	assert.Equal(t, store.saved[0].Population, store.saved[1].Population)
}

func TestEngine_CheckpointSaveError(t *testing.T) {
	store := &memStore{saveErr: errBoom}
	e := newEngine(t, testConfig(), &sphere{}, store, &memFlag{})

	res, err := e.Run(context.Background())
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, res.Generation)
}

func TestEngine_ResumeFromCheckpoint(t *testing.T) {
	dir := t.TempDir()
	store := checkpoint.NewStore(filepath.Join(dir, "equation.json"))
	flag := stopflag.New(filepath.Join(dir, "stop.deleteme"))

	cfg := testConfig()
	cfg.Generations = 5
	firstEv := &recorder{}
	first, err := newEngine(t, cfg, firstEv, store, flag).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, first.Generation)

	stopped, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 5, stopped.Generation)
	assert.Equal(t, stopped.Elite, stopped.Population[0])
	// everyone but the elite is a fresh offspring
	unseen := 0
	for _, genes := range stopped.Population[1:] {
		if !firstEv.evaluated(genes) {
			unseen++
		}
	}
	assert.Equal(t, cfg.Population-1, unseen)

	cfg.Generations = 8
	ev := &sphere{}
	second, err := newEngine(t, cfg, ev, store, flag).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, second.Resumed)
	assert.Equal(t, 8, second.Generation)
	assert.Equal(t, 3, second.GenerationsThisRun)
	assert.GreaterOrEqual(t, second.BestFitness, first.BestFitness)
	// the restored elite keeps its fitness, only offspring are scored
	assert.Equal(t, int64(3*9), ev.calls.Load())

	cp, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 8, cp.Generation)
}

func TestEngine_ResumeAfterStopFlagBreedsNewGeneration(t *testing.T) {
	dir := t.TempDir()
	store := checkpoint.NewStore(filepath.Join(dir, "equation.json"))
	flag := stopflag.New(filepath.Join(dir, "stop.deleteme"))

	cfg := testConfig()
	cfg.Generations = 100
	firstEv := &recorder{}
	// raise the flag during generation 2
	firstEv.hook = func(call int64) error {
		if call == 11 {
			return flag.Raise()
		}
		return nil
	}
	res, err := newEngine(t, cfg, firstEv, store, flag).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StopFlag, res.StopReason)
	require.Equal(t, 2, res.Generation)

	cfg.Generations = 3
	ev := &recorder{}
	res, err = newEngine(t, cfg, ev, store, flag).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Generation)
	assert.Equal(t, int64(cfg.Population-1), ev.calls.Load())
	for genes := range ev.seen {
		assert.False(t, firstEv.seen[genes], "generation 3 rescored a member of generation 2")
	}
}

func TestEngine_StopFlagErrorKeepsCompletedGeneration(t *testing.T) {
	store := &memStore{}
	flag := &failingFlag{failOn: 3}
	e := newEngine(t, testConfig(), &sphere{}, store, flag)

	res, err := e.Run(context.Background())
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 3, res.Generation)
	assert.Equal(t, StopNone, res.StopReason)
	assert.Equal(t, StateTerminated, e.State())

	require.Len(t, store.saved, 3)
	last := store.last()
	assert.Equal(t, 3, last.Generation)
	assert.Equal(t, res.Elite, last.Elite)
	assert.Equal(t, last.Elite, last.Population[0])
}

func TestEngine_ResumedStopFlagIsCleared(t *testing.T) {
	dir := t.TempDir()
	flag := stopflag.New(filepath.Join(dir, "stop.deleteme"))
	require.NoError(t, flag.Raise())

	cfg := testConfig()
	cfg.Generations = 2
	store := checkpoint.NewStore(filepath.Join(dir, "equation.json"))
	res, err := newEngine(t, cfg, &sphere{}, store, flag).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopGenerationGoal, res.StopReason)
}

func TestEngine_CheckpointMismatch(t *testing.T) {
	store := &memStore{saved: []checkpoint.Checkpoint{{
		Generation: 3,
		Population: [][]float64{{0.1, 0.2}},
	}}}
	e := newEngine(t, testConfig(), &sphere{}, store, &memFlag{})

	_, err := e.Run(context.Background())
	require.ErrorIs(t, err, ErrCheckpointMismatch)
	assert.Equal(t, StateTerminated, e.State())
}

func TestEngine_DeterministicAcrossWorkers(t *testing.T) {
	run := func(workers int) Result {
		cfg := testConfig()
		cfg.Workers = workers
		res, err := newEngine(t, cfg, &sphere{}, &memStore{}, &memFlag{}).Run(context.Background())
		require.NoError(t, err)
		return res
	}
	a, b := run(1), run(4)
	assert.Equal(t, a.Elite, b.Elite)
	assert.Equal(t, a.BestFitness, b.BestFitness)
}

func TestEngine_Metrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	cfg := testConfig()
	cfg.Generations = 4
	e, err := New(cfg, Deps{
		Evaluator: &sphere{},
		Store:     &memStore{},
		StopFlag:  &memFlag{},
		Metrics:   m,
	})
	require.NoError(t, err)

	res, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.GenerationsTotal))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Generation))
	assert.Equal(t, float64(10+3*9), testutil.ToFloat64(m.EvaluationsTotal))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.CheckpointsTotal.WithLabelValues("ok")))
	assert.Equal(t, res.BestFitness, testutil.ToFloat64(m.BestFitness))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.State.WithLabelValues("terminated")))
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(testConfig(), Deps{Evaluator: &sphere{}})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg := testConfig()
	cfg.Population = 1
	_, err = New(cfg, Deps{Evaluator: &sphere{}, Store: &memStore{}, StopFlag: &memFlag{}})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDatasetEvaluator_Run(t *testing.T) {
	start := time.Date(2023, 6, 1, 8, 0, 0, 0, time.UTC)
	trips := []trip.Trip{
		{Time: start, OdometerKm: 42000, DistanceKm: 12, TemperatureC: 18, EngineMinutes: 20, FuelEfficiencyLPer100Km: 7.5},
		{Time: start.Add(26 * time.Hour), OdometerKm: 42030, DistanceKm: 30, TemperatureC: 22, EngineMinutes: 28, FuelEfficiencyLPer100Km: 6.1},
		{Time: start.Add(80 * time.Hour), OdometerKm: 42035, DistanceKm: 0, TemperatureC: -4, EngineMinutes: 5, FuelEfficiencyLPer100Km: 12},
	}
	records := trip.Normalize(trips, time.Time{})

	cfg := DefaultConfig()
	cfg.Population = 6
	cfg.Parents = 2
	cfg.Generations = 3
	cfg.Workers = 2
	cfg.Seed = 7
	require.Equal(t, solution.ChromosomeLength, cfg.ChromosomeLength)

	ev := NewDatasetEvaluator(records)
	res, err := newEngine(t, cfg, ev, &memStore{}, &memFlag{}).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Elite, solution.ChromosomeLength)

	again, err := ev.Evaluate(res.Elite)
	require.NoError(t, err)
	assert.Equal(t, res.BestFitness, again)

	report, err := BuildReport(cfg, res, records)
	require.NoError(t, err)
	assert.Len(t, report.Equations, trip.NumVariables)
	assert.Equal(t, 3, report.Errors.Trips)
}

func TestDatasetEvaluator_RejectsBadChromosome(t *testing.T) {
	ev := NewDatasetEvaluator(nil)
	_, err := ev.Evaluate(make([]float64, 3))
	assert.ErrorIs(t, err, solution.ErrChromosomeLength)
}
