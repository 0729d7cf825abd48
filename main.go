package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Cedric-Boucher/Genetic-Vehicular-Fuel-Efficiency-Solver/pkg/checkpoint"
	"github.com/Cedric-Boucher/Genetic-Vehicular-Fuel-Efficiency-Solver/pkg/engine"
	"github.com/Cedric-Boucher/Genetic-Vehicular-Fuel-Efficiency-Solver/pkg/logging"
	"github.com/Cedric-Boucher/Genetic-Vehicular-Fuel-Efficiency-Solver/pkg/metrics"
	"github.com/Cedric-Boucher/Genetic-Vehicular-Fuel-Efficiency-Solver/pkg/solution"
	"github.com/Cedric-Boucher/Genetic-Vehicular-Fuel-Efficiency-Solver/pkg/stopflag"
	"github.com/Cedric-Boucher/Genetic-Vehicular-Fuel-Efficiency-Solver/pkg/strategy"
	"github.com/Cedric-Boucher/Genetic-Vehicular-Fuel-Efficiency-Solver/pkg/trip"
)

const usage = `usage: fuelsolver [run|show] [flags]

  run   evolve an equation for the trip log (default)
  show  print the best equation stored in the checkpoint
`

func main() {
	cmd, args := "run", os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	cfg, epoch, err := parseFlags(cmd, args)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	im, err := trip.NewImporter(4)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	switch cmd {
	case "run":
		err = run(cfg, epoch, im)
	case "show":
		err = show(cfg, epoch, im)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags applies an optional -config file over the defaults and then the
// flags given on the command line over that.
func parseFlags(cmd string, args []string) (engine.Config, time.Time, error) {
	configPath := ""
	pre := flag.NewFlagSet(cmd, flag.ContinueOnError)
	pre.SetOutput(io.Discard)
	pre.StringVar(&configPath, "config", "", "")
	bindFlags(pre, &engine.Config{}, new(string))
	_ = pre.Parse(args)

	cfg := engine.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = engine.LoadConfig(configPath); err != nil {
			return cfg, time.Time{}, err
		}
	}

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	fs.StringVar(&configPath, "config", configPath, "YAML config file")
	epochText := ""
	bindFlags(fs, &cfg, &epochText)
	if err := fs.Parse(args); err != nil {
		return cfg, time.Time{}, err
	}

	var epoch time.Time
	if epochText != "" {
		t, err := time.Parse("2006-01-02", epochText)
		if err != nil {
			return cfg, time.Time{}, fmt.Errorf("invalid -epoch: %w", err)
		}
		epoch = t
	}
	return cfg, epoch, nil
}

func bindFlags(fs *flag.FlagSet, cfg *engine.Config, epoch *string) {
	fs.StringVar(&cfg.DataPath, "data", cfg.DataPath, "trip log CSV")
	fs.StringVar(&cfg.CheckpointPath, "checkpoint", cfg.CheckpointPath, "checkpoint file")
	fs.StringVar(&cfg.StopFlagPath, "stopflag", cfg.StopFlagPath, "stop flag file (delete or write to it to stop)")
	fs.StringVar(&cfg.Strategy, "strategy", cfg.Strategy, "evolution strategy ("+strings.Join(strategy.Names(), ", ")+")")
	fs.IntVar(&cfg.Population, "population", cfg.Population, "population size")
	fs.IntVar(&cfg.Generations, "generations", cfg.Generations, "generation goal (0 = until stopped)")
	fs.Float64Var(&cfg.FitnessGoal, "fitness", cfg.FitnessGoal, "fitness goal")
	fs.IntVar(&cfg.Parents, "parents", cfg.Parents, "parents kept each generation")
	fs.IntVar(&cfg.MutationGenes, "mutations", cfg.MutationGenes, "genes replaced per offspring")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "number of parallel workers")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "random seed (0 = random)")
	fs.StringVar(&cfg.Format, "format", cfg.Format, "output format (text, json)")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "print every generation")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address")
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "log level")
	fs.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "log format (console, json)")
	fs.StringVar(epoch, "epoch", *epoch, "dataset epoch YYYY-MM-DD (default: earliest trip)")
}

func run(cfg engine.Config, epoch time.Time, im *trip.Importer) error {
	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	records, err := loadRecords(im, cfg.DataPath, epoch)
	if err != nil {
		return err
	}
	log.Info("loaded trips", zap.String("path", cfg.DataPath), zap.Int("trips", len(records)))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer srv.Close()
		log.Info("serving metrics", zap.String("addr", cfg.MetricsAddr))
	}

	deps := engine.Deps{
		Evaluator: engine.NewDatasetEvaluator(records),
		Store:     checkpoint.NewStore(cfg.CheckpointPath),
		StopFlag:  stopflag.New(cfg.StopFlagPath),
		Logger:    log,
		Metrics:   m,
	}
	if cfg.Verbose {
		deps.Observer = engine.ObserverFunc(func(p engine.Progress) {
			engine.WriteTextProgress(os.Stdout, p)
		})
	}

	e, err := engine.New(cfg, deps)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, runErr := e.Run(ctx)
	if res.Generation == 0 {
		return runErr
	}
	report, err := engine.BuildReport(cfg, res, records)
	if err != nil {
		return errors.Join(runErr, err)
	}
	if err := writeFinal(cfg.Format, report); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

func show(cfg engine.Config, epoch time.Time, im *trip.Importer) error {
	report, err := checkpointReport(cfg, epoch, im)
	if err != nil {
		return err
	}
	return writeFinal(cfg.Format, report)
}

// checkpointReport describes the elite stored in the checkpoint, scored
// against the trip log when one is present.
func checkpointReport(cfg engine.Config, epoch time.Time, im *trip.Importer) (engine.FinalReport, error) {
	cp, err := checkpoint.NewStore(cfg.CheckpointPath).Load()
	if err != nil {
		return engine.FinalReport{}, err
	}
	elite := cp.Elite
	if len(elite) == 0 {
		elite = cp.Population[0]
	}
	s, err := solution.Decode(elite)
	if err != nil {
		return engine.FinalReport{}, fmt.Errorf("decode elite: %w", err)
	}

	res := engine.Result{
		Generation:  cp.Generation,
		Elite:       elite,
		BestFitness: cp.EliteFitness,
	}
	var records []trip.Record
	if _, statErr := os.Stat(cfg.DataPath); statErr == nil {
		if records, err = loadRecords(im, cfg.DataPath, epoch); err != nil {
			return engine.FinalReport{}, err
		}
		if res.BestFitness, err = s.DatasetFitness(records); err != nil {
			return engine.FinalReport{}, err
		}
	}
	return engine.BuildReport(cfg, res, records)
}

func loadRecords(im *trip.Importer, path string, epoch time.Time) ([]trip.Record, error) {
	trips, err := im.Load(path)
	if err != nil {
		return nil, err
	}
	if len(trips) == 0 {
		return nil, fmt.Errorf("%s: %w", path, solution.ErrEmptyDataset)
	}
	return trip.Normalize(trips, epoch), nil
}

func writeFinal(format string, r engine.FinalReport) error {
	if format == "json" {
		if err := engine.WriteJSONFinal(os.Stdout, r); err != nil {
			return fmt.Errorf("writing JSON: %w", err)
		}
		return nil
	}
	engine.WriteTextFinal(os.Stdout, r)
	return nil
}
