package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/urmzd/linear-gp/internal/model"
	"github.com/urmzd/linear-gp/pkg/lgp"
)

const (
	benchmarksDir = "benchmarks"
	exportsDir    = "exports"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "run":
		return runRun(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "fitness":
		return runFitness(ctx, args[1:])
	case "top":
		return runTop(ctx, args[1:])
	case "lineage":
		return runLineage(ctx, args[1:])
	case "population":
		return runPopulation(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "problem-summary":
		return runProblemSummary(ctx, args[1:])
	case "reset":
		return runReset(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func usageError(message string) error {
	return fmt.Errorf(`%s

usage: lgpctl <command> [flags]

commands:
  run              evolve a population against a problem
  runs             list recent runs
  fitness          print a run's best-by-generation series
  top              print a run's best programs
  lineage          print a run's lineage records
  population       print a run's final population record
  export           copy a run's artifacts to a directory
  problem-summary  print the best observed fitness for a problem
  reset            drop all persisted runs`, message)
}

func newClient(storeKind, dbPath string) (*lgp.Client, error) {
	return lgp.New(lgp.Options{
		StoreKind:     storeKind,
		DBPath:        dbPath,
		BenchmarksDir: benchmarksDir,
		ExportsDir:    exportsDir,
	})
}

func storeFlags(fs *flag.FlagSet) (*string, *string) {
	storeKind := fs.String("store", "", "store backend: memory or sqlite")
	dbPath := fs.String("db", "", "sqlite database path")
	return storeKind, dbPath
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	storeKind, dbPath := storeFlags(fs)
	problem := fs.String("problem", "iris", "problem to evolve against: iris, cart-pole, mountain-car")
	population := fs.Int("population", 100, "population size")
	generations := fs.Int("generations", 100, "generation count")
	trials := fs.Int("trials", 5, "fitness trials per individual, aggregated by median")
	gap := fs.Float64("gap", 0.5, "fraction of the population replaced each generation")
	mutation := fs.Float64("mutation", 0.5, "share of offspring produced by mutation")
	crossover := fs.Float64("crossover", 0.5, "share of offspring produced by crossover")
	maxInstructions := fs.Int("max-instructions", 100, "maximum program length")
	extras := fs.Int("extras", 1, "working registers beyond the action registers")
	externalFactor := fs.Float64("external-factor", 1, "multiplier applied to external input reads")
	defaultFitness := fs.Float64("default-fitness", 0, "fitness assigned to faulted trials")
	seed := fs.Int64("seed", 0, "root seed; 0 derives one from OS entropy")
	workers := fs.Int("workers", 4, "parallel fitness workers")
	quiet := fs.Bool("quiet", false, "suppress per-generation progress lines")
	useQ := fs.Bool("q", false, "enable the Q-learning overlay on episodic problems")
	qAlpha := fs.Float64("q-alpha", 0.1, "Q learning rate")
	qGamma := fs.Float64("q-gamma", 0.9, "Q discount factor")
	qEpsilon := fs.Float64("q-epsilon", 0.05, "Q exploration rate")
	qAlphaDecay := fs.Float64("q-alpha-decay", 0.01, "per-step learning rate decay")
	qEpsilonDecay := fs.Float64("q-epsilon-decay", 0.001, "per-step exploration decay")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer client.Close()

	req := lgp.RunRequest{
		Problem:          *problem,
		Population:       *population,
		Generations:      *generations,
		Trials:           *trials,
		Gap:              *gap,
		MutationPercent:  *mutation,
		CrossoverPercent: *crossover,
		MaxInstructions:  *maxInstructions,
		Extras:           *extras,
		ExternalFactor:   *externalFactor,
		DefaultFitness:   defaultFitness,
		Workers:          *workers,
	}
	if *seed != 0 {
		req.Seed = seed
	}
	if *useQ {
		req.Q = &model.QParameters{
			Alpha:        *qAlpha,
			Gamma:        *qGamma,
			Epsilon:      *qEpsilon,
			AlphaDecay:   *qAlphaDecay,
			EpsilonDecay: *qEpsilonDecay,
		}
	}
	if !*quiet {
		req.OnGeneration = func(generation int, population []model.Program) {
			fmt.Printf("generation %d: best=%.4f median=%.4f worst=%.4f\n",
				generation,
				*population[0].Fitness,
				*population[len(population)/2].Fitness,
				*population[len(population)-1].Fitness)
		}
	}

	summary, err := client.Run(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("run id: %s\n", summary.RunID)
	fmt.Printf("seed: %d\n", summary.Seed)
	fmt.Printf("final best fitness: %.4f\n", summary.FinalBestFitness)
	fmt.Printf("artifacts: %s\n", summary.ArtifactsDir)
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	storeKind, dbPath := storeFlags(fs)
	limit := fs.Int("limit", 20, "maximum entries to list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer client.Close()

	items, err := client.Runs(ctx, lgp.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	return printJSON(items)
}

func runFitness(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fitness", flag.ContinueOnError)
	storeKind, dbPath := storeFlags(fs)
	runID := fs.String("run", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer client.Close()

	history, err := client.FitnessHistory(ctx, *runID, *latest)
	if err != nil {
		return err
	}
	return printJSON(history)
}

func runTop(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("top", flag.ContinueOnError)
	storeKind, dbPath := storeFlags(fs)
	runID := fs.String("run", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	limit := fs.Int("limit", 0, "maximum programs to print; 0 prints all")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer client.Close()

	top, err := client.TopPrograms(ctx, lgp.TopProgramsRequest{RunID: *runID, Latest: *latest, Limit: *limit})
	if err != nil {
		return err
	}
	return printJSON(top)
}

func runLineage(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("lineage", flag.ContinueOnError)
	storeKind, dbPath := storeFlags(fs)
	runID := fs.String("run", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	limit := fs.Int("limit", 0, "maximum records to print; 0 prints all")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer client.Close()

	lineage, err := client.Lineage(ctx, *runID, *latest, *limit)
	if err != nil {
		return err
	}
	return printJSON(lineage)
}

func runPopulation(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("population", flag.ContinueOnError)
	storeKind, dbPath := storeFlags(fs)
	runID := fs.String("run", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer client.Close()

	population, err := client.Population(ctx, *runID, *latest)
	if err != nil {
		return err
	}
	return printJSON(population)
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	storeKind, dbPath := storeFlags(fs)
	runID := fs.String("run", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	outDir := fs.String("out", "", "output directory; defaults to exports/")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer client.Close()

	summary, err := client.Export(ctx, lgp.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Printf("exported %s to %s\n", summary.RunID, summary.Directory)
	return nil
}

func runProblemSummary(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("problem-summary", flag.ContinueOnError)
	storeKind, dbPath := storeFlags(fs)
	name := fs.String("name", "", "problem name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer client.Close()

	summary, err := client.ProblemSummary(ctx, *name)
	if err != nil {
		return err
	}
	return printJSON(summary)
}

func runReset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	storeKind, dbPath := storeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Reset(ctx); err != nil {
		return err
	}
	fmt.Println("store reset")
	return nil
}

func printJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
