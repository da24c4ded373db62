package evo

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/urmzd/linear-gp/internal/model"
	"github.com/urmzd/linear-gp/internal/rng"
	"github.com/urmzd/linear-gp/internal/scape"
	"github.com/urmzd/linear-gp/internal/vm"
)

// Command steers a running engine between generation barriers.
type Command int

const (
	CommandStop Command = iota + 1
	CommandPause
	CommandContinue
)

// Config wires one evolution run. The engine bakes in no hyperparameter
// defaults; Params must be fully populated.
type Config struct {
	Params    model.HyperParameters
	Problem   scape.Problem
	Evaluator Evaluator
	Workers   int
	Control   chan Command
	// OnGeneration receives a deep-copied, ranked population snapshot
	// after each generation; it may not mutate engine state.
	OnGeneration func(generation int, population []model.Program)
}

// Result collects the histories of a completed (or stopped) run.
type Result struct {
	Seed             int64
	BestByGeneration []float64
	Diagnostics      []model.GenerationDiagnostics
	FinalPopulation  []model.Program
	Lineage          []model.LineageRecord
}

// Engine drives the generational loop: evaluate, rank, truncate, reproduce.
// It is a lazy, restartable sequence; each Next call produces one ranked
// population snapshot.
type Engine struct {
	cfg  Config
	root *rng.Source
	seed int64

	generation int
	population []model.Program
	lineage    []model.LineageRecord
}

// New validates the configuration and prepares generation zero. Invalid
// hyperparameters fail fast; nothing runs until the first Next call.
func New(cfg Config) (*Engine, error) {
	if cfg.Problem == nil {
		return nil, fmt.Errorf("problem is required")
	}
	hp := cfg.Params
	if hp.PopulationSize <= 0 {
		return nil, fmt.Errorf("population size must be > 0")
	}
	if hp.Generations <= 0 {
		return nil, fmt.Errorf("generations must be > 0")
	}
	if hp.Trials <= 0 {
		return nil, fmt.Errorf("trials must be > 0")
	}
	if hp.Gap < 0 || hp.Gap >= 1 {
		return nil, fmt.Errorf("gap must be in [0, 1)")
	}
	if hp.MutationPercent < 0 || hp.MutationPercent > 1 {
		return nil, fmt.Errorf("mutation percent must be in [0, 1]")
	}
	if hp.CrossoverPercent < 0 || hp.CrossoverPercent > 1 {
		return nil, fmt.Errorf("crossover percent must be in [0, 1]")
	}
	if hp.MutationPercent+hp.CrossoverPercent > 1 {
		return nil, fmt.Errorf("mutation and crossover percents must sum to <= 1")
	}
	if hp.MaxInstructions < 1 {
		return nil, fmt.Errorf("max instructions must be >= 1")
	}
	if hp.Actions < 1 {
		return nil, fmt.Errorf("actions must be >= 1")
	}
	if hp.Extras < 1 {
		return nil, fmt.Errorf("extras must be >= 1")
	}
	if hp.Inputs < 0 {
		return nil, fmt.Errorf("inputs must be >= 0")
	}
	if hp.ExternalFactor < 0 {
		return nil, fmt.Errorf("external factor must be >= 0")
	}
	if hp.Actions != cfg.Problem.Actions() {
		return nil, fmt.Errorf("actions mismatch: params=%d problem=%d", hp.Actions, cfg.Problem.Actions())
	}
	if hp.Inputs != cfg.Problem.Inputs() {
		return nil, fmt.Errorf("inputs mismatch: params=%d problem=%d", hp.Inputs, cfg.Problem.Inputs())
	}
	if hp.Q != nil {
		q := *hp.Q
		for name, v := range map[string]float64{
			"alpha":         q.Alpha,
			"gamma":         q.Gamma,
			"epsilon":       q.Epsilon,
			"alpha decay":   q.AlphaDecay,
			"epsilon decay": q.EpsilonDecay,
		} {
			if v < 0 || v > 1 {
				return nil, fmt.Errorf("q %s must be in [0, 1]", name)
			}
		}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Evaluator == nil {
		cfg.Evaluator = EvaluatorFor(cfg.Problem, hp)
	}

	var root *rng.Source
	var seed int64
	if hp.Seed != nil {
		seed = *hp.Seed
		root = rng.New(seed)
	} else {
		root, seed = rng.NewFromEntropy()
	}

	e := &Engine{cfg: cfg, root: root, seed: seed}
	e.population = make([]model.Program, hp.PopulationSize)
	for i := range e.population {
		e.population[i] = vm.GenerateProgram(hp, root)
		e.lineage = append(e.lineage, model.LineageRecord{
			ProgramID:   e.population[i].ID,
			Generation:  0,
			Operation:   "seed",
			Fingerprint: Fingerprint(e.population[i].Instructions),
		})
	}
	return e, nil
}

// Seed returns the root seed in effect, derived from OS entropy when the
// hyperparameters left it unset.
func (e *Engine) Seed() int64 {
	return e.seed
}

// Generation returns the number of completed generations.
func (e *Engine) Generation() int {
	return e.generation
}

// Lineage returns the accumulated lineage records.
func (e *Engine) Lineage() []model.LineageRecord {
	return append([]model.LineageRecord(nil), e.lineage...)
}

// Next runs one generation: evaluate unevaluated individuals, rank, invoke
// the generation hook, then truncate and reproduce the next population. It
// returns the ranked snapshot of the generation just evaluated.
func (e *Engine) Next(ctx context.Context) ([]model.Program, error) {
	if e.generation >= e.cfg.Params.Generations {
		return nil, nil
	}

	if err := e.evaluate(ctx); err != nil {
		return nil, err
	}
	e.rank()

	snapshot := snapshotPopulation(e.population)
	if e.cfg.OnGeneration != nil {
		e.cfg.OnGeneration(e.generation, snapshot)
	}

	e.reproduce()
	e.generation++
	return snapshot, nil
}

// Run drives Next until the configured generation count, a control command,
// or context cancellation. A stop command takes effect at the next
// generation barrier. Context cancellation is checked between trials: a
// trial already running finishes, the rest of the generation is skipped,
// and Run returns the context's error.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	result := Result{Seed: e.seed}

	for {
		stop, err := e.checkControl(ctx)
		if err != nil {
			return Result{}, err
		}
		if stop {
			break
		}

		population, err := e.Next(ctx)
		if err != nil {
			return Result{}, err
		}
		if population == nil {
			break
		}

		result.BestByGeneration = append(result.BestByGeneration, *population[0].Fitness)
		result.Diagnostics = append(result.Diagnostics, summarize(population, e.generation))
		result.FinalPopulation = population
	}

	result.Lineage = e.Lineage()
	return result, nil
}

// checkControl drains pending commands between generation barriers; pause
// blocks until continue or stop.
func (e *Engine) checkControl(ctx context.Context) (bool, error) {
	if e.cfg.Control == nil {
		return false, ctx.Err()
	}
	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case cmd := <-e.cfg.Control:
			switch cmd {
			case CommandStop:
				return true, nil
			case CommandPause:
				stop, err := e.awaitContinue(ctx)
				if err != nil || stop {
					return stop, err
				}
			}
		default:
			return false, ctx.Err()
		}
	}
}

func (e *Engine) awaitContinue(ctx context.Context) (bool, error) {
	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case cmd := <-e.cfg.Control:
			switch cmd {
			case CommandStop:
				return true, nil
			case CommandContinue:
				return false, nil
			}
		}
	}
}

// evaluate computes fitness for every unevaluated individual: n_trials
// serial trials aggregated by median, dispatched across a worker pool. Each
// individual draws from a child source split by (generation, index), so
// results are bit-exact regardless of worker interleaving.
func (e *Engine) evaluate(ctx context.Context) error {
	type job struct {
		idx int
	}
	type outcome struct {
		idx     int
		fitness float64
		err     error
	}

	pending := make([]int, 0, len(e.population))
	for i := range e.population {
		if !e.population[i].Evaluated() {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	jobs := make(chan job)
	results := make(chan outcome, len(pending))

	workerCount := e.cfg.Workers
	if workerCount > len(pending) {
		workerCount = len(pending)
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					results <- outcome{idx: j.idx, err: err}
					continue
				}
				fitness, err := e.evaluateIndividual(ctx, &e.population[j.idx], j.idx)
				results <- outcome{idx: j.idx, fitness: fitness, err: err}
			}
		}()
	}

	for _, idx := range pending {
		jobs <- job{idx: idx}
	}
	close(jobs)
	wg.Wait()
	close(results)

	for res := range results {
		if res.err != nil {
			return res.err
		}
		fitness := res.fitness
		e.population[res.idx].Fitness = &fitness
	}
	return nil
}

// evaluateIndividual runs the individual's trials serially. Trial states are
// constructed from the individual's child source; construction failures are
// environment I/O and fatal. Non-finite scores and panics out of program
// execution become default_fitness.
func (e *Engine) evaluateIndividual(ctx context.Context, p *model.Program, index int) (float64, error) {
	hp := e.cfg.Params
	child := e.root.Child(e.generation, index)

	scores := make([]float64, 0, hp.Trials)
	for t := 0; t < hp.Trials; t++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		state, err := e.cfg.Problem.NewState(ctx, child)
		if err != nil {
			return 0, fmt.Errorf("construct trial state for %s: %w", e.cfg.Problem.Name(), err)
		}

		vm.ZeroRegisters(p.Registers)
		state.Reset()

		score := e.evalTrial(p, state, child)
		if !isFinite(score) {
			score = hp.DefaultFitness
		}
		scores = append(scores, score)
	}

	return median(scores), nil
}

func (e *Engine) evalTrial(p *model.Program, state scape.State, src *rng.Source) (score float64) {
	defer func() {
		if recovered := recover(); recovered != nil {
			score = e.cfg.Params.DefaultFitness
		}
	}()
	return e.cfg.Evaluator.Eval(p, state, e.cfg.Params, src)
}

// rank sorts the population descending by fitness, breaking ties by id so
// ordering is total and runs reproduce bit-exactly.
func (e *Engine) rank() {
	sort.SliceStable(e.population, func(i, j int) bool {
		a, b := e.population[i], e.population[j]
		if *a.Fitness != *b.Fitness {
			return *a.Fitness > *b.Fitness
		}
		return a.ID < b.ID
	})
}

// reproduce truncates the ranked population to its survivors and refills the
// gap: each offspring slot draws mutation, crossover, or reproduction with
// the configured shares. Reproduction keeps fitness; mutation and crossover
// clear it.
func (e *Engine) reproduce() {
	hp := e.cfg.Params

	keep := int(math.Ceil(float64(hp.PopulationSize) * (1 - hp.Gap)))
	if keep < 1 {
		keep = 1
	}
	if keep > len(e.population) {
		keep = len(e.population)
	}
	survivors := e.population[:keep]

	next := make([]model.Program, 0, hp.PopulationSize)
	next = append(next, survivors...)

	weights := []float64{
		hp.MutationPercent,
		hp.CrossoverPercent,
		1 - hp.MutationPercent - hp.CrossoverPercent,
	}

	for len(next) < hp.PopulationSize {
		var child model.Program
		var operation string
		var parentID string

		switch e.root.Weighted(weights) {
		case 0:
			parent := survivors[e.root.Intn(len(survivors))]
			child = vm.CloneOffspring(parent, e.root)
			Mutate(&child, hp, e.root)
			operation = "mutate"
			parentID = parent.ID
		case 1:
			ai := e.root.Intn(len(survivors))
			bi := ai
			if len(survivors) > 1 {
				bi = e.root.Intn(len(survivors) - 1)
				if bi >= ai {
					bi++
				}
			}
			a, b := survivors[ai], survivors[bi]
			child = Crossover(a, b, e.root)
			operation = "crossover"
			parentID = a.ID
		default:
			parent := survivors[e.root.Intn(len(survivors))]
			child = vm.Clone(parent)
			operation = "reproduce"
			parentID = parent.ID
		}

		next = append(next, child)
		if operation != "reproduce" {
			e.lineage = append(e.lineage, model.LineageRecord{
				ProgramID:   child.ID,
				ParentID:    parentID,
				Generation:  e.generation + 1,
				Operation:   operation,
				Fingerprint: Fingerprint(child.Instructions),
			})
		}
	}

	e.population = next
}

func snapshotPopulation(population []model.Program) []model.Program {
	out := make([]model.Program, len(population))
	for i := range population {
		out[i] = vm.Clone(population[i])
	}
	return out
}

func summarize(ranked []model.Program, generation int) model.GenerationDiagnostics {
	total := 0.0
	for _, p := range ranked {
		total += *p.Fitness
	}
	return model.GenerationDiagnostics{
		Generation:    generation,
		BestFitness:   *ranked[0].Fitness,
		MedianFitness: *ranked[len(ranked)/2].Fitness,
		WorstFitness:  *ranked[len(ranked)-1].Fitness,
		MeanFitness:   total / float64(len(ranked)),
	}
}

// median aggregates trial scores; even counts average the two middle
// values. Median rather than mean keeps adversarial initial states from
// dominating an individual's generational fitness.
func median(scores []float64) float64 {
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
