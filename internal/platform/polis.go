package platform

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/urmzd/linear-gp/internal/evo"
	"github.com/urmzd/linear-gp/internal/model"
	"github.com/urmzd/linear-gp/internal/scape"
	"github.com/urmzd/linear-gp/internal/storage"
)

// Config wires the coordinator to its persistence backend.
type Config struct {
	Store storage.Store
}

// EvolutionConfig names the problem and run for one evolution.
type EvolutionConfig struct {
	RunID        string
	ProblemName  string
	Params       model.HyperParameters
	Workers      int
	Control      chan evo.Command
	OnGeneration func(generation int, population []model.Program)
}

// EvolutionResult is the persisted outcome of one run.
type EvolutionResult struct {
	Seed             int64
	BestByGeneration []float64
	Diagnostics      []model.GenerationDiagnostics
	BestFinalFitness float64
	TopFinal         []model.TopProgramRecord
	Lineage          []model.LineageRecord
}

const topProgramCount = 5

// Polis coordinates problem registration, run control, and persistence
// around the evolution engine.
type Polis struct {
	store storage.Store

	mu       sync.RWMutex
	problems map[string]scape.Problem
	started  bool
	runs     map[string]chan evo.Command
}

func NewPolis(cfg Config) *Polis {
	return &Polis{
		store:    cfg.Store,
		problems: make(map[string]scape.Problem),
		runs:     make(map[string]chan evo.Command),
	}
}

func (p *Polis) Init(ctx context.Context) error {
	if p.store == nil {
		return fmt.Errorf("store is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	if err := p.store.Init(ctx); err != nil {
		return err
	}
	p.started = true
	return nil
}

func (p *Polis) Reset(ctx context.Context) error {
	p.mu.Lock()
	p.started = false
	p.problems = make(map[string]scape.Problem)
	p.runs = make(map[string]chan evo.Command)
	p.mu.Unlock()

	if resetter, ok := p.store.(storage.Resetter); ok {
		if err := resetter.Reset(ctx); err != nil {
			return err
		}
	}
	return p.Init(ctx)
}

func (p *Polis) RegisterProblem(problem scape.Problem) error {
	if problem == nil {
		return fmt.Errorf("problem is nil")
	}
	name := problem.Name()
	if name == "" {
		return fmt.Errorf("problem name is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return fmt.Errorf("polis is not initialized")
	}
	p.problems[name] = problem
	return nil
}

func (p *Polis) GetProblem(name string) (scape.Problem, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	problem, ok := p.problems[name]
	return problem, ok
}

func (p *Polis) RegisteredProblems() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.problems))
	for name := range p.problems {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunEvolution drives one run end to end: engine construction, the
// generational loop, and persistence of the final population, histories,
// leaderboard, and lineage.
func (p *Polis) RunEvolution(ctx context.Context, cfg EvolutionConfig) (EvolutionResult, error) {
	if cfg.ProblemName == "" {
		return EvolutionResult{}, fmt.Errorf("problem name is required")
	}

	p.mu.RLock()
	problem, ok := p.problems[cfg.ProblemName]
	started := p.started
	p.mu.RUnlock()

	if !started {
		return EvolutionResult{}, fmt.Errorf("polis is not initialized")
	}
	if !ok {
		return EvolutionResult{}, fmt.Errorf("problem not registered: %s", cfg.ProblemName)
	}

	runID := cfg.RunID
	if runID == "" {
		runID = fmt.Sprintf("evo:%s", cfg.ProblemName)
	}
	control := cfg.Control
	if control == nil {
		control = make(chan evo.Command, 16)
	}
	if err := p.registerRunControl(runID, control); err != nil {
		return EvolutionResult{}, err
	}
	defer p.unregisterRunControl(runID)

	engine, err := evo.New(evo.Config{
		Params:       cfg.Params,
		Problem:      problem,
		Workers:      cfg.Workers,
		Control:      control,
		OnGeneration: cfg.OnGeneration,
	})
	if err != nil {
		return EvolutionResult{}, err
	}

	result, err := engine.Run(ctx)
	if err != nil {
		return EvolutionResult{}, err
	}

	if err := p.persistRun(ctx, runID, engine.Generation(), result); err != nil {
		return EvolutionResult{}, err
	}

	bestFinal := 0.0
	var topFinal []model.TopProgramRecord
	if len(result.FinalPopulation) > 0 {
		bestFinal = *result.FinalPopulation[0].Fitness
		count := topProgramCount
		if len(result.FinalPopulation) < count {
			count = len(result.FinalPopulation)
		}
		for i := 0; i < count; i++ {
			topFinal = append(topFinal, model.TopProgramRecord{
				Rank:    i + 1,
				Fitness: *result.FinalPopulation[i].Fitness,
				Program: result.FinalPopulation[i],
			})
		}
	}
	if err := p.store.SaveTopPrograms(ctx, runID, topFinal); err != nil {
		return EvolutionResult{}, err
	}
	if err := p.updateProblemSummary(ctx, cfg.ProblemName, bestFinal); err != nil {
		return EvolutionResult{}, err
	}

	return EvolutionResult{
		Seed:             result.Seed,
		BestByGeneration: result.BestByGeneration,
		Diagnostics:      result.Diagnostics,
		BestFinalFitness: bestFinal,
		TopFinal:         topFinal,
		Lineage:          result.Lineage,
	}, nil
}

func (p *Polis) persistRun(ctx context.Context, runID string, generation int, result evo.Result) error {
	programIDs := make([]string, 0, len(result.FinalPopulation))
	for _, program := range result.FinalPopulation {
		if err := p.store.SaveProgram(ctx, program); err != nil {
			return err
		}
		programIDs = append(programIDs, program.ID)
	}
	if err := p.store.SavePopulation(ctx, model.Population{
		ID:         runID,
		ProgramIDs: programIDs,
		Generation: generation,
	}); err != nil {
		return err
	}
	if err := p.store.SaveFitnessHistory(ctx, runID, result.BestByGeneration); err != nil {
		return err
	}
	if err := p.store.SaveGenerationDiagnostics(ctx, runID, result.Diagnostics); err != nil {
		return err
	}
	return p.store.SaveLineage(ctx, runID, result.Lineage)
}

func (p *Polis) updateProblemSummary(ctx context.Context, problemName string, fitness float64) error {
	summary, ok, err := p.store.GetProblemSummary(ctx, problemName)
	if err != nil {
		return err
	}
	if !ok {
		summary = model.ProblemSummary{
			Name:        problemName,
			Description: fmt.Sprintf("best observed fitness for problem %s", problemName),
			BestFitness: fitness,
		}
	}
	if fitness > summary.BestFitness {
		summary.BestFitness = fitness
	}
	return p.store.SaveProblemSummary(ctx, summary)
}

func (p *Polis) PauseRun(runID string) error {
	return p.sendRunCommand(runID, evo.CommandPause)
}

func (p *Polis) ContinueRun(runID string) error {
	return p.sendRunCommand(runID, evo.CommandContinue)
}

func (p *Polis) StopRun(runID string) error {
	return p.sendRunCommand(runID, evo.CommandStop)
}

func (p *Polis) registerRunControl(runID string, control chan evo.Command) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return fmt.Errorf("polis is not initialized")
	}
	if _, exists := p.runs[runID]; exists {
		return fmt.Errorf("run already active: %s", runID)
	}
	p.runs[runID] = control
	return nil
}

func (p *Polis) unregisterRunControl(runID string) {
	p.mu.Lock()
	delete(p.runs, runID)
	p.mu.Unlock()
}

func (p *Polis) sendRunCommand(runID string, cmd evo.Command) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	p.mu.RLock()
	control, ok := p.runs[runID]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("run not active: %s", runID)
	}
	select {
	case control <- cmd:
		return nil
	default:
		return fmt.Errorf("run control channel is full: %s", runID)
	}
}

func (p *Polis) Started() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}
