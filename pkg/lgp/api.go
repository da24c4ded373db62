package lgp

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/urmzd/linear-gp/internal/model"
	"github.com/urmzd/linear-gp/internal/platform"
	"github.com/urmzd/linear-gp/internal/scape"
	"github.com/urmzd/linear-gp/internal/stats"
	"github.com/urmzd/linear-gp/internal/storage"
)

const (
	defaultBenchmarksDir = "benchmarks"
	defaultExportsDir    = "exports"
	defaultDBPath        = "lgp.db"
)

// Options configures a client.
type Options struct {
	StoreKind     string
	DBPath        string
	BenchmarksDir string
	ExportsDir    string
}

// Client is the programmatic surface of the engine: it owns the store, the
// run coordinator, and the artifact directories.
type Client struct {
	store storage.Store
	polis *platform.Polis

	benchmarksDir string
	exportsDir    string
}

// RunRequest names a problem and supplies the hyperparameters for one run.
// Run replaces zero-valued Problem, Population, Generations, Trials, Gap,
// MaxInstructions, Extras, ExternalFactor and Workers with its own defaults
// and resolves a nil DefaultFitness to 0; zero mutation and crossover shares
// are kept as given. The engine itself accepts only the fully resolved
// record.
type RunRequest struct {
	Problem          string
	Population       int
	Generations      int
	Trials           int
	Gap              float64
	MutationPercent  float64
	CrossoverPercent float64
	MaxInstructions  int
	Extras           int
	ExternalFactor   float64
	DefaultFitness   *float64
	Seed             *int64
	Workers          int
	Q                *model.QParameters
	OnGeneration     func(generation int, population []model.Program)
}

// RunSummary reports a completed run.
type RunSummary struct {
	RunID            string
	Seed             int64
	ArtifactsDir     string
	BestByGeneration []float64
	FinalBestFitness float64
}

// RunsRequest lists recent runs.
type RunsRequest struct {
	Limit int
}

// RunItem is one row of the run listing.
type RunItem struct {
	RunID            string
	CreatedAtUTC     string
	Problem          string
	Seed             int64
	Population       int
	Generations      int
	QEnabled         bool
	FinalBestFitness float64
}

// ExportRequest selects a run to export.
type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

// ExportSummary reports where a run's artifacts were exported.
type ExportSummary struct {
	RunID     string
	Directory string
}

// TopProgramsRequest selects a run's leaderboard.
type TopProgramsRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	benchmarksDir := opts.BenchmarksDir
	if benchmarksDir == "" {
		benchmarksDir = defaultBenchmarksDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:         store,
		benchmarksDir: benchmarksDir,
		exportsDir:    exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	_, err := c.ensurePolis(ctx)
	return err
}

// Run resolves the request, drives one evolution, and writes the run's
// artifact set and index entry.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if req.Problem == "" {
		req.Problem = "iris"
	}
	if req.Population <= 0 {
		req.Population = 100
	}
	if req.Generations <= 0 {
		req.Generations = 100
	}
	if req.Trials <= 0 {
		req.Trials = 5
	}
	if req.Gap == 0 {
		req.Gap = 0.5
	}
	if req.MaxInstructions <= 0 {
		req.MaxInstructions = 100
	}
	if req.Extras <= 0 {
		req.Extras = 1
	}
	if req.ExternalFactor == 0 {
		req.ExternalFactor = 1
	}
	if req.Workers <= 0 {
		req.Workers = 4
	}

	p, err := c.ensurePolis(ctx)
	if err != nil {
		return RunSummary{}, err
	}
	if err := registerDefaultProblems(p); err != nil {
		return RunSummary{}, err
	}

	problem, ok := p.GetProblem(req.Problem)
	if !ok {
		return RunSummary{}, fmt.Errorf("unknown problem: %s", req.Problem)
	}

	// JSON artifacts cannot carry ±Inf, so the resolved default stays 0
	// unless the caller overrides it.
	defaultFitness := 0.0
	if req.DefaultFitness != nil {
		defaultFitness = *req.DefaultFitness
	}
	hp := model.HyperParameters{
		PopulationSize:   req.Population,
		Generations:      req.Generations,
		Trials:           req.Trials,
		Gap:              req.Gap,
		MutationPercent:  req.MutationPercent,
		CrossoverPercent: req.CrossoverPercent,
		MaxInstructions:  req.MaxInstructions,
		Actions:          problem.Actions(),
		Extras:           req.Extras,
		Inputs:           problem.Inputs(),
		ExternalFactor:   req.ExternalFactor,
		DefaultFitness:   defaultFitness,
		Seed:             req.Seed,
		Q:                req.Q,
	}

	now := time.Now().UTC()
	runID := fmt.Sprintf("%s-%d", req.Problem, now.Unix())

	result, err := p.RunEvolution(ctx, platform.EvolutionConfig{
		RunID:        runID,
		ProblemName:  req.Problem,
		Params:       hp,
		Workers:      req.Workers,
		OnGeneration: req.OnGeneration,
	})
	if err != nil {
		return RunSummary{}, err
	}

	// Record the seed actually in effect so entropy-derived runs replay.
	seed := result.Seed
	hp.Seed = &seed

	runDir, err := stats.WriteRunArtifacts(c.benchmarksDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:           runID,
			Problem:         req.Problem,
			HyperParameters: hp,
			Seed:            seed,
			Workers:         req.Workers,
		},
		BestByGeneration:      result.BestByGeneration,
		GenerationDiagnostics: result.Diagnostics,
		FinalBestFitness:      result.BestFinalFitness,
		TopPrograms:           result.TopFinal,
		Lineage:               result.Lineage,
	})
	if err != nil {
		return RunSummary{}, err
	}

	if err := stats.AppendRunIndex(c.benchmarksDir, stats.RunIndexEntry{
		RunID:            runID,
		Problem:          req.Problem,
		PopulationSize:   req.Population,
		Generations:      req.Generations,
		Seed:             seed,
		QEnabled:         req.Q != nil,
		FinalBestFitness: result.BestFinalFitness,
		CreatedAtUTC:     now.Format(time.RFC3339Nano),
	}); err != nil {
		return RunSummary{}, err
	}

	return RunSummary{
		RunID:            runID,
		Seed:             seed,
		ArtifactsDir:     filepath.Clean(runDir),
		BestByGeneration: append([]float64(nil), result.BestByGeneration...),
		FinalBestFitness: result.BestFinalFitness,
	}, nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.benchmarksDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:            e.RunID,
			CreatedAtUTC:     e.CreatedAtUTC,
			Problem:          e.Problem,
			Seed:             e.Seed,
			Population:       e.PopulationSize,
			Generations:      e.Generations,
			QEnabled:         e.QEnabled,
			FinalBestFitness: e.FinalBestFitness,
		})
	}
	return out, nil
}

func (c *Client) FitnessHistory(ctx context.Context, runID string, latest bool) ([]float64, error) {
	runID, err := c.resolveRunID(runID, latest)
	if err != nil {
		return nil, err
	}
	if _, err := c.ensurePolis(ctx); err != nil {
		return nil, err
	}
	history, ok, err := c.store.GetFitnessHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("fitness history not found for run id: %s", runID)
	}
	return history, nil
}

func (c *Client) TopPrograms(ctx context.Context, req TopProgramsRequest) ([]model.TopProgramRecord, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	if _, err := c.ensurePolis(ctx); err != nil {
		return nil, err
	}
	top, ok, err := c.store.GetTopPrograms(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("top programs not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(top) > req.Limit {
		top = top[:req.Limit]
	}
	return top, nil
}

func (c *Client) Lineage(ctx context.Context, runID string, latest bool, limit int) ([]model.LineageRecord, error) {
	runID, err := c.resolveRunID(runID, latest)
	if err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	if _, err := c.ensurePolis(ctx); err != nil {
		return nil, err
	}
	lineage, ok, err := c.store.GetLineage(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("lineage not found for run id: %s", runID)
	}
	if limit > 0 && len(lineage) > limit {
		lineage = lineage[:limit]
	}
	return lineage, nil
}

func (c *Client) Population(ctx context.Context, runID string, latest bool) (model.Population, error) {
	runID, err := c.resolveRunID(runID, latest)
	if err != nil {
		return model.Population{}, err
	}
	if _, err := c.ensurePolis(ctx); err != nil {
		return model.Population{}, err
	}
	population, ok, err := c.store.GetPopulation(ctx, runID)
	if err != nil {
		return model.Population{}, err
	}
	if !ok {
		return model.Population{}, fmt.Errorf("population not found for run id: %s", runID)
	}
	return population, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	exportedDir, err := stats.ExportRunArtifacts(c.benchmarksDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) ProblemSummary(ctx context.Context, name string) (model.ProblemSummary, error) {
	if name == "" {
		return model.ProblemSummary{}, errors.New("problem name is required")
	}
	if _, err := c.ensurePolis(ctx); err != nil {
		return model.ProblemSummary{}, err
	}
	summary, ok, err := c.store.GetProblemSummary(ctx, name)
	if err != nil {
		return model.ProblemSummary{}, err
	}
	if !ok {
		return model.ProblemSummary{}, fmt.Errorf("problem summary not found: %s", name)
	}
	return summary, nil
}

func (c *Client) Reset(ctx context.Context) error {
	p, err := c.ensurePolis(ctx)
	if err != nil {
		return err
	}
	return p.Reset(ctx)
}

func (c *Client) resolveRunID(runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID != "" {
		return runID, nil
	}
	if !latest {
		return "", errors.New("run id or latest is required")
	}

	entries, err := stats.ListRunIndex(c.benchmarksDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}

func (c *Client) ensurePolis(ctx context.Context) (*platform.Polis, error) {
	if c.polis != nil {
		return c.polis, nil
	}
	p := platform.NewPolis(platform.Config{Store: c.store})
	if err := p.Init(ctx); err != nil {
		return nil, err
	}
	c.polis = p
	return c.polis, nil
}

func registerDefaultProblems(p *platform.Polis) error {
	if err := p.RegisterProblem(scape.IrisProblem{}); err != nil {
		return err
	}
	if err := p.RegisterProblem(scape.CartPoleProblem{}); err != nil {
		return err
	}
	return p.RegisterProblem(scape.MountainCarProblem{})
}

