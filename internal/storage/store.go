package storage

import (
	"context"

	"github.com/urmzd/linear-gp/internal/model"
)

// Store defines persistence operations for evolved artifacts.
type Store interface {
	Init(ctx context.Context) error
	SaveProgram(ctx context.Context, program model.Program) error
	GetProgram(ctx context.Context, id string) (model.Program, bool, error)
	SavePopulation(ctx context.Context, population model.Population) error
	GetPopulation(ctx context.Context, id string) (model.Population, bool, error)
	SaveProblemSummary(ctx context.Context, summary model.ProblemSummary) error
	GetProblemSummary(ctx context.Context, name string) (model.ProblemSummary, bool, error)
	SaveFitnessHistory(ctx context.Context, runID string, history []float64) error
	GetFitnessHistory(ctx context.Context, runID string) ([]float64, bool, error)
	SaveGenerationDiagnostics(ctx context.Context, runID string, diagnostics []model.GenerationDiagnostics) error
	GetGenerationDiagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, bool, error)
	SaveTopPrograms(ctx context.Context, runID string, top []model.TopProgramRecord) error
	GetTopPrograms(ctx context.Context, runID string) ([]model.TopProgramRecord, bool, error)
	SaveLineage(ctx context.Context, runID string, lineage []model.LineageRecord) error
	GetLineage(ctx context.Context, runID string) ([]model.LineageRecord, bool, error)
}

// Resetter is implemented by stores that can drop all persisted state.
type Resetter interface {
	Reset(ctx context.Context) error
}
