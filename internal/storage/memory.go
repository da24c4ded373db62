package storage

import (
	"context"
	"sync"

	"github.com/urmzd/linear-gp/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	programs    map[string]model.Program
	populations map[string]model.Population
	problems    map[string]model.ProblemSummary
	history     map[string][]float64
	diagnostics map[string][]model.GenerationDiagnostics
	topPrograms map[string][]model.TopProgramRecord
	lineage     map[string][]model.LineageRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.programs = make(map[string]model.Program)
	s.populations = make(map[string]model.Population)
	s.problems = make(map[string]model.ProblemSummary)
	s.history = make(map[string][]float64)
	s.diagnostics = make(map[string][]model.GenerationDiagnostics)
	s.topPrograms = make(map[string][]model.TopProgramRecord)
	s.lineage = make(map[string][]model.LineageRecord)
	return nil
}

func (s *MemoryStore) Reset(ctx context.Context) error {
	return s.Init(ctx)
}

func (s *MemoryStore) SaveProgram(_ context.Context, program model.Program) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.programs[program.ID] = program
	return nil
}

func (s *MemoryStore) GetProgram(_ context.Context, id string) (model.Program, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	program, ok := s.programs[id]
	return program, ok, nil
}

func (s *MemoryStore) SavePopulation(_ context.Context, population model.Population) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.populations[population.ID] = population
	return nil
}

func (s *MemoryStore) GetPopulation(_ context.Context, id string) (model.Population, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	population, ok := s.populations[id]
	return population, ok, nil
}

func (s *MemoryStore) SaveProblemSummary(_ context.Context, summary model.ProblemSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.problems[summary.Name] = summary
	return nil
}

func (s *MemoryStore) GetProblemSummary(_ context.Context, name string) (model.ProblemSummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.problems[name]
	return summary, ok, nil
}

func (s *MemoryStore) SaveFitnessHistory(_ context.Context, runID string, history []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[runID] = append([]float64(nil), history...)
	return nil
}

func (s *MemoryStore) GetFitnessHistory(_ context.Context, runID string) ([]float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.history[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]float64(nil), history...), true, nil
}

func (s *MemoryStore) SaveGenerationDiagnostics(_ context.Context, runID string, diagnostics []model.GenerationDiagnostics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]model.GenerationDiagnostics, len(diagnostics))
	copy(copied, diagnostics)
	s.diagnostics[runID] = copied
	return nil
}

func (s *MemoryStore) GetGenerationDiagnostics(_ context.Context, runID string) ([]model.GenerationDiagnostics, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	diagnostics, ok := s.diagnostics[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.GenerationDiagnostics, len(diagnostics))
	copy(copied, diagnostics)
	return copied, true, nil
}

func (s *MemoryStore) SaveTopPrograms(_ context.Context, runID string, top []model.TopProgramRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]model.TopProgramRecord, len(top))
	copy(copied, top)
	s.topPrograms[runID] = copied
	return nil
}

func (s *MemoryStore) GetTopPrograms(_ context.Context, runID string) ([]model.TopProgramRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	top, ok := s.topPrograms[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.TopProgramRecord, len(top))
	copy(copied, top)
	return copied, true, nil
}

func (s *MemoryStore) SaveLineage(_ context.Context, runID string, lineage []model.LineageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]model.LineageRecord, len(lineage))
	copy(copied, lineage)
	s.lineage[runID] = copied
	return nil
}

func (s *MemoryStore) GetLineage(_ context.Context, runID string) ([]model.LineageRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lineage, ok := s.lineage[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.LineageRecord, len(lineage))
	copy(copied, lineage)
	return copied, true, nil
}
