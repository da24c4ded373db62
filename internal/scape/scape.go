package scape

import (
	"context"

	"github.com/urmzd/linear-gp/internal/rng"
)

// Kind distinguishes the two trial shapes the engine evaluates against.
type Kind string

const (
	KindClassification Kind = "classification"
	KindEpisodic       Kind = "episodic"
)

// State is one fitness trial: a finite dataset pass or a live episode.
// Implementations advance internally as actions execute.
type State interface {
	// Value reads the idx-th feature of the current observation.
	Value(idx int) float64
	// Act applies an action, advances the state, and returns the reward
	// (episodic) or correctness indicator (classification).
	Act(action int) float64
	// Live reports whether more data remain or the episode is still open.
	Live() bool
	// Reset rewinds the state to the start of the trial.
	Reset()
}

// EpisodicState adds the capabilities only live environments carry.
type EpisodicState interface {
	State
	// Terminal reports whether the episode has ended, by environment
	// signal or by the step cap.
	Terminal() bool
	// InitialObservation returns the episode's starting observation.
	InitialObservation() []float64
}

// Problem constructs fresh trial states for one task.
type Problem interface {
	Name() string
	Kind() Kind
	Inputs() int
	Actions() int
	// NewState builds an independent trial state. Construction failures
	// (dataset I/O) are fatal to the run.
	NewState(ctx context.Context, src *rng.Source) (State, error)
}
