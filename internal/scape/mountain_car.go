package scape

import (
	"context"
	"math"

	"github.com/urmzd/linear-gp/internal/rng"
)

const (
	mountainCarMinPosition  = -1.2
	mountainCarMaxPosition  = 0.6
	mountainCarMaxSpeed     = 0.07
	mountainCarGoalPosition = 0.5
	mountainCarGoalVelocity = 0.0
	mountainCarForce        = 0.001
	mountainCarGravity      = 0.0025
	mountainCarMaxSteps     = 200
)

// MountainCarProblem is the under-powered hill-climbing task: two
// observation features, three actions (push left / idle / push right),
// reward -1 per step, episodes capped at 200 steps.
type MountainCarProblem struct{}

func (MountainCarProblem) Name() string { return "mountain-car" }

func (MountainCarProblem) Kind() Kind { return KindEpisodic }

func (MountainCarProblem) Inputs() int { return 2 }

func (MountainCarProblem) Actions() int { return 3 }

func (MountainCarProblem) NewState(_ context.Context, src *rng.Source) (State, error) {
	initial := [2]float64{-0.6 + 0.2*src.Float64(), 0}
	s := &mountainCarState{initial: initial}
	s.Reset()
	return s, nil
}

type mountainCarState struct {
	initial    [2]float64
	state      [2]float64
	steps      int
	terminated bool
}

func (s *mountainCarState) Value(idx int) float64 {
	return s.state[idx%len(s.state)]
}

func (s *mountainCarState) Act(action int) float64 {
	position, velocity := s.state[0], s.state[1]

	velocity += float64(action-1)*mountainCarForce - math.Cos(3*position)*mountainCarGravity
	velocity = clamp(velocity, -mountainCarMaxSpeed, mountainCarMaxSpeed)
	position += velocity
	position = clamp(position, mountainCarMinPosition, mountainCarMaxPosition)
	if position == mountainCarMinPosition && velocity < 0 {
		velocity = 0
	}

	s.state = [2]float64{position, velocity}
	s.steps++

	reached := position >= mountainCarGoalPosition && velocity >= mountainCarGoalVelocity
	s.terminated = reached || s.steps >= mountainCarMaxSteps

	return -1
}

func (s *mountainCarState) Live() bool {
	return !s.terminated
}

func (s *mountainCarState) Terminal() bool {
	return s.terminated
}

func (s *mountainCarState) InitialObservation() []float64 {
	return append([]float64(nil), s.initial[:]...)
}

func (s *mountainCarState) Reset() {
	s.state = s.initial
	s.steps = 0
	s.terminated = false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
