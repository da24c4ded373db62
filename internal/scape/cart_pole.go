package scape

import (
	"context"
	"math"

	"github.com/urmzd/linear-gp/internal/rng"
)

const (
	cartPoleGravity        = 9.8
	cartPoleMassCart       = 1.0
	cartPoleMassPole       = 0.1
	cartPoleTotalMass      = cartPoleMassCart + cartPoleMassPole
	cartPoleLength         = 0.5
	cartPolePoleMassLength = cartPoleMassPole * cartPoleLength
	cartPoleForceMag       = 10.0
	cartPoleTau            = 0.02
	cartPoleThetaThreshold = 12 * 2 * math.Pi / 360
	cartPoleXThreshold     = 2.4
	cartPoleMaxSteps       = 500
)

// CartPoleProblem is the classic pole-balancing control task: four
// observation features, two actions (push left / push right), reward 1 per
// surviving step, episodes capped at 500 steps.
type CartPoleProblem struct{}

func (CartPoleProblem) Name() string { return "cart-pole" }

func (CartPoleProblem) Kind() Kind { return KindEpisodic }

func (CartPoleProblem) Inputs() int { return 4 }

func (CartPoleProblem) Actions() int { return 2 }

func (CartPoleProblem) NewState(_ context.Context, src *rng.Source) (State, error) {
	var initial [4]float64
	for i := range initial {
		initial[i] = -0.05 + 0.1*src.Float64()
	}
	s := &cartPoleState{initial: initial}
	s.Reset()
	return s, nil
}

type cartPoleState struct {
	initial    [4]float64
	state      [4]float64
	steps      int
	terminated bool
}

func (s *cartPoleState) Value(idx int) float64 {
	return s.state[idx%len(s.state)]
}

func (s *cartPoleState) Act(action int) float64 {
	x, xDot, theta, thetaDot := s.state[0], s.state[1], s.state[2], s.state[3]

	force := -cartPoleForceMag
	if action == 1 {
		force = cartPoleForceMag
	}
	cosTheta := math.Cos(theta)
	sinTheta := math.Sin(theta)

	temp := (force + cartPolePoleMassLength*thetaDot*thetaDot*sinTheta) / cartPoleTotalMass
	thetaAcc := (cartPoleGravity*sinTheta - cosTheta*temp) /
		(cartPoleLength * (4.0/3.0 - cartPoleMassPole*cosTheta*cosTheta/cartPoleTotalMass))
	xAcc := temp - cartPolePoleMassLength*thetaAcc*cosTheta/cartPoleTotalMass

	x += cartPoleTau * xDot
	xDot += cartPoleTau * xAcc
	theta += cartPoleTau * thetaDot
	thetaDot += cartPoleTau * thetaAcc

	s.state = [4]float64{x, xDot, theta, thetaDot}
	s.steps++

	fell := x < -cartPoleXThreshold || x > cartPoleXThreshold ||
		theta < -cartPoleThetaThreshold || theta > cartPoleThetaThreshold
	s.terminated = fell || s.steps >= cartPoleMaxSteps

	return 1
}

func (s *cartPoleState) Live() bool {
	return !s.terminated
}

func (s *cartPoleState) Terminal() bool {
	return s.terminated
}

func (s *cartPoleState) InitialObservation() []float64 {
	return append([]float64(nil), s.initial[:]...)
}

func (s *cartPoleState) Reset() {
	s.state = s.initial
	s.steps = 0
	s.terminated = false
}
