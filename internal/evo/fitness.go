package evo

import (
	"math"

	"github.com/urmzd/linear-gp/internal/model"
	"github.com/urmzd/linear-gp/internal/rng"
	"github.com/urmzd/linear-gp/internal/scape"
	"github.com/urmzd/linear-gp/internal/vm"
)

// Evaluator scores one program against one trial state. A non-finite score
// marks an evaluation fault; the engine substitutes default_fitness before
// aggregating trials.
type Evaluator interface {
	Name() string
	Eval(p *model.Program, state scape.State, hp model.HyperParameters, src *rng.Source) float64
}

// ClassificationEvaluator scores the fraction of dataset rows the program
// classifies correctly: registers are reset per row, the program executes on
// the row's features, and the argmax over the action registers is the
// predicted class.
type ClassificationEvaluator struct{}

func (ClassificationEvaluator) Name() string { return "classification" }

func (ClassificationEvaluator) Eval(p *model.Program, state scape.State, hp model.HyperParameters, _ *rng.Source) float64 {
	correct := 0.0
	total := 0.0
	input := make([]float64, hp.Inputs)

	for state.Live() {
		observe(state, input)
		prediction, ok := vm.Predict(p, input, hp.Actions, hp.ExternalFactor)
		if !ok {
			return math.Inf(-1)
		}
		correct += state.Act(prediction)
		total++
	}

	if total == 0 {
		return math.Inf(-1)
	}
	return correct / total
}

// EpisodicEvaluator accumulates raw reward over one episode: at each step
// the registers are reset, the program executes on the current observation,
// and the argmax over the action registers is the action taken.
type EpisodicEvaluator struct{}

func (EpisodicEvaluator) Name() string { return "episodic" }

func (EpisodicEvaluator) Eval(p *model.Program, state scape.State, hp model.HyperParameters, _ *rng.Source) float64 {
	score := 0.0
	input := make([]float64, hp.Inputs)

	for state.Live() {
		observe(state, input)
		action, ok := vm.Predict(p, input, hp.Actions, hp.ExternalFactor)
		if !ok {
			return math.Inf(-1)
		}
		score += state.Act(action)
	}

	return score
}

// QEvaluator runs an episode under the Q-learning overlay. The winning
// register is the argmax over all registers; the action is the ε-greedy
// argmax over that register's Q-table row. The table starts zeroed every
// trial, updates only on register transitions, and decays α and ε after
// every step.
type QEvaluator struct {
	Params model.QParameters
}

func (QEvaluator) Name() string { return "q-learning" }

func (e QEvaluator) Eval(p *model.Program, state scape.State, hp model.HyperParameters, src *rng.Source) float64 {
	episodic, ok := state.(scape.EpisodicState)
	if !ok {
		return math.Inf(-1)
	}

	table := newQTable(hp.Registers(), hp.Actions, e.Params)
	input := make([]float64, hp.Inputs)

	observe(state, input)
	vm.ZeroRegisters(p.Registers)
	vm.Exec(p, input, hp.ExternalFactor)
	current, ok := table.selectAction(p.Registers, src)
	if !ok {
		return math.Inf(-1)
	}

	score := 0.0
	for state.Live() {
		reward := state.Act(current.action)
		score += reward

		if episodic.Terminal() {
			break
		}

		observe(state, input)
		vm.ZeroRegisters(p.Registers)
		vm.Exec(p, input, hp.ExternalFactor)
		next, ok := table.selectAction(p.Registers, src)
		if !ok {
			return math.Inf(-1)
		}

		if next.register != current.register {
			table.update(current, reward, next)
		}
		table.decay()
		current = next
	}

	return score
}

func observe(state scape.State, into []float64) {
	for i := range into {
		into[i] = state.Value(i)
	}
}

// EvaluatorFor picks the fitness strategy for a problem, overlaying
// Q-learning on episodic tasks when Q parameters are present.
func EvaluatorFor(problem scape.Problem, hp model.HyperParameters) Evaluator {
	if problem.Kind() == scape.KindClassification {
		return ClassificationEvaluator{}
	}
	if hp.Q != nil {
		return QEvaluator{Params: *hp.Q}
	}
	return EpisodicEvaluator{}
}
