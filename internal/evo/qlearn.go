package evo

import (
	"github.com/urmzd/linear-gp/internal/model"
	"github.com/urmzd/linear-gp/internal/rng"
	"github.com/urmzd/linear-gp/internal/vm"
)

// qTable is the per-trial state-action value table of the Q-learning
// overlay, keyed by (winning register index, action). It lives only for the
// duration of one trial and is never part of the genome.
type qTable struct {
	values  [][]float64
	params  model.QParameters
	alpha   float64
	epsilon float64
}

func newQTable(nRegisters, nActions int, params model.QParameters) *qTable {
	values := make([][]float64, nRegisters)
	for i := range values {
		values[i] = make([]float64, nActions)
	}
	return &qTable{
		values:  values,
		params:  params,
		alpha:   params.Alpha,
		epsilon: params.Epsilon,
	}
}

// actionRegisterPair couples a winning register with the action chosen for
// it.
type actionRegisterPair struct {
	register int
	action   int
}

// selectAction picks the ε-greedy action for the winning register: the
// argmax over the register's row, overwritten by a uniform random action
// with probability ε.
func (q *qTable) selectAction(registers []float64, src *rng.Source) (actionRegisterPair, bool) {
	register, ok := vm.Argmax(registers)
	if !ok {
		return actionRegisterPair{}, false
	}

	action, _ := vm.Argmax(q.values[register])
	if src.Float64() < q.epsilon {
		action = src.Intn(len(q.values[register]))
	}
	return actionRegisterPair{register: register, action: action}, true
}

// update applies the on-policy value update for a register transition:
// Q[r, a] += α · (reward + γ · max_a' Q[r', a'] − Q[r, a]).
func (q *qTable) update(current actionRegisterPair, reward float64, next actionRegisterPair) {
	best, _ := vm.Argmax(q.values[next.register])
	nextValue := q.values[next.register][best]
	delta := q.alpha * (reward + q.params.Gamma*nextValue - q.values[current.register][current.action])
	q.values[current.register][current.action] += delta
}

// decay applies the per-step multiplicative decay to the active learning
// and exploration rates.
func (q *qTable) decay() {
	q.alpha *= 1 - q.params.AlphaDecay
	q.epsilon *= 1 - q.params.EpsilonDecay
}
