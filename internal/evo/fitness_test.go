package evo

import (
	"context"
	"math"
	"testing"

	"github.com/urmzd/linear-gp/internal/model"
	"github.com/urmzd/linear-gp/internal/rng"
	"github.com/urmzd/linear-gp/internal/scape"
)

// firstFeatureProgram predicts class 0 when feature 0 exceeds feature 1:
// R0 accumulates feature 0, R1 accumulates feature 1.
func firstFeatureProgram() model.Program {
	return model.Program{
		ID: "first-feature",
		Instructions: []model.Instruction{
			{Op: model.OpAdd, Source: 0, Target: 0, Mode: model.ModeExternal},
			{Op: model.OpAdd, Source: 1, Target: 1, Mode: model.ModeExternal},
		},
		Registers: make([]float64, 3),
	}
}

func fitnessParams() model.HyperParameters {
	return model.HyperParameters{
		Actions:        2,
		Extras:         1,
		Inputs:         2,
		ExternalFactor: 1,
		DefaultFitness: math.Inf(-1),
	}
}

func TestClassificationEvaluatorScoresAccuracy(t *testing.T) {
	state, err := stubProblem{}.NewState(context.Background(), rng.New(1))
	if err != nil {
		t.Fatalf("new state: %v", err)
	}

	p := firstFeatureProgram()
	got := ClassificationEvaluator{}.Eval(&p, state, fitnessParams(), rng.New(2))
	if got != 1 {
		t.Fatalf("separable dataset should score 1.0, got %v", got)
	}
}

func TestClassificationEvaluatorFaultsOnOverflow(t *testing.T) {
	state, err := stubProblem{}.NewState(context.Background(), rng.New(1))
	if err != nil {
		t.Fatalf("new state: %v", err)
	}

	// Repeated multiplication of scaled inputs overflows to +Inf.
	p := model.Program{
		ID: "overflowing",
		Instructions: []model.Instruction{
			{Op: model.OpAdd, Source: 0, Target: 0, Mode: model.ModeExternal},
		},
		Registers: make([]float64, 3),
	}
	for i := 0; i < 40; i++ {
		p.Instructions = append(p.Instructions, model.Instruction{
			Op: model.OpMul, Source: 0, Target: 0, Mode: model.ModeInternal,
		})
	}
	hp := fitnessParams()
	hp.ExternalFactor = 1e30

	got := ClassificationEvaluator{}.Eval(&p, state, hp, rng.New(2))
	if !math.IsInf(got, -1) {
		t.Fatalf("expected -Inf fault signal, got %v", got)
	}
}

// rewardLadder is a minimal episodic fixture paying a fixed reward per step
// for a fixed number of steps.
type rewardLadder struct {
	reward   float64
	steps    int
	maxSteps int
	obs      []float64
}

func (s *rewardLadder) Value(idx int) float64 { return s.obs[idx%len(s.obs)] }

func (s *rewardLadder) Act(_ int) float64 {
	s.steps++
	return s.reward
}

func (s *rewardLadder) Live() bool                    { return s.steps < s.maxSteps }
func (s *rewardLadder) Terminal() bool                { return s.steps >= s.maxSteps }
func (s *rewardLadder) InitialObservation() []float64 { return s.obs }
func (s *rewardLadder) Reset()                        { s.steps = 0 }

func TestEpisodicEvaluatorAccumulatesReward(t *testing.T) {
	state := &rewardLadder{reward: 2, maxSteps: 10, obs: []float64{0.5, -0.5}}
	p := firstFeatureProgram()

	got := EpisodicEvaluator{}.Eval(&p, state, fitnessParams(), rng.New(3))
	if got != 20 {
		t.Fatalf("expected cumulative reward 20, got %v", got)
	}
}

func TestQEvaluatorAccumulatesRewardWithoutDecayingIt(t *testing.T) {
	state := &rewardLadder{reward: 1, maxSteps: 25, obs: []float64{1, 0}}
	p := firstFeatureProgram()
	hp := fitnessParams()
	q := model.QParameters{Alpha: 0.1, Gamma: 0.9, Epsilon: 0.1, AlphaDecay: 0.001, EpsilonDecay: 0.001}

	got := QEvaluator{Params: q}.Eval(&p, state, hp, rng.New(4))
	if got != 25 {
		t.Fatalf("expected cumulative reward 25, got %v", got)
	}
}

func TestQTableStartsZeroAndLearnsOnTransitions(t *testing.T) {
	q := model.QParameters{Alpha: 0.5, Gamma: 0.9, Epsilon: 0, AlphaDecay: 0, EpsilonDecay: 0}
	table := newQTable(4, 2, q)

	for r, row := range table.values {
		for a, v := range row {
			if v != 0 {
				t.Fatalf("fresh table not zeroed at [%d][%d]: %v", r, a, v)
			}
		}
	}

	src := rng.New(5)
	current, ok := table.selectAction([]float64{0, 5, 0, 0}, src)
	if !ok || current.register != 1 {
		t.Fatalf("expected winning register 1, got %+v ok=%v", current, ok)
	}
	next, ok := table.selectAction([]float64{9, 0, 0, 0}, src)
	if !ok || next.register != 0 {
		t.Fatalf("expected winning register 0, got %+v ok=%v", next, ok)
	}

	table.update(current, 2, next)
	if got := table.values[current.register][current.action]; got != 1 {
		t.Fatalf("expected Q update 0.5*(2+0.9*0-0)=1, got %v", got)
	}
}

func TestQTableGreedyTiesBreakLowestIndex(t *testing.T) {
	q := model.QParameters{Alpha: 0.1, Gamma: 0.9, Epsilon: 0}
	table := newQTable(2, 3, q)

	pair, ok := table.selectAction([]float64{1, 0}, rng.New(6))
	if !ok || pair.action != 0 {
		t.Fatalf("expected action 0 on all-zero row tie, got %+v", pair)
	}
}

func TestQTableEpsilonOneAlwaysExplores(t *testing.T) {
	q := model.QParameters{Alpha: 0.1, Gamma: 0.9, Epsilon: 1}
	table := newQTable(2, 4, q)
	table.values[0] = []float64{100, 0, 0, 0}

	src := rng.New(7)
	seen := map[int]bool{}
	for i := 0; i < 200; i++ {
		pair, ok := table.selectAction([]float64{1, 0}, src)
		if !ok {
			t.Fatal("selection failed")
		}
		seen[pair.action] = true
	}
	if len(seen) < 3 {
		t.Fatalf("expected exploratory spread across actions, saw %d", len(seen))
	}
}

func TestQTableDecay(t *testing.T) {
	q := model.QParameters{Alpha: 1, Epsilon: 1, AlphaDecay: 0.5, EpsilonDecay: 0.1}
	table := newQTable(1, 1, q)

	table.decay()
	if table.alpha != 0.5 {
		t.Fatalf("alpha after decay: got=%v want=0.5", table.alpha)
	}
	if table.epsilon != 0.9 {
		t.Fatalf("epsilon after decay: got=%v want=0.9", table.epsilon)
	}
	table.decay()
	if table.alpha != 0.25 {
		t.Fatalf("alpha after second decay: got=%v want=0.25", table.alpha)
	}
}

func TestEvaluatorForDispatch(t *testing.T) {
	hp := fitnessParams()
	if _, ok := EvaluatorFor(stubProblem{}, hp).(ClassificationEvaluator); !ok {
		t.Fatal("classification problem should use the classification evaluator")
	}
	if _, ok := EvaluatorFor(scape.CartPoleProblem{}, hp).(EpisodicEvaluator); !ok {
		t.Fatal("episodic problem without Q should use the episodic evaluator")
	}
	hp.Q = &model.QParameters{Alpha: 0.1, Gamma: 0.9, Epsilon: 0.1}
	if _, ok := EvaluatorFor(scape.CartPoleProblem{}, hp).(QEvaluator); !ok {
		t.Fatal("episodic problem with Q should use the Q evaluator")
	}
}
