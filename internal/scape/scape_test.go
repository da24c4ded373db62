package scape

import (
	"context"
	"math"
	"testing"

	"github.com/urmzd/linear-gp/internal/rng"
)

func TestIrisLoadsFullDataset(t *testing.T) {
	state, err := IrisProblem{}.NewState(context.Background(), rng.New(42))
	if err != nil {
		t.Fatalf("new iris state: %v", err)
	}

	counts := map[int]int{}
	rows := 0
	for state.Live() {
		for f := 0; f < 4; f++ {
			v := state.Value(f)
			if v <= 0 || v >= 10 {
				t.Fatalf("implausible feature value at row %d: %v", rows, v)
			}
		}
		iris := state.(*irisState)
		counts[iris.rows[iris.idx].class]++
		state.Act(0)
		rows++
	}

	if rows != 150 {
		t.Fatalf("expected 150 rows, got %d", rows)
	}
	for class := 0; class < 3; class++ {
		if counts[class] != 50 {
			t.Fatalf("class %d: expected 50 rows, got %d", class, counts[class])
		}
	}
}

func TestIrisActScoresCorrectness(t *testing.T) {
	state, err := IrisProblem{}.NewState(context.Background(), rng.New(1))
	if err != nil {
		t.Fatalf("new iris state: %v", err)
	}
	iris := state.(*irisState)

	correct := iris.rows[0].class
	if got := state.Act(correct); got != 1 {
		t.Fatalf("correct prediction should score 1, got %v", got)
	}
	wrong := (iris.rows[1].class + 1) % 3
	if got := state.Act(wrong); got != 0 {
		t.Fatalf("wrong prediction should score 0, got %v", got)
	}
}

func TestIrisResetRewindsWithoutReshuffling(t *testing.T) {
	state, err := IrisProblem{}.NewState(context.Background(), rng.New(9))
	if err != nil {
		t.Fatalf("new iris state: %v", err)
	}

	first := state.Value(0)
	state.Act(0)
	state.Act(1)
	state.Reset()

	if !state.Live() {
		t.Fatal("reset state must be live")
	}
	if got := state.Value(0); got != first {
		t.Fatalf("reset changed row order: got=%v want=%v", got, first)
	}
}

func TestIrisShuffleIsSeedDeterministic(t *testing.T) {
	a, err := IrisProblem{}.NewState(context.Background(), rng.New(7))
	if err != nil {
		t.Fatalf("new iris state: %v", err)
	}
	b, err := IrisProblem{}.NewState(context.Background(), rng.New(7))
	if err != nil {
		t.Fatalf("new iris state: %v", err)
	}

	for i := 0; i < 150; i++ {
		for f := 0; f < 4; f++ {
			if a.Value(f) != b.Value(f) {
				t.Fatalf("row %d feature %d diverged across same-seed shuffles", i, f)
			}
		}
		a.Act(0)
		b.Act(0)
	}
}

func TestCartPoleEpisodeLifecycle(t *testing.T) {
	state, err := CartPoleProblem{}.NewState(context.Background(), rng.New(3))
	if err != nil {
		t.Fatalf("new cart-pole state: %v", err)
	}
	episodic := state.(EpisodicState)

	if episodic.Terminal() {
		t.Fatal("fresh episode must not be terminal")
	}
	obs := episodic.InitialObservation()
	if len(obs) != 4 {
		t.Fatalf("expected 4 observation features, got %d", len(obs))
	}
	for _, v := range obs {
		if v < -0.05 || v > 0.05 {
			t.Fatalf("initial observation out of range: %v", v)
		}
	}

	total := 0.0
	steps := 0
	for state.Live() {
		total += state.Act(1)
		steps++
		if steps > cartPoleMaxSteps {
			t.Fatal("episode exceeded step cap")
		}
	}
	if !episodic.Terminal() {
		t.Fatal("dead episode must report terminal")
	}
	if total != float64(steps) {
		t.Fatalf("cart-pole pays 1 per step: reward=%v steps=%d", total, steps)
	}

	state.Reset()
	if !state.Live() || episodic.Terminal() {
		t.Fatal("reset must reopen the episode")
	}
	for i, v := range episodic.InitialObservation() {
		if state.Value(i) != v {
			t.Fatalf("reset must restore the initial observation at %d", i)
		}
	}
}

func TestCartPolePushingOneWayFails(t *testing.T) {
	state, err := CartPoleProblem{}.NewState(context.Background(), rng.New(5))
	if err != nil {
		t.Fatalf("new cart-pole state: %v", err)
	}

	steps := 0
	for state.Live() {
		state.Act(1)
		steps++
	}
	if steps >= cartPoleMaxSteps {
		t.Fatalf("constant pushing should fall before the cap, survived %d", steps)
	}
}

func TestMountainCarRewardAndCap(t *testing.T) {
	state, err := MountainCarProblem{}.NewState(context.Background(), rng.New(2))
	if err != nil {
		t.Fatalf("new mountain-car state: %v", err)
	}

	total := 0.0
	steps := 0
	for state.Live() {
		total += state.Act(1)
		steps++
	}
	// Idling never climbs the hill; the cap ends the episode.
	if steps != mountainCarMaxSteps {
		t.Fatalf("expected cap at %d steps, got %d", mountainCarMaxSteps, steps)
	}
	if total != -float64(mountainCarMaxSteps) {
		t.Fatalf("mountain-car pays -1 per step: got %v", total)
	}
}

func TestMountainCarPhysicsBounds(t *testing.T) {
	state, err := MountainCarProblem{}.NewState(context.Background(), rng.New(4))
	if err != nil {
		t.Fatalf("new mountain-car state: %v", err)
	}

	for i := 0; i < mountainCarMaxSteps && state.Live(); i++ {
		state.Act(i % 3)
		position, velocity := state.Value(0), state.Value(1)
		if position < mountainCarMinPosition || position > mountainCarMaxPosition {
			t.Fatalf("position out of bounds: %v", position)
		}
		if math.Abs(velocity) > mountainCarMaxSpeed {
			t.Fatalf("velocity out of bounds: %v", velocity)
		}
	}
}
