package evo

import (
	"testing"

	"github.com/urmzd/linear-gp/internal/model"
	"github.com/urmzd/linear-gp/internal/rng"
	"github.com/urmzd/linear-gp/internal/vm"
)

func variationParams() model.HyperParameters {
	return model.HyperParameters{
		MaxInstructions: 50,
		Actions:         3,
		Extras:          2,
		Inputs:          4,
		ExternalFactor:  1,
	}
}

func fixedLengthProgram(length int, src *rng.Source) model.Program {
	hp := variationParams()
	instructions := make([]model.Instruction, length)
	for i := range instructions {
		instructions[i] = vm.GenerateInstruction(hp, src)
	}
	return model.Program{
		ID:           vm.NewID(src),
		Instructions: instructions,
		Registers:    make([]float64, hp.Registers()),
	}
}

func TestMutateAltersAtMostOneInstruction(t *testing.T) {
	hp := variationParams()
	src := rng.New(31)

	for i := 0; i < 1000; i++ {
		original := fixedLengthProgram(20, src)
		fitness := 0.5
		original.Fitness = &fitness

		mutated := vm.Clone(original)
		Mutate(&mutated, hp, src)

		if mutated.Fitness != nil {
			t.Fatal("mutation must clear fitness")
		}

		changed := 0
		for j := range original.Instructions {
			if original.Instructions[j] != mutated.Instructions[j] {
				changed++
			}
		}
		if changed > 1 {
			t.Fatalf("mutation touched %d instructions", changed)
		}
	}
}

func TestMutateKeepsIndicesInRange(t *testing.T) {
	hp := variationParams()
	src := rng.New(37)

	for i := 0; i < 1000; i++ {
		p := fixedLengthProgram(10, src)
		Mutate(&p, hp, src)
		for _, inst := range p.Instructions {
			if inst.Target < 0 || inst.Target >= hp.Registers() {
				t.Fatalf("target out of range after mutation: %d", inst.Target)
			}
			bound := hp.Registers()
			if inst.Mode == model.ModeExternal {
				bound = hp.Inputs
			}
			if inst.Source < 0 || inst.Source >= bound {
				t.Fatalf("source out of range after mutation: %+v", inst)
			}
		}
	}
}

func TestCrossoverPreservesLengthAndGenes(t *testing.T) {
	src := rng.New(41)

	for i := 0; i < 10000; i++ {
		a := fixedLengthProgram(50, src)
		b := fixedLengthProgram(50, src)

		child := Crossover(a, b, src)
		if len(child.Instructions) != 50 {
			t.Fatalf("child length changed: %d", len(child.Instructions))
		}
		if child.Fitness != nil {
			t.Fatal("crossover must clear fitness")
		}
		if child.ID == a.ID || child.ID == b.ID {
			t.Fatal("child must carry a fresh identity")
		}

		// Every position holds the gene one of the parents carried there.
		for j := range child.Instructions {
			fromA := child.Instructions[j] == a.Instructions[j]
			fromB := child.Instructions[j] == b.Instructions[j]
			if !fromA && !fromB {
				t.Fatalf("position %d holds a gene from neither parent", j)
			}
		}
	}
}

func TestCrossoverDiffersFromParentsWithinSwappedWindow(t *testing.T) {
	src := rng.New(43)
	a := fixedLengthProgram(50, src)
	b := fixedLengthProgram(50, src)

	for i := 0; i < 1000; i++ {
		child := Crossover(a, b, src)

		diffsFromA := 0
		diffsFromB := 0
		for j := range child.Instructions {
			if child.Instructions[j] != a.Instructions[j] {
				diffsFromA++
			}
			if child.Instructions[j] != b.Instructions[j] {
				diffsFromB++
			}
		}
		// The child is one parent outside a window of at most len-1
		// positions, so it cannot differ from both parents everywhere.
		if diffsFromA == len(child.Instructions) && diffsFromB == len(child.Instructions) {
			t.Fatal("child differs from both parents at every position")
		}
	}
}

func TestCrossoverWithIdenticalParentsClones(t *testing.T) {
	src := rng.New(47)
	a := fixedLengthProgram(30, src)

	child := Crossover(a, a, src)
	if len(child.Instructions) != len(a.Instructions) {
		t.Fatalf("length changed: %d", len(child.Instructions))
	}
	for i := range child.Instructions {
		if child.Instructions[i] != a.Instructions[i] {
			t.Fatalf("self-crossover altered instruction %d", i)
		}
	}
}

func TestCrossoverShortParentIsNoOpBreed(t *testing.T) {
	src := rng.New(53)
	short := fixedLengthProgram(1, src)
	long := fixedLengthProgram(30, src)

	child := Crossover(short, long, src)
	if len(child.Instructions) != 1 {
		t.Fatalf("expected clone of first parent, got length %d", len(child.Instructions))
	}
	if child.Instructions[0] != short.Instructions[0] {
		t.Fatal("no-op breed must clone the first parent")
	}
}
