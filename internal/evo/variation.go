package evo

import (
	"github.com/urmzd/linear-gp/internal/model"
	"github.com/urmzd/linear-gp/internal/rng"
	"github.com/urmzd/linear-gp/internal/vm"
)

// Mutate replaces fields of one uniformly chosen instruction with fields
// from a freshly generated instruction, each swapped with probability 1/2:
// the operation, the source index together with its mode, and the target
// index. The individual is mutated in place and its fitness cleared.
func Mutate(p *model.Program, hp model.HyperParameters, src *rng.Source) {
	idx := src.Intn(len(p.Instructions))
	fresh := vm.GenerateInstruction(hp, src)
	inst := &p.Instructions[idx]

	if src.Bool() {
		inst.Op = fresh.Op
	}
	if src.Bool() {
		inst.Source = fresh.Source
		inst.Mode = fresh.Mode
	}
	if src.Bool() {
		inst.Target = fresh.Target
	}

	p.Fitness = nil
}

// Crossover breeds one offspring by two-point crossover: both parents are
// cloned, two distinct cut points p1 < p2 are drawn uniformly in
// [0, min(len(a), len(b))), the slices [p1, p2) are swapped between the
// clones, and one of the two results is returned uniformly at random. The
// child keeps its producing parent's length and starts unevaluated.
//
// When either parent is shorter than two instructions the breed is a no-op
// and a clone of the first parent is returned.
func Crossover(a, b model.Program, src *rng.Source) model.Program {
	childA := vm.CloneOffspring(a, src)
	childB := vm.CloneOffspring(b, src)

	n := len(childA.Instructions)
	if len(childB.Instructions) < n {
		n = len(childB.Instructions)
	}
	if n < 2 {
		return childA
	}

	p1 := src.Intn(n)
	p2 := src.Intn(n - 1)
	if p2 >= p1 {
		p2++
	} else {
		p1, p2 = p2, p1
	}

	for i := p1; i < p2; i++ {
		childA.Instructions[i], childB.Instructions[i] = childB.Instructions[i], childA.Instructions[i]
	}

	if src.Bool() {
		return childA
	}
	return childB
}
