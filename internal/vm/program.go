package vm

import (
	"github.com/urmzd/linear-gp/internal/model"
	"github.com/urmzd/linear-gp/internal/rng"
)

// Exec runs every instruction of the program in order against the current
// input vector, mutating the program's registers. Execution is pure
// straight-line: no branching, no jumps. Arithmetic is unguarded; NaN and
// Inf propagate to the fitness layer as legitimate signals.
func Exec(p *model.Program, input []float64, externalFactor float64) {
	registers := p.Registers
	for _, inst := range p.Instructions {
		var src float64
		if inst.Mode == model.ModeExternal && len(input) > 0 {
			src = externalFactor * input[inst.Source%len(input)]
		} else {
			src = registers[inst.Source%len(registers)]
		}

		target := inst.Target % len(registers)
		tgt := registers[target]

		switch inst.Op {
		case model.OpAdd:
			registers[target] = tgt + src
		case model.OpSub:
			registers[target] = tgt - src
		case model.OpMul:
			registers[target] = tgt * src
		case model.OpDiv2:
			registers[target] = tgt / 2
		}
	}
}

// Predict executes the program on the input and returns the action
// prediction: the argmax over the first nActions registers, ties broken by
// lowest index. Registers are zeroed first so the prediction is a pure
// function of (instructions, input).
func Predict(p *model.Program, input []float64, nActions int, externalFactor float64) (int, bool) {
	ZeroRegisters(p.Registers)
	Exec(p, input, externalFactor)
	return Argmax(p.Registers[:nActions])
}

// Reset zeroes the program's registers and clears its fitness.
func Reset(p *model.Program) {
	ZeroRegisters(p.Registers)
	p.Fitness = nil
}

// Clone deep-copies a program, keeping its identity and fitness.
func Clone(p model.Program) model.Program {
	out := p
	out.Instructions = append([]model.Instruction(nil), p.Instructions...)
	out.Registers = append([]float64(nil), p.Registers...)
	if p.Fitness != nil {
		fitness := *p.Fitness
		out.Fitness = &fitness
	}
	return out
}

// CloneOffspring deep-copies a program under a fresh identity with cleared
// fitness and zeroed registers, ready for variation.
func CloneOffspring(p model.Program, src *rng.Source) model.Program {
	out := Clone(p)
	out.ID = NewID(src)
	out.Fitness = nil
	ZeroRegisters(out.Registers)
	return out
}
