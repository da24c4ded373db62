package vm

import (
	"github.com/google/uuid"

	"github.com/urmzd/linear-gp/internal/model"
	"github.com/urmzd/linear-gp/internal/rng"
)

var ops = []model.Op{model.OpAdd, model.OpSub, model.OpMul, model.OpDiv2}

// NewID draws a fresh program identity from the deterministic stream so
// identical seeds reproduce identical lineages.
func NewID(src *rng.Source) string {
	id, err := uuid.NewRandomFromReader(src)
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// GenerateInstruction samples one uniformly random instruction. When the
// problem exposes no external inputs the mode is forced internal.
func GenerateInstruction(hp model.HyperParameters, src *rng.Source) model.Instruction {
	mode := model.ModeInternal
	if hp.Inputs > 0 && src.Bool() {
		mode = model.ModeExternal
	}

	sourceBound := hp.Registers()
	if mode == model.ModeExternal {
		sourceBound = hp.Inputs
	}

	return model.Instruction{
		Op:     ops[src.Intn(len(ops))],
		Source: src.Intn(sourceBound),
		Target: src.Intn(hp.Registers()),
		Mode:   mode,
	}
}

// GenerateProgram samples a fresh individual: a uniform length in
// [1, max_instructions], that many random instructions, and a zeroed
// register file of width n_actions + n_extras.
func GenerateProgram(hp model.HyperParameters, src *rng.Source) model.Program {
	length := src.IntRange(1, hp.MaxInstructions)
	instructions := make([]model.Instruction, length)
	for i := range instructions {
		instructions[i] = GenerateInstruction(hp, src)
	}

	return model.Program{
		ID:           NewID(src),
		Instructions: instructions,
		Registers:    make([]float64, hp.Registers()),
	}
}
