package evo

import (
	"fmt"
	"hash/fnv"

	"github.com/urmzd/linear-gp/internal/model"
)

// Fingerprint digests an instruction sequence into a short stable
// identifier used by lineage records to spot structural duplicates.
func Fingerprint(instructions []model.Instruction) string {
	h := fnv.New64a()
	for _, inst := range instructions {
		fmt.Fprintf(h, "%s:%d:%d:%s;", inst.Op, inst.Source, inst.Target, inst.Mode)
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
