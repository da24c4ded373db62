package storage

import (
	"errors"
	"testing"

	"github.com/urmzd/linear-gp/internal/model"
)

func TestProgramCodecRoundTrip(t *testing.T) {
	fitness := 0.42
	program := model.Program{
		ID: "p",
		Instructions: []model.Instruction{
			{Op: model.OpMul, Source: 2, Target: 0, Mode: model.ModeInternal},
			{Op: model.OpDiv2, Source: 0, Target: 1, Mode: model.ModeInternal},
		},
		Registers: []float64{1.5, 0, -3},
		Fitness:   &fitness,
	}

	payload, err := EncodeProgram(program)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeProgram(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if decoded.ID != program.ID || len(decoded.Instructions) != 2 {
		t.Fatalf("decoded program mangled: %+v", decoded)
	}
	if decoded.Instructions[1].Op != model.OpDiv2 {
		t.Fatalf("instruction lost: %+v", decoded.Instructions[1])
	}
	if *decoded.Fitness != fitness {
		t.Fatalf("fitness lost: %v", decoded.Fitness)
	}
	if decoded.SchemaVersion != CurrentSchemaVersion || decoded.CodecVersion != CurrentCodecVersion {
		t.Fatalf("versions not stamped: %+v", decoded.VersionedRecord)
	}
}

func TestDecodeRejectsVersionMismatch(t *testing.T) {
	payload := []byte(`{"schema_version":99,"codec_version":1,"id":"p"}`)
	if _, err := DecodeProgram(payload); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}
}

func TestUnevaluatedFitnessSurvivesCodec(t *testing.T) {
	payload, err := EncodeProgram(model.Program{ID: "p", Registers: []float64{0}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeProgram(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Fitness != nil {
		t.Fatalf("nil fitness became %v", *decoded.Fitness)
	}
}

func TestLineageCodecStampsEveryRecord(t *testing.T) {
	records := []model.LineageRecord{
		{ProgramID: "a", Operation: "seed"},
		{ProgramID: "b", ParentID: "a", Generation: 1, Operation: "crossover"},
	}
	payload, err := EncodeLineage(records)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeLineage(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 2 || decoded[1].Operation != "crossover" {
		t.Fatalf("lineage mangled: %+v", decoded)
	}
}

func TestTopProgramsCodecRoundTrip(t *testing.T) {
	fitness := 1.0
	top := []model.TopProgramRecord{
		{Rank: 1, Fitness: 1, Program: model.Program{ID: "a", Registers: []float64{0}, Fitness: &fitness}},
	}
	payload, err := EncodeTopPrograms(top)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeTopPrograms(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 1 || decoded[0].Program.ID != "a" || decoded[0].Rank != 1 {
		t.Fatalf("top programs mangled: %+v", decoded)
	}
}
