package storage

import (
	"encoding/json"
	"errors"

	"github.com/urmzd/linear-gp/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func stamp() model.VersionedRecord {
	return model.VersionedRecord{
		SchemaVersion: CurrentSchemaVersion,
		CodecVersion:  CurrentCodecVersion,
	}
}

func EncodeProgram(p model.Program) ([]byte, error) {
	p.VersionedRecord = stamp()
	return json.Marshal(p)
}

func DecodeProgram(data []byte) (model.Program, error) {
	var program model.Program
	if err := json.Unmarshal(data, &program); err != nil {
		return model.Program{}, err
	}
	if err := checkVersion(program.VersionedRecord); err != nil {
		return model.Program{}, err
	}
	return program, nil
}

func EncodePopulation(p model.Population) ([]byte, error) {
	p.VersionedRecord = stamp()
	return json.Marshal(p)
}

func DecodePopulation(data []byte) (model.Population, error) {
	var population model.Population
	if err := json.Unmarshal(data, &population); err != nil {
		return model.Population{}, err
	}
	if err := checkVersion(population.VersionedRecord); err != nil {
		return model.Population{}, err
	}
	return population, nil
}

func EncodeProblemSummary(s model.ProblemSummary) ([]byte, error) {
	s.VersionedRecord = stamp()
	return json.Marshal(s)
}

func DecodeProblemSummary(data []byte) (model.ProblemSummary, error) {
	var summary model.ProblemSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return model.ProblemSummary{}, err
	}
	if err := checkVersion(summary.VersionedRecord); err != nil {
		return model.ProblemSummary{}, err
	}
	return summary, nil
}

func EncodeLineage(records []model.LineageRecord) ([]byte, error) {
	stamped := make([]model.LineageRecord, len(records))
	for i, record := range records {
		record.VersionedRecord = stamp()
		stamped[i] = record
	}
	return json.Marshal(stamped)
}

func DecodeLineage(data []byte) ([]model.LineageRecord, error) {
	var records []model.LineageRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	for _, record := range records {
		if err := checkVersion(record.VersionedRecord); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func EncodeFitnessHistory(history []float64) ([]byte, error) {
	return json.Marshal(history)
}

func DecodeFitnessHistory(data []byte) ([]float64, error) {
	var history []float64
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func EncodeGenerationDiagnostics(diagnostics []model.GenerationDiagnostics) ([]byte, error) {
	return json.Marshal(diagnostics)
}

func DecodeGenerationDiagnostics(data []byte) ([]model.GenerationDiagnostics, error) {
	var diagnostics []model.GenerationDiagnostics
	if err := json.Unmarshal(data, &diagnostics); err != nil {
		return nil, err
	}
	return diagnostics, nil
}

func EncodeTopPrograms(top []model.TopProgramRecord) ([]byte, error) {
	stamped := make([]model.TopProgramRecord, len(top))
	for i, record := range top {
		record.Program.VersionedRecord = stamp()
		stamped[i] = record
	}
	return json.Marshal(stamped)
}

func DecodeTopPrograms(data []byte) ([]model.TopProgramRecord, error) {
	var top []model.TopProgramRecord
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, err
	}
	for _, record := range top {
		if err := checkVersion(record.Program.VersionedRecord); err != nil {
			return nil, err
		}
	}
	return top, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
