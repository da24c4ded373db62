package scape

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/rocketlaunchr/dataframe-go/imports"

	"github.com/urmzd/linear-gp/internal/rng"
)

//go:embed iris.csv
var irisCSV string

const (
	irisFeatures = 4
	irisClasses  = 3
)

var irisClassIndex = map[string]int{
	"Iris-setosa":     0,
	"Iris-versicolor": 1,
	"Iris-virginica":  2,
}

type irisRow struct {
	features [irisFeatures]float64
	class    int
}

var (
	irisOnce sync.Once
	irisData []irisRow
	irisErr  error
)

// IrisProblem serves the embedded Iris dataset as a classification task:
// four features, three classes, shuffled once per trial state.
type IrisProblem struct{}

func (IrisProblem) Name() string { return "iris" }

func (IrisProblem) Kind() Kind { return KindClassification }

func (IrisProblem) Inputs() int { return irisFeatures }

func (IrisProblem) Actions() int { return irisClasses }

func (IrisProblem) NewState(ctx context.Context, src *rng.Source) (State, error) {
	rows, err := loadIris(ctx)
	if err != nil {
		return nil, err
	}

	shuffled := append([]irisRow(nil), rows...)
	src.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return &irisState{rows: shuffled}, nil
}

func loadIris(ctx context.Context) ([]irisRow, error) {
	irisOnce.Do(func() {
		irisData, irisErr = parseIris(ctx)
	})
	return irisData, irisErr
}

func parseIris(ctx context.Context) ([]irisRow, error) {
	df, err := imports.LoadFromCSV(ctx, strings.NewReader(irisCSV), imports.CSVLoadOptions{
		InferDataTypes: true,
	})
	if err != nil {
		return nil, fmt.Errorf("parse iris dataset: %w", err)
	}
	if df == nil || len(df.Series) != irisFeatures+1 {
		return nil, fmt.Errorf("iris dataset: expected %d columns", irisFeatures+1)
	}

	n := df.NRows()
	rows := make([]irisRow, 0, n)
	for i := 0; i < n; i++ {
		var row irisRow
		for f := 0; f < irisFeatures; f++ {
			value, ok := df.Series[f].Value(i).(float64)
			if !ok {
				return nil, fmt.Errorf("iris dataset: row %d column %d is not numeric", i, f)
			}
			row.features[f] = value
		}
		label := fmt.Sprintf("%v", df.Series[irisFeatures].Value(i))
		class, ok := irisClassIndex[label]
		if !ok {
			return nil, fmt.Errorf("iris dataset: unknown class %q at row %d", label, i)
		}
		row.class = class
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("iris dataset: no rows")
	}
	return rows, nil
}

type irisState struct {
	rows []irisRow
	idx  int
}

func (s *irisState) Value(idx int) float64 {
	return s.rows[s.idx].features[idx%irisFeatures]
}

func (s *irisState) Act(action int) float64 {
	correct := s.rows[s.idx].class == action
	s.idx++
	if correct {
		return 1
	}
	return 0
}

func (s *irisState) Live() bool {
	return s.idx < len(s.rows)
}

func (s *irisState) Reset() {
	s.idx = 0
}
