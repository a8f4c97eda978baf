package model

import (
	"fmt"
	"math"

	"phish_server/core/port/out"
)

const (
	ClassifierLogistic = "logistic"
	ClassifierForest   = "forest"
)

type classifierDoc struct {
	Kind      string    `json:"kind"`
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
	NClasses  int       `json:"n_classes"`
	Trees     []treeDoc `json:"trees"`
}

// LogisticRegression is a binary linear model: p1 = sigmoid(w.x + b).
type LogisticRegression struct {
	coef      []float64
	intercept float64
}

func NewLogisticRegression(coef []float64, intercept float64) (*LogisticRegression, error) {
	if len(coef) == 0 {
		return nil, fmt.Errorf("logistic regression: no coefficients")
	}
	return &LogisticRegression{coef: append([]float64(nil), coef...), intercept: intercept}, nil
}

func (m *LogisticRegression) decision(row []float64) (float64, error) {
	if len(row) != len(m.coef) {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(row), len(m.coef))
	}
	z := m.intercept
	for i, w := range m.coef {
		z += w * row[i]
	}
	return z, nil
}

func (m *LogisticRegression) Predict(row []float64) (int, error) {
	z, err := m.decision(row)
	if err != nil {
		return 0, err
	}
	// z > 0 is exactly sigmoid(z) > 0.5
	if z > 0 {
		return 1, nil
	}
	return 0, nil
}

func (m *LogisticRegression) PredictProba(row []float64) ([]float64, error) {
	z, err := m.decision(row)
	if err != nil {
		return nil, err
	}
	p1 := sigmoid(z)
	return []float64{1 - p1, p1}, nil
}

func (m *LogisticRegression) Kind() string { return ClassifierLogistic }

// sigmoid is evaluated on the side that cannot overflow.
func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func buildClassifier(doc classifierDoc, dim int) (out.Classifier, error) {
	switch doc.Kind {
	case ClassifierLogistic:
		if len(doc.Coef) != dim {
			return nil, fmt.Errorf("%w: classifier has %d coefficients, want %d", ErrDimension, len(doc.Coef), dim)
		}
		return NewLogisticRegression(doc.Coef, doc.Intercept)
	case ClassifierForest:
		return NewForest(doc.Trees, doc.NClasses, dim)
	default:
		return nil, fmt.Errorf("unknown classifier kind %q", doc.Kind)
	}
}
