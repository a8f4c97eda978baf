// Package model loads exported scaler and classifier artifacts.
//
// Artifacts are JSON documents written by the training pipeline. A YAML
// manifest ties a version to one scaler and one classifier and pins the
// feature order they were fit against.
package model

import (
	"errors"
	"fmt"
	"math"

	"phish_server/core/port/out"
)

const (
	ScalerStandard = "standard"
	ScalerMinMax   = "minmax"
	ScalerIdentity = "identity"
)

var ErrDimension = errors.New("row dimension does not match artifact")

type scalerDoc struct {
	Kind  string    `json:"kind"`
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
	Min   []float64 `json:"min"`
}

// StandardScaler computes (x - mean) / scale.
type StandardScaler struct {
	mean  []float64
	scale []float64
}

// NewStandardScaler validates the parameters. A zero or non-finite scale
// is treated as 1, matching constant training columns.
func NewStandardScaler(mean, scale []float64) (*StandardScaler, error) {
	if len(mean) != len(scale) {
		return nil, fmt.Errorf("standard scaler: %d means, %d scales", len(mean), len(scale))
	}
	s := &StandardScaler{
		mean:  append([]float64(nil), mean...),
		scale: make([]float64, len(scale)),
	}
	for i, v := range scale {
		if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			v = 1
		}
		s.scale[i] = v
	}
	return s, nil
}

func (s *StandardScaler) Transform(row []float64) ([]float64, error) {
	if len(row) != len(s.mean) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(row), len(s.mean))
	}
	out := make([]float64, len(row))
	for i, x := range row {
		out[i] = (x - s.mean[i]) / s.scale[i]
	}
	return out, nil
}

func (s *StandardScaler) Kind() string { return ScalerStandard }

// MinMaxScaler computes x*scale + min.
type MinMaxScaler struct {
	min   []float64
	scale []float64
}

func NewMinMaxScaler(min, scale []float64) (*MinMaxScaler, error) {
	if len(min) != len(scale) {
		return nil, fmt.Errorf("minmax scaler: %d mins, %d scales", len(min), len(scale))
	}
	return &MinMaxScaler{
		min:   append([]float64(nil), min...),
		scale: append([]float64(nil), scale...),
	}, nil
}

func (s *MinMaxScaler) Transform(row []float64) ([]float64, error) {
	if len(row) != len(s.min) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(row), len(s.min))
	}
	out := make([]float64, len(row))
	for i, x := range row {
		out[i] = x*s.scale[i] + s.min[i]
	}
	return out, nil
}

func (s *MinMaxScaler) Kind() string { return ScalerMinMax }

// IdentityScaler passes rows through, for models trained on raw features.
type IdentityScaler struct {
	dim int
}

func (s IdentityScaler) Transform(row []float64) ([]float64, error) {
	if len(row) != s.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(row), s.dim)
	}
	return append([]float64(nil), row...), nil
}

func (s IdentityScaler) Kind() string { return ScalerIdentity }

func buildScaler(doc scalerDoc, dim int) (out.Scaler, error) {
	var (
		s   out.Scaler
		err error
	)
	switch doc.Kind {
	case ScalerStandard:
		s, err = NewStandardScaler(doc.Mean, doc.Scale)
		if err == nil && len(doc.Mean) != dim {
			err = fmt.Errorf("%w: scaler has %d columns, want %d", ErrDimension, len(doc.Mean), dim)
		}
	case ScalerMinMax:
		s, err = NewMinMaxScaler(doc.Min, doc.Scale)
		if err == nil && len(doc.Min) != dim {
			err = fmt.Errorf("%w: scaler has %d columns, want %d", ErrDimension, len(doc.Min), dim)
		}
	case ScalerIdentity:
		s = IdentityScaler{dim: dim}
	default:
		err = fmt.Errorf("unknown scaler kind %q", doc.Kind)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
