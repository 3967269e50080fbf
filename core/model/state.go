package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	latentErrors "github.com/YuminosukeSato/latent/pkg/errors"
)

// VarianceRatioTolerance is the slack allowed above 1 for the sum of
// explained variance ratios of linear variants.
const VarianceRatioTolerance = 1e-9

// TrainedState は Fit が成功するたびに生成される不変の学習結果です。
//
// Components は latent_dim 行 × 特徴量数の基底（またはエンコーダ行）、
// Mean と Scale は入力の中心化・スケーリング統計です。Scale が nil の場合は
// スケーリングを行っていません。残りの三つのバッグはバリアント固有の
// パラメータと学習診断値を保持します。
type TrainedState struct {
	Components             [][]float64 `json:"components"`
	ExplainedVarianceRatio []float64   `json:"explained_variance_ratio"`
	Mean                   []float64   `json:"mean"`
	Scale                  []float64   `json:"scale,omitempty"`
	QuantumParameters      Params      `json:"quantum_parameters"`
	ModelParameters        Params      `json:"model_parameters"`
	TrainingStatistics     Params      `json:"training_statistics"`
}

// LatentDim returns the number of components.
func (s *TrainedState) LatentDim() int { return len(s.Components) }

// NFeatures returns the original feature dimensionality.
func (s *TrainedState) NFeatures() int { return len(s.Mean) }

// HasScale reports whether scaling was applied during fitting.
func (s *TrainedState) HasScale() bool { return s.Scale != nil }

// VarianceRatioSum returns the sum of the explained variance ratios.
func (s *TrainedState) VarianceRatioSum() float64 {
	var sum float64
	for _, r := range s.ExplainedVarianceRatio {
		sum += r
	}
	return sum
}

// ComponentsMatrix returns the components as a new latent_dim × n_features matrix.
func (s *TrainedState) ComponentsMatrix() *mat.Dense {
	k, d := s.LatentDim(), s.NFeatures()
	out := mat.NewDense(k, d, nil)
	for i, row := range s.Components {
		out.SetRow(i, row)
	}
	return out
}

// Clone returns a deep copy that shares no memory with s.
func (s *TrainedState) Clone() *TrainedState {
	if s == nil {
		return nil
	}
	out := &TrainedState{
		Components:             make([][]float64, len(s.Components)),
		ExplainedVarianceRatio: cloneFloats(s.ExplainedVarianceRatio),
		Mean:                   cloneFloats(s.Mean),
		Scale:                  cloneFloats(s.Scale),
		QuantumParameters:      s.QuantumParameters.Clone(),
		ModelParameters:        s.ModelParameters.Clone(),
		TrainingStatistics:     s.TrainingStatistics.Clone(),
	}
	for i, row := range s.Components {
		out.Components[i] = cloneFloats(row)
	}
	return out
}

// Equal reports whether two states agree field by field, comparing
// numbers with absolute tolerance tol.
func (s *TrainedState) Equal(other *TrainedState, tol float64) bool {
	if s == nil || other == nil {
		return s == other
	}
	if len(s.Components) != len(other.Components) {
		return false
	}
	for i := range s.Components {
		if !floatsEqual(s.Components[i], other.Components[i], tol) {
			return false
		}
	}
	if s.HasScale() != other.HasScale() {
		return false
	}
	return floatsEqual(s.ExplainedVarianceRatio, other.ExplainedVarianceRatio, tol) &&
		floatsEqual(s.Mean, other.Mean, tol) &&
		floatsEqual(s.Scale, other.Scale, tol) &&
		s.QuantumParameters.equal(other.QuantumParameters, tol) &&
		s.ModelParameters.equal(other.ModelParameters, tol) &&
		s.TrainingStatistics.equal(other.TrainingStatistics, tol)
}

// Validate checks the structural invariants of the state.
//
// Every component row and the scale vector must match the length of Mean,
// there must be one ratio per component, and all numbers must be finite.
// Ratios are never negative. When linear is true the ratios must also be
// non-increasing and sum to at most 1.
func (s *TrainedState) Validate(linear bool) error {
	if s == nil {
		return latentErrors.NewValidationError("trained_state", "state is nil", nil)
	}
	k, d := s.LatentDim(), s.NFeatures()
	if k < 1 {
		return latentErrors.NewValidationError("components", "at least one component is required", k)
	}
	if d < 1 {
		return latentErrors.NewValidationError("mean", "mean must not be empty", d)
	}
	if k > d {
		return latentErrors.NewLatentDimError("TrainedState.Validate", d, k)
	}
	for i, row := range s.Components {
		if len(row) != d {
			return latentErrors.NewValidationError("components",
				fmt.Sprintf("row %d has length %d, want %d", i, len(row), d), len(row))
		}
		if err := checkFinite("components", row); err != nil {
			return err
		}
	}
	if len(s.ExplainedVarianceRatio) != k {
		return latentErrors.NewValidationError("explained_variance_ratio",
			fmt.Sprintf("length %d does not match latent_dim %d", len(s.ExplainedVarianceRatio), k),
			len(s.ExplainedVarianceRatio))
	}
	if err := checkFinite("mean", s.Mean); err != nil {
		return err
	}
	if s.Scale != nil {
		if len(s.Scale) != d {
			return latentErrors.NewValidationError("scale",
				fmt.Sprintf("length %d does not match n_features %d", len(s.Scale), d), len(s.Scale))
		}
		for _, v := range s.Scale {
			if !(v > 0) || math.IsInf(v, 0) {
				return latentErrors.NewValidationError("scale", "entries must be positive and finite", v)
			}
		}
	}
	if err := checkFinite("explained_variance_ratio", s.ExplainedVarianceRatio); err != nil {
		return err
	}
	for i, r := range s.ExplainedVarianceRatio {
		if r < 0 {
			return latentErrors.NewValidationError("explained_variance_ratio",
				fmt.Sprintf("entry %d is negative", i), r)
		}
		if linear && i > 0 && r > s.ExplainedVarianceRatio[i-1]+VarianceRatioTolerance {
			return latentErrors.NewValidationError("explained_variance_ratio",
				fmt.Sprintf("entry %d exceeds the previous entry", i), r)
		}
	}
	if linear && s.VarianceRatioSum() > 1+VarianceRatioTolerance {
		return latentErrors.NewValidationError("explained_variance_ratio", "ratios sum above 1", s.VarianceRatioSum())
	}
	return nil
}

func checkFinite(op string, values []float64) error {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return latentErrors.NewNumericalInstabilityError(op, values, 0)
		}
	}
	return nil
}

func cloneFloats(v []float64) []float64 {
	if v == nil {
		return nil
	}
	return append(make([]float64, 0, len(v)), v...)
}
