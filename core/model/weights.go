package model

import (
	"encoding/json"

	latentErrors "github.com/YuminosukeSato/latent/pkg/errors"
)

// WeightsVersion is the current ModelWeights format version.
const WeightsVersion = "1"

// ModelWeights はモデルの重みを表す構造体（他言語・他ツールとの受け渡し用）
//
// TrainedState と違い、パラメータバッグはタグなしの素の値に展開されます。
type ModelWeights struct {
	// ModelType はバリアントの表示名（PCA, Autoencoder 等）
	ModelType string `json:"model_type"`

	// Version はフォーマットのバージョン（互換性チェック用）
	Version string `json:"version"`

	LatentDim int `json:"latent_dim"`
	NFeatures int `json:"n_features"`

	// Components は latent_dim × n_features の基底
	Components [][]float64 `json:"components"`

	ExplainedVarianceRatio []float64 `json:"explained_variance_ratio"`
	Mean                   []float64 `json:"mean"`
	Scale                  []float64 `json:"scale,omitempty"`

	// Hyperparameters は Config の内容
	Hyperparameters map[string]interface{} `json:"hyperparameters"`

	// Parameters は quantum_parameters と model_parameters を合わせたもの
	Parameters map[string]interface{} `json:"parameters,omitempty"`

	// Metadata は学習時の統計
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// IsFitted はモデルが学習済みかどうか
	IsFitted bool `json:"is_fitted"`
}

// ExportWeights はエスティメータの現在の状態から ModelWeights を作成する。
// 未学習の場合は IsFitted が false で重みは空になる
func ExportWeights(est Estimator) *ModelWeights {
	w := &ModelWeights{
		ModelType:       est.Name(),
		Version:         WeightsVersion,
		LatentDim:       est.Config().LatentDim(),
		Hyperparameters: est.Config().ToMap(),
	}
	state, ok := est.TrainedState()
	if !ok {
		return w
	}
	w.IsFitted = true
	w.NFeatures = state.NFeatures()
	w.Components = state.Components
	w.ExplainedVarianceRatio = state.ExplainedVarianceRatio
	w.Mean = state.Mean
	w.Scale = state.Scale
	w.Parameters = state.ModelParameters.ToMap()
	for k, v := range state.QuantumParameters.ToMap() {
		w.Parameters[k] = v
	}
	w.Metadata = state.TrainingStatistics.ToMap()
	return w
}

// ToJSON はModelWeightsをJSON形式にシリアライズ
func (mw *ModelWeights) ToJSON() ([]byte, error) {
	return json.MarshalIndent(mw, "", "  ")
}

// FromJSON はJSON形式からModelWeightsをデシリアライズ
func (mw *ModelWeights) FromJSON(data []byte) error {
	return json.Unmarshal(data, mw)
}

// Validate はModelWeightsの妥当性を検証
func (mw *ModelWeights) Validate() error {
	if mw.ModelType == "" {
		return latentErrors.NewValidationError("model_type", "model_type is required", mw.ModelType)
	}
	if mw.Version == "" {
		return latentErrors.NewValidationError("version", "version is required", mw.Version)
	}
	if !mw.IsFitted && len(mw.Components) > 0 {
		return latentErrors.NewValidationError("components", "unfitted model should not have components", len(mw.Components))
	}
	if !mw.IsFitted {
		return nil
	}
	if len(mw.Components) != mw.LatentDim {
		return latentErrors.NewValidationError("components", "fitted model must have latent_dim components", len(mw.Components))
	}
	for _, row := range mw.Components {
		if len(row) != mw.NFeatures {
			return latentErrors.NewDimensionError("ModelWeights.Validate", mw.NFeatures, len(row), 1)
		}
	}
	if len(mw.Mean) != mw.NFeatures {
		return latentErrors.NewDimensionError("ModelWeights.Validate", mw.NFeatures, len(mw.Mean), 1)
	}
	return nil
}

// Clone はModelWeightsのディープコピーを作成
func (mw *ModelWeights) Clone() *ModelWeights {
	clone := *mw
	if mw.Components != nil {
		clone.Components = make([][]float64, len(mw.Components))
		for i, row := range mw.Components {
			clone.Components[i] = cloneFloats(row)
		}
	}
	clone.ExplainedVarianceRatio = cloneFloats(mw.ExplainedVarianceRatio)
	clone.Mean = cloneFloats(mw.Mean)
	clone.Scale = cloneFloats(mw.Scale)
	clone.Hyperparameters = cloneAnyMap(mw.Hyperparameters)
	clone.Parameters = cloneAnyMap(mw.Parameters)
	clone.Metadata = cloneAnyMap(mw.Metadata)
	return &clone
}

func cloneAnyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if fs, ok := v.([]float64); ok {
			v = cloneFloats(fs)
		}
		out[k] = v
	}
	return out
}
