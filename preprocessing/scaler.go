package preprocessing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/latent/core/model"
	"github.com/YuminosukeSato/latent/core/parallel"
	"github.com/YuminosukeSato/latent/pkg/errors"
)

// MinScale は標準偏差をゼロとみなす閾値。これ未満の特徴量はスケール 1 で扱う
const MinScale = 1e-8

var _ model.InverseTransformer = (*StandardScaler)(nil)

// StandardScaler は特徴量ごとの中心化・標準化を行うスケーラー
// 全ての次元削減バリアントが Mean / Scale の計算にこれを使う
type StandardScaler struct {
	// Mean は各特徴量の平均値
	Mean []float64

	// Scale は各特徴量の標準偏差（母分散ベース）
	Scale []float64

	// NFeatures は特徴量の数
	NFeatures int

	// WithMean は平均を引くかどうか (デフォルト: true)
	WithMean bool

	// WithStd は標準偏差で割るかどうか (デフォルト: true)
	WithStd bool

	fitted bool
}

// NewStandardScaler は新しいStandardScalerを作成する
//
// 使用例:
//
//	scaler := preprocessing.NewStandardScaler(true, false) // 中心化のみ
//	err := scaler.Fit(X)
//	Xc, err := scaler.Transform(X)
func NewStandardScaler(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{
		WithMean: withMean,
		WithStd:  withStd,
	}
}

// NewStandardScalerDefault はデフォルト設定でStandardScalerを作成する
func NewStandardScalerDefault() *StandardScaler {
	return NewStandardScaler(true, true)
}

// NewStandardScalerFromStats は学習済みの統計から StandardScaler を復元する。
// scale が nil の場合はスケーリングを行わない
func NewStandardScalerFromStats(mean, scale []float64) (*StandardScaler, error) {
	if len(mean) == 0 {
		return nil, errors.NewEmptyDataError("NewStandardScalerFromStats")
	}
	if scale != nil && len(scale) != len(mean) {
		return nil, errors.NewDimensionError("NewStandardScalerFromStats", len(mean), len(scale), 1)
	}
	s := &StandardScaler{
		Mean:      append([]float64(nil), mean...),
		NFeatures: len(mean),
		WithMean:  true,
		WithStd:   scale != nil,
		fitted:    true,
	}
	if scale != nil {
		s.Scale = append([]float64(nil), scale...)
	}
	return s, nil
}

// IsFitted はスケーラーが学習済みかどうかを返す
func (s *StandardScaler) IsFitted() bool { return s.fitted }

// Fit は訓練データから統計情報（平均、標準偏差）を計算する
// NaN や Inf を含むデータは InvalidConfig エラーになる
func (s *StandardScaler) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewEmptyDataError("StandardScaler.Fit")
	}

	mean := make([]float64, c)
	var scale []float64
	if s.WithStd {
		scale = make([]float64, c)
	}

	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		for i, v := range col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.NewValueError("StandardScaler.Fit",
					fmt.Sprintf("input contains NaN or Inf at row %d, column %d", i, j))
			}
		}
		m := stat.Mean(col, nil)
		if s.WithMean {
			mean[j] = m
		}
		if s.WithStd {
			// 母分散（n で割る）
			var ss float64
			for _, v := range col {
				d := v - m
				ss += d * d
			}
			sd := math.Sqrt(ss / float64(r))
			if sd < MinScale {
				sd = 1.0
			}
			scale[j] = sd
		}
	}

	s.Mean = mean
	s.Scale = scale
	s.NFeatures = c
	s.fitted = true
	return nil
}

// Transform は学習済みの統計情報を使ってデータを標準化する
func (s *StandardScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if !s.fitted {
		return nil, errors.NewNotFittedError("StandardScaler", "Transform")
	}
	_, c := X.Dims()
	if c != s.NFeatures {
		return nil, errors.NewDimensionError("StandardScaler.Transform", s.NFeatures, c, 1)
	}
	return Standardize(X, s.Mean, s.Scale), nil
}

// FitTransform は訓練データで学習し、同じデータを変換する
func (s *StandardScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform は標準化されたデータを元のスケールに戻す
func (s *StandardScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	if !s.fitted {
		return nil, errors.NewNotFittedError("StandardScaler", "InverseTransform")
	}
	_, c := X.Dims()
	if c != s.NFeatures {
		return nil, errors.NewDimensionError("StandardScaler.InverseTransform", s.NFeatures, c, 1)
	}
	return Destandardize(X, s.Mean, s.Scale), nil
}

// Standardize returns (X - mean) / scale as a new matrix.
// A nil scale leaves the centred values unscaled.
func Standardize(X mat.Matrix, mean, scale []float64) *mat.Dense {
	r, c := X.Dims()
	out := mat.NewDense(r, c, nil)
	parallel.ForEachRow(r, func(i int) {
		row := out.RawRowView(i)
		for j := 0; j < c; j++ {
			v := X.At(i, j) - mean[j]
			if scale != nil {
				v /= scale[j]
			}
			row[j] = v
		}
	})
	return out
}

// Destandardize returns X * scale + mean as a new matrix.
func Destandardize(X mat.Matrix, mean, scale []float64) *mat.Dense {
	r, c := X.Dims()
	out := mat.NewDense(r, c, nil)
	parallel.ForEachRow(r, func(i int) {
		row := out.RawRowView(i)
		for j := 0; j < c; j++ {
			v := X.At(i, j)
			if scale != nil {
				v *= scale[j]
			}
			row[j] = v + mean[j]
		}
	})
	return out
}

// GetParams はスケーラーのパラメータを取得する
func (s *StandardScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"with_mean": s.WithMean,
		"with_std":  s.WithStd,
	}
}

// String はスケーラーの文字列表現を返す
func (s *StandardScaler) String() string {
	if !s.fitted {
		return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t)", s.WithMean, s.WithStd)
	}
	return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t, n_features=%d)",
		s.WithMean, s.WithStd, s.NFeatures)
}
