// Package metrics はエンコード・デコードの再構成品質を測る指標を提供します。
package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/latent/pkg/errors"
)

func checkPair(op string, X, Xhat mat.Matrix) (int, int, error) {
	r, c := X.Dims()
	rh, ch := Xhat.Dims()
	if r == 0 || c == 0 {
		return 0, 0, errors.NewEmptyDataError(op)
	}
	if r != rh {
		return 0, 0, errors.NewDimensionError(op, r, rh, 0)
	}
	if c != ch {
		return 0, 0, errors.NewDimensionError(op, c, ch, 1)
	}
	return r, c, nil
}

// SquaredError は全要素の二乗誤差の総和を計算する
func SquaredError(X, Xhat mat.Matrix) (float64, error) {
	r, c, err := checkPair("SquaredError", X, Xhat)
	if err != nil {
		return 0, err
	}
	var sse float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			d := X.At(i, j) - Xhat.At(i, j)
			sse += d * d
		}
	}
	return sse, nil
}

// ReconstructionMSE は元データと再構成データの要素平均二乗誤差を計算する
//
// MSE = (1/(n·d)) * Σ_ij (X_ij - X̂_ij)²
func ReconstructionMSE(X, Xhat mat.Matrix) (float64, error) {
	sse, err := SquaredError(X, Xhat)
	if err != nil {
		return 0, err
	}
	r, c := X.Dims()
	return sse / float64(r*c), nil
}

// ReconstructionRMSE は ReconstructionMSE の平方根を返す
func ReconstructionRMSE(X, Xhat mat.Matrix) (float64, error) {
	mse, err := ReconstructionMSE(X, Xhat)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// FeatureVariances は各特徴量の母分散を返す
func FeatureVariances(X mat.Matrix) []float64 {
	r, c := X.Dims()
	out := make([]float64, c)
	if r == 0 {
		return out
	}
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		_, out[j] = stat.PopMeanVariance(col, nil)
	}
	return out
}

// TotalVariance は各特徴量の母分散の総和（共分散行列のトレース）を返す
func TotalVariance(X mat.Matrix) float64 {
	var total float64
	for _, v := range FeatureVariances(X) {
		total += v
	}
	return total
}

// ReconstructionGain は 1 - SSE/SST を計算する。
// SST は X の特徴量平均まわりの二乗和。X に分散がない場合はエラー
func ReconstructionGain(X, Xhat mat.Matrix) (float64, error) {
	sse, err := SquaredError(X, Xhat)
	if err != nil {
		return 0, err
	}
	r, _ := X.Dims()
	sst := TotalVariance(X) * float64(r)
	if sst == 0 {
		return 0, errors.NewValueError("ReconstructionGain", "no variance in X")
	}
	return 1 - sse/sst, nil
}

// ExplainedVarianceScore は分散で重み付けした説明分散スコアを計算する
//
// score = 1 - Σ_j Var(X_j - X̂_j) / Σ_j Var(X_j)
func ExplainedVarianceScore(X, Xhat mat.Matrix) (float64, error) {
	r, c, err := checkPair("ExplainedVarianceScore", X, Xhat)
	if err != nil {
		return 0, err
	}
	totalVar := TotalVariance(X)
	if totalVar == 0 {
		return 0, errors.NewValueError("ExplainedVarianceScore", "no variance in X")
	}

	residual := make([]float64, r)
	var residualVar float64
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			residual[i] = X.At(i, j) - Xhat.At(i, j)
		}
		_, v := stat.PopMeanVariance(residual, nil)
		residualVar += v
	}
	return 1 - residualVar/totalVar, nil
}
