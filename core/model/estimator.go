package model

import "gonum.org/v1/gonum/mat"

// Estimator は全ての次元削減バリアントが満たす共通契約です。
//
// Config は構築時に固定され、Fit が成功するたびに TrainedState が丸ごと
// 置き換えられます。Fit が失敗した場合、以前の状態はそのまま残ります。
type Estimator interface {
	Transformer

	// Name はバリアントの表示名を返す
	Name() string

	// Config は構築時に与えられた設定を返す
	Config() Config

	// InverseTransform は潜在空間のデータを特徴空間に戻す。
	// 逆変換を持たないバリアントは UnsupportedOperation を返す
	InverseTransform(Z mat.Matrix) (mat.Matrix, error)

	// TrainedState は現在の学習結果のコピーを返す。未学習なら false
	TrainedState() (*TrainedState, bool)
}

// LinearEstimator は explained_variance_ratio が真の分散比である
// バリアントを表す
type LinearEstimator interface {
	Estimator

	// IsLinear は分散比が降順かつ合計 1 以下であることを保証する場合に true を返す
	IsLinear() bool
}

// IsLinear reports whether est guarantees true, ordered variance ratios.
func IsLinear(est Estimator) bool {
	l, ok := est.(LinearEstimator)
	return ok && l.IsLinear()
}
