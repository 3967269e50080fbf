package model

import "gonum.org/v1/gonum/mat"

// Transformer は行列を学習し、同じ行数の行列へ写像する。
// 推定器では特徴空間 [n, d] から潜在空間 [n, k] への符号化、
// preprocessing では中心化とスケーリングにあたる
type Transformer interface {
	// Fit は写像に必要な統計量を X から学習する
	Fit(X mat.Matrix) error

	// Transform は学習済みの写像を X の各行に適用する
	Transform(X mat.Matrix) (mat.Matrix, error)

	// FitTransform は X で学習し、同じ X を写像する
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}

// InverseTransformer は Transform の写像を戻せる Transformer。
// 次元を落とす推定器ではなく、StandardScaler のような全単射の前処理が実装する
type InverseTransformer interface {
	Transformer

	// InverseTransform は Transform の出力を元の空間に戻す
	InverseTransform(X mat.Matrix) (mat.Matrix, error)
}
