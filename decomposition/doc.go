// Package decomposition は共通のライフサイクル契約に従う次元削減エスティメータ群を提供します。
//
// 全てのバリアントは model.Estimator を実装し、Fit が成功するたびに
// model.TrainedState を丸ごと一度の原子的な差し替えで公開します。
// Fit が失敗した場合、以前の状態（または未学習状態）はそのまま残ります。
//
// バリアント:
//
//   - PCA: 共分散行列の固有値分解（線形、決定的）
//   - Autoencoder / DenoisingAutoencoder: 一層エンコーダと線形デコーダ
//   - QuantumAutoencoder / QuantumDenoisingAutoencoder: Givens 回転回路
//   - RandomProjection: ガウス乱数射影（逆変換なし）
//
// 中心化とスケーリングは preprocessing.StandardScaler で共通に行われ、
// TrainedState の Mean と Scale に記録されます。
package decomposition
