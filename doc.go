// Package latent provides dimensionality-reduction estimators for Go with a
// single interchangeable API.
//
// Every variant fits on an n×d matrix, encodes samples into a k-dimensional
// latent space and, where the variant allows it, decodes them back. The
// result of a fit is a TrainedState value (components, per-component
// explained variance ratio, feature mean and optional scale) that can be
// validated, cloned, persisted and reloaded.
//
// # Installation
//
//	go get github.com/YuminosukeSato/latent
//
// # Quick Start
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//
//	    "github.com/YuminosukeSato/latent/registry"
//	    "gonum.org/v1/gonum/mat"
//	)
//
//	func main() {
//	    X := mat.NewDense(4, 2, []float64{1, 2, 2, 4, 3, 6, 4, 8})
//
//	    est, err := registry.New().Build("pca", map[string]any{"latent_dim": 1})
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    Z, err := est.FitTransform(X)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    state, _ := est.TrainedState()
//	    fmt.Println(mat.Formatted(Z), state.ExplainedVarianceRatio)
//	}
//
// # Variants
//
//   - pca: eigendecomposition of the sample covariance, optional whitening
//   - autoencoder: single hidden layer trained by momentum gradient descent
//   - denoising_autoencoder: autoencoder trained on Gaussian-corrupted input
//   - quantum_autoencoder: brick-layout Givens-rotation circuit trained with
//     the parameter-shift rule
//   - quantum_denoising_autoencoder: the circuit trained on corrupted input
//   - random_projection: seeded Gaussian projection without an inverse
//
// # Packages
//
//   - core/model: Estimator interfaces, Config, TrainedState and persistence
//   - core/parallel: parallel row processing utilities
//   - decomposition: the estimator implementations
//   - registry: variant lookup by identifier and YAML estimator lists
//   - instrument: Prometheus metrics around any Estimator
//   - store: TrainedState storage on disk or in PostgreSQL
//   - report: scree plots of explained variance ratios
//   - metrics: reconstruction quality measures
//   - preprocessing: feature centring and scaling
//   - pkg/errors, pkg/log: typed errors and structured logging
//
// # Concurrency
//
// Estimators are safe for concurrent use. Readers always observe either the
// previous or the new TrainedState, and a failed Fit leaves the previous
// state in place.
package latent
