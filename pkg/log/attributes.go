// Package log defines standard attribute keys for dimensionality-reduction operations.
//
// Using the same keys everywhere keeps fit/transform logs of different
// variants comparable. Keys follow a hierarchical naming convention
// (e.g. "model.name", "data.samples").

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the estimator type.
	// Examples: "PCA", "Autoencoder", "QuantumAutoencoder"
	ModelNameKey = "model.name"

	// VariantKey is the registry identifier the estimator was built from.
	// Examples: "pca", "denoising_autoencoder"
	VariantKey = "model.variant"

	// EstimatorIDKey provides a unique identifier for a specific estimator instance.
	EstimatorIDKey = "estimator.id"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "transform", "inverse_transform", "fit_transform"
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is performing the operation.
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of model lifecycle.
	PhaseKey = "ml.phase"
)

// Data Shape and Characteristics
const (
	// SamplesKey indicates the number of samples (rows) in the dataset.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features (columns) in the dataset.
	FeaturesKey = "data.features"

	// LatentDimKey is the target dimensionality of the latent space.
	LatentDimKey = "data.latent_dim"

	// ScaledKey reports whether feature scaling was applied.
	ScaledKey = "data.scaled"
)

// Performance and Training Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// LossKey records the training loss (reconstruction error or circuit cost).
	LossKey = "metrics.loss"

	// ExplainedVarianceKey records the summed explained variance ratio.
	ExplainedVarianceKey = "metrics.explained_variance"

	// IterationKey records the iteration count of iterative variants.
	IterationKey = "training.iteration"

	// RestartKey records how many re-initializations a fit needed.
	RestartKey = "training.restarts"

	// ConvergedKey records whether the convergence tolerance was met.
	ConvergedKey = "training.converged"
)

// Error and Warning Context
const (
	// ErrorCodeKey provides a structured error code for programmatic handling.
	ErrorCodeKey = "error.code"

	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"

	// SuggestionKey provides helpful suggestions for resolving issues.
	SuggestionKey = "error.suggestion"
)

// Hyperparameters and Configuration
const (
	// HyperParamsKey contains the variant parameters as a structured object.
	HyperParamsKey = "model.hyperparams"

	// LearningRateKey records the learning rate for gradient-based variants.
	LearningRateKey = "hyperparams.learning_rate"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Standard attribute values.
const (
	OperationFit              = "fit"
	OperationTransform        = "transform"
	OperationInverseTransform = "inverse_transform"
	OperationFitTransform     = "fit_transform"

	PhaseTraining  = "training"
	PhaseInference = "inference"

	ErrorNotFitted         = "NOT_FITTED"
	ErrorDimensionMismatch = "DIMENSION_MISMATCH"
	ErrorInvalidConfig     = "INVALID_CONFIG"
	ErrorUnsupported       = "UNSUPPORTED_OPERATION"
	ErrorNumericFailure    = "NUMERIC_FAILURE"
	ErrorUnknownVariant    = "UNKNOWN_VARIANT"
)
