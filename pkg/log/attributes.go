// Package log defines standard attribute keys for the stacking pipeline.
//
// Keys follow a hierarchical naming convention ("model.name", "data.samples",
// "stack.target") so logs can be filtered per target, family and fold.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the type of model.
	// Examples: "RandomForestClassifier", "LGBMClassifier", "LabelEncoder"
	ModelNameKey = "model.name"

	// EstimatorIDKey provides a unique identifier for a specific ensemble or model instance.
	EstimatorIDKey = "estimator.id"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "save", "load"
	OperationKey = "ml.operation"

	// ComponentKey identifies which component is logging.
	// Examples: "stacking.trainer", "stacking.store", "registry"
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of the training run.
	// Examples: "partition", "base", "meta", "inference"
	PhaseKey = "ml.phase"
)

// Stacking Context
const (
	// TargetKey names the output column a model predicts.
	TargetKey = "stack.target"

	// FamilyKey names the base-model family.
	FamilyKey = "stack.family"

	// FoldKey is the excluded fold of a base-model instance.
	FoldKey = "stack.fold"

	// ClassesKey is the number of classes of a target.
	ClassesKey = "stack.classes"

	// UnitsKey is the number of (target, family, fold) training units.
	UnitsKey = "stack.units"
)

// Data Shape
const (
	// SamplesKey indicates the number of samples (rows).
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features (columns).
	FeaturesKey = "data.features"

	// TargetsKey indicates the number of target variables.
	TargetsKey = "data.targets"

	// DataSizeKey indicates a payload size in bytes.
	DataSizeKey = "data.size_bytes"
)

// Performance Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// AccuracyKey records accuracy in [0, 1].
	AccuracyKey = "metrics.accuracy"

	// LossKey records a loss value.
	LossKey = "metrics.loss"

	// IterationKey records the boosting round or solver iteration.
	IterationKey = "training.iteration"
)

// Error and Configuration Context
const (
	ErrorCodeKey  = "error.code"
	ErrorTypeKey  = "error.type"
	StacktraceKey = "error.stacktrace"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"

	// WorkerIDKey identifies a training worker.
	WorkerIDKey = "infra.worker_id"
)

// Standard attribute values.
const (
	OperationFit     = "fit"
	OperationPredict = "predict"
	OperationSave    = "save"
	OperationLoad    = "load"
	OperationScore   = "score"

	PhasePartition = "partition"
	PhaseBase      = "base"
	PhaseMeta      = "meta"
	PhaseInference = "inference"
	PhaseTesting   = "testing"

	ErrorUnknownCategory = "UNKNOWN_CATEGORY"
	ErrorFamilyMismatch  = "FAMILY_MISMATCH"
	ErrorOOFCoverage     = "INCOMPLETE_OOF_COVERAGE"
	ErrorNotFitted       = "NOT_FITTED"
	ErrorEmptyData       = "EMPTY_DATA"
)
