// Package model defines the contracts every learner in the module satisfies,
// plus shared fitted-state bookkeeping and the kind registry used to persist
// learners inside an ensemble.
package model

import (
	"gonum.org/v1/gonum/mat"
)

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる.
	// y は n×1 の行列で、各要素はクラス番号 0..C-1 を float64 で保持する.
	Fit(X, y mat.Matrix) error
}

// ProbabilisticPredictor はクラス確率を返すモデルのインターフェース
type ProbabilisticPredictor interface {
	// PredictProba は n×C の確率行列を返す. 列はクラス番号の順.
	PredictProba(X mat.Matrix) (mat.Matrix, error)
}

// Classifier is a multiclass learner usable as a base model or a meta-learner.
//
// The number of classes is fixed at construction. PredictProba always returns
// NumClasses() columns even when some classes were absent from the rows seen
// by Fit; absent classes get probability zero (or the smoothing floor of the
// learner).
type Classifier interface {
	Fitter
	ProbabilisticPredictor

	// NumClasses returns the output width of PredictProba.
	NumClasses() int

	// NumFeatures returns the input width seen during Fit.
	NumFeatures() int

	// Kind returns the registry name used to persist the learner.
	Kind() string
}

// Scorer is the interface for models that can compute a score.
type Scorer interface {
	// Score returns the mean accuracy on the given data.
	Score(X, y mat.Matrix) (float64, error)
}

// Restorer is implemented by learners that rebuild derived state after
// being decoded from a persisted payload.
type Restorer interface {
	Restore() error
}
