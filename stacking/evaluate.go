package stacking

import (
	"gonum.org/v1/gonum/mat"

	"github.com/agricure/oofstack/metrics"
	"github.com/agricure/oofstack/pkg/errors"
)

// Accuracy bands used by TargetEval.Category.
const (
	CategoryExcellent        = "excellent"
	CategoryGood             = "good"
	CategoryFair             = "fair"
	CategoryNeedsImprovement = "needs improvement"
)

// TargetEval holds the test metrics of one target.
type TargetEval struct {
	Target            string
	Classes           []string
	Samples           int
	Accuracy          float64
	WeightedPrecision float64
	WeightedRecall    float64
	WeightedF1        float64
	MacroF1           float64
	PerClass          []metrics.ClassScores
	Confusion         *mat.Dense
}

// Category maps accuracy to a band: >= 0.90 excellent, >= 0.80 good,
// >= 0.70 fair.
func (t TargetEval) Category() string {
	switch {
	case t.Accuracy >= 0.90:
		return CategoryExcellent
	case t.Accuracy >= 0.80:
		return CategoryGood
	case t.Accuracy >= 0.70:
		return CategoryFair
	}
	return CategoryNeedsImprovement
}

// EvalReport is the result of Evaluate.
type EvalReport struct {
	Targets []TargetEval
	// OverallAccuracy is the mean accuracy over targets with Samples > 0.
	OverallAccuracy float64
	Rows            int
	// SkippedRows counts rows whose features could not be encoded.
	SkippedRows int
}

// Evaluate predicts ds with ens and scores every target. Rows with a
// category unknown to the ensemble are skipped (strict policy only); any
// other encoding error fails the evaluation. Per target, rows whose true
// label was never seen in training are left out, and OverallAccuracy
// averages only the targets with at least one scored row.
func Evaluate(ens *Ensemble, ds *Dataset) (*EvalReport, error) {
	if ds.Len() == 0 {
		return nil, errors.NewModelError("Evaluate", "no samples", errors.ErrEmptyData)
	}

	X := mat.NewDense(ds.Len(), len(ens.FeatureColumns), nil)
	// encoded rows are packed at the top of X
	var kept []int
	for i, s := range ds.Samples {
		if _, err := ens.Codecs.EncodeRow(X.RawRowView(len(kept)), ens.Schema, s.FeatureRow, ens.Policy); err != nil {
			if errors.IsUnknownCategory(err) {
				continue
			}
			return nil, errors.Wrapf(err, "row %d", i)
		}
		kept = append(kept, i)
	}
	rep := &EvalReport{Rows: ds.Len(), SkippedRows: ds.Len() - len(kept)}
	if len(kept) == 0 {
		return nil, errors.NewModelError("Evaluate", "no row could be encoded", errors.ErrEmptyData)
	}
	X = X.Slice(0, len(kept), 0, len(ens.FeatureColumns)).(*mat.Dense)

	codes, err := ens.predictEncoded(X)
	if err != nil {
		return nil, err
	}

	scored := 0
	for t, name := range ens.Targets {
		codec := ens.Codecs.Target(name)
		var yTrue, yPred []float64
		for i, r := range kept {
			c, err := codec.Encode(ds.Samples[r].Targets[name])
			if err != nil {
				continue
			}
			yTrue = append(yTrue, float64(c))
			yPred = append(yPred, float64(codes[t][i]))
		}
		te := TargetEval{Target: name, Classes: codec.Classes, Samples: len(yTrue)}
		if len(yTrue) > 0 {
			yt := mat.NewVecDense(len(yTrue), yTrue)
			yp := mat.NewVecDense(len(yPred), yPred)
			if te.Accuracy, err = metrics.Accuracy(yt, yp); err != nil {
				return nil, err
			}
			cr, err := metrics.PrecisionRecallFScore(yt, yp, codec.Len())
			if err != nil {
				return nil, err
			}
			te.WeightedPrecision = cr.Weighted.Precision
			te.WeightedRecall = cr.Weighted.Recall
			te.WeightedF1 = cr.Weighted.F1
			te.MacroF1 = cr.Macro.F1
			te.PerClass = cr.PerClass
			if te.Confusion, err = metrics.ConfusionMatrix(yt, yp, codec.Len()); err != nil {
				return nil, err
			}
		}
		rep.Targets = append(rep.Targets, te)
		if te.Samples > 0 {
			rep.OverallAccuracy += te.Accuracy
			scored++
		}
	}
	if scored > 0 {
		rep.OverallAccuracy /= float64(scored)
	}
	return rep, nil
}
