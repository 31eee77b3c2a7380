package stacking

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"github.com/agricure/oofstack/core/model"
	"github.com/agricure/oofstack/core/parallel"
	"github.com/agricure/oofstack/metrics"
	"github.com/agricure/oofstack/pkg/errors"
	"github.com/agricure/oofstack/pkg/log"
)

// TargetDiagnostics summarizes one target after training.
type TargetDiagnostics struct {
	Target     string
	NumClasses int
	MetaWidth  int
	// FamilyOOFAccuracy is the accuracy of the arg-max of each family's
	// OOF block, keyed by family.
	FamilyOOFAccuracy map[string]float64
	// MetaTrainAccuracy is the meta-learner's accuracy on its own OOF
	// training matrix.
	MetaTrainAccuracy float64
}

// trainMetaLearners fits one meta-learner per target on its OOF matrix only.
// Targets are trained concurrently after every base unit has finished.
func trainMetaLearners(ctx context.Context, oofs []*OOFMatrix, labels [][]int, meta MetaSpec, seed uint64, workers int, logger log.Logger) ([]model.Classifier, []TargetDiagnostics, error) {
	learners := make([]model.Classifier, len(oofs))
	diags := make([]TargetDiagnostics, len(oofs))

	err := parallel.ForEach(ctx, len(oofs), workers, func(_ context.Context, t int) error {
		oof := oofs[t]
		y := labelMatrix(labels[t])
		m := meta.Build(oof.NumClass, seed+uint64(t))
		if err := errors.SafeExecute("meta "+oof.Target, func() error {
			return m.Fit(oof.Data, y)
		}); err != nil {
			return errors.Wrapf(err, "meta-learner for %s", oof.Target)
		}

		d := TargetDiagnostics{
			Target:            oof.Target,
			NumClasses:        oof.NumClass,
			MetaWidth:         oof.Width(),
			FamilyOOFAccuracy: make(map[string]float64, len(oof.Families)),
		}
		for f, fam := range oof.Families {
			pred := argmaxRows(oof.Block(f))
			d.FamilyOOFAccuracy[fam] = metrics.AccuracyInts(labels[t], pred)
		}
		proba, err := m.PredictProba(oof.Data)
		if err != nil {
			return errors.Wrapf(err, "meta-learner for %s", oof.Target)
		}
		d.MetaTrainAccuracy = metrics.AccuracyInts(labels[t], argmaxRows(proba))

		logger.Info("Meta-learner trained",
			log.PhaseKey, log.PhaseMeta,
			log.TargetKey, oof.Target,
			log.ClassesKey, oof.NumClass,
			log.FeaturesKey, oof.Width(),
			log.AccuracyKey, d.MetaTrainAccuracy,
		)
		learners[t] = m
		diags[t] = d
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return learners, diags, nil
}

func labelMatrix(labels []int) *mat.Dense {
	y := mat.NewDense(len(labels), 1, nil)
	for i, c := range labels {
		y.Set(i, 0, float64(c))
	}
	return y
}

func subsetLabels(labels []int, rows []int) *mat.Dense {
	y := mat.NewDense(len(rows), 1, nil)
	for i, r := range rows {
		y.Set(i, 0, float64(labels[r]))
	}
	return y
}

// argmaxRows returns the arg-max of each row; ties go to the lowest column.
func argmaxRows(m mat.Matrix) []int {
	r, c := m.Dims()
	out := make([]int, r)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, m)
		out[i] = model.ArgMax(row)
	}
	return out
}
