package stacking

import (
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/agricure/oofstack/core/model"
	"github.com/agricure/oofstack/pkg/errors"
)

// Ensemble is a trained, immutable stacking ensemble. All methods are
// read-only and safe for concurrent use.
type Ensemble struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	Schema         Schema
	FeatureColumns []string
	Targets        []string
	// Families is the ordered list of trained families; meta-feature blocks
	// follow this order.
	Families   []string
	Structures []string
	MetaName   string
	Codecs     *CodecSet
	Policy     UnknownPolicy
	Partition  *FoldPartition

	bank *Bank
	meta []model.Classifier

	classes   [][]string // per target, codec order
	metaWidth []int
}

func (e *Ensemble) index() {
	e.classes = make([][]string, len(e.Targets))
	e.metaWidth = make([]int, len(e.Targets))
	for t, name := range e.Targets {
		e.classes[t] = e.Codecs.Target(name).Classes
		e.metaWidth[t] = len(e.Families) * len(e.classes[t])
	}
}

// Classes returns the class labels of target in index order.
func (e *Ensemble) Classes(target string) []string {
	for t, name := range e.Targets {
		if name == target {
			return e.classes[t]
		}
	}
	return nil
}

// MetaWidth returns the meta-learner input width of target.
func (e *Ensemble) MetaWidth(target string) int {
	for t, name := range e.Targets {
		if name == target {
			return e.metaWidth[t]
		}
	}
	return 0
}

// K returns the number of folds.
func (e *Ensemble) K() int { return e.Partition.K }

// Instances lists every base model instance.
func (e *Ensemble) Instances() []BaseModelInstance { return e.bank.Instances() }

// Prediction is the detailed result of one row.
type Prediction struct {
	Labels map[string]string `json:"labels"`
	// Probabilities holds the meta-learner distribution per target, keyed
	// by class label.
	Probabilities map[string]map[string]float64 `json:"probabilities"`
	Substitutions []Substitution                `json:"substitutions,omitempty"`
}

// Predict returns one label per target, or an error; never a partial map.
func (e *Ensemble) Predict(row FeatureRow) (map[string]string, error) {
	p, err := e.PredictDetailed(row)
	if err != nil {
		return nil, err
	}
	return p.Labels, nil
}

// PredictDetailed is Predict plus meta probabilities and the lenient
// substitutions that were applied.
func (e *Ensemble) PredictDetailed(row FeatureRow) (*Prediction, error) {
	x := make([]float64, len(e.FeatureColumns))
	subs, err := e.Codecs.EncodeRow(x, e.Schema, row, e.Policy)
	if err != nil {
		return nil, err
	}
	X := mat.NewDense(1, len(x), x)

	pred := &Prediction{
		Labels:        make(map[string]string, len(e.Targets)),
		Probabilities: make(map[string]map[string]float64, len(e.Targets)),
		Substitutions: subs,
	}
	for t, name := range e.Targets {
		proba, err := e.metaProba(t, X)
		if err != nil {
			return nil, err
		}
		row := proba.RawRowView(0)
		label, err := e.Codecs.Target(name).Decode(model.ArgMax(row))
		if err != nil {
			return nil, err
		}
		pred.Labels[name] = label
		dist := make(map[string]float64, len(row))
		for c, p := range row {
			dist[e.classes[t][c]] = p
		}
		pred.Probabilities[name] = dist
	}
	return pred, nil
}

// PredictBatch predicts every row. The batch fails as a whole on the first
// row that cannot be encoded.
func (e *Ensemble) PredictBatch(rows []FeatureRow) ([]map[string]string, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	X := mat.NewDense(len(rows), len(e.FeatureColumns), nil)
	for i, r := range rows {
		if _, err := e.Codecs.EncodeRow(X.RawRowView(i), e.Schema, r, e.Policy); err != nil {
			return nil, errors.Wrapf(err, "row %d", i)
		}
	}
	codes, err := e.predictEncoded(X)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]string, len(rows))
	for i := range out {
		out[i] = make(map[string]string, len(e.Targets))
	}
	for t, name := range e.Targets {
		for i, c := range codes[t] {
			label, err := e.Codecs.Target(name).Decode(c)
			if err != nil {
				return nil, err
			}
			out[i][name] = label
		}
	}
	return out, nil
}

// predictEncoded returns class indices per target for encoded rows.
func (e *Ensemble) predictEncoded(X *mat.Dense) ([][]int, error) {
	out := make([][]int, len(e.Targets))
	for t := range e.Targets {
		proba, err := e.metaProba(t, X)
		if err != nil {
			return nil, err
		}
		out[t] = argmaxRows(proba)
	}
	return out, nil
}

func (e *Ensemble) metaProba(t int, X mat.Matrix) (*mat.Dense, error) {
	feats, err := e.bank.MetaFeatures(t, X, len(e.classes[t]))
	if err != nil {
		return nil, err
	}
	if _, w := feats.Dims(); w != e.metaWidth[t] {
		return nil, errors.NewFamilyMismatchError(e.Targets[t], "meta input width", e.metaWidth[t], w)
	}
	p, err := e.meta[t].PredictProba(feats)
	if err != nil {
		return nil, errors.Wrapf(err, "meta-learner for %s", e.Targets[t])
	}
	return mat.DenseCopyOf(p), nil
}
