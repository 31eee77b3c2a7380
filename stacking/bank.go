package stacking

import (
	"gonum.org/v1/gonum/mat"

	"github.com/agricure/oofstack/core/model"
	"github.com/agricure/oofstack/pkg/errors"
)

// BaseModelInstance is one trained classifier keyed by target, family and
// the fold it did not see.
type BaseModelInstance struct {
	Target string
	Family string
	Fold   int
	Model  model.Classifier
}

// Bank is the arena of base model instances. Instance (t, f, k) lives at
// (t*F+f)*K+k, where t and f index the ensemble's target and family lists.
type Bank struct {
	targets  []string
	families []string
	k        int
	models   []model.Classifier
}

func newBank(targets, families []string, k int) *Bank {
	return &Bank{
		targets:  targets,
		families: families,
		k:        k,
		models:   make([]model.Classifier, len(targets)*len(families)*k),
	}
}

func (b *Bank) index(t, f, k int) int { return (t*len(b.families)+f)*b.k + k }

// unit decodes an arena index.
func (b *Bank) unit(i int) (t, f, k int) {
	k = i % b.k
	i /= b.k
	return i / len(b.families), i % len(b.families), k
}

// Len returns the number of instance slots.
func (b *Bank) Len() int { return len(b.models) }

// Get returns instance (t, f, k).
func (b *Bank) Get(t, f, k int) model.Classifier { return b.models[b.index(t, f, k)] }

func (b *Bank) set(t, f, k int, c model.Classifier) { b.models[b.index(t, f, k)] = c }

// Instances lists every instance in arena order.
func (b *Bank) Instances() []BaseModelInstance {
	out := make([]BaseModelInstance, 0, len(b.models))
	for i, m := range b.models {
		t, f, k := b.unit(i)
		out = append(out, BaseModelInstance{Target: b.targets[t], Family: b.families[f], Fold: k, Model: m})
	}
	return out
}

// FamilyProba averages the K fold instances of (t, f) over X.
func (b *Bank) FamilyProba(t, f int, X mat.Matrix) (*mat.Dense, error) {
	var sum *mat.Dense
	for k := 0; k < b.k; k++ {
		m := b.Get(t, f, k)
		if m == nil {
			return nil, errors.NewFamilyMismatchError(b.targets[t], "missing instance for family "+b.families[f], b.k, k)
		}
		p, err := m.PredictProba(X)
		if err != nil {
			return nil, errors.Wrapf(err, "%s/%s fold %d", b.targets[t], b.families[f], k)
		}
		if sum == nil {
			r, c := p.Dims()
			sum = mat.NewDense(r, c, nil)
		}
		sum.Add(sum, p)
	}
	sum.Scale(1/float64(b.k), sum)
	return sum, nil
}

// MetaFeatures concatenates the fold-averaged probabilities of every family
// of target t in family order. Each block is numClass wide.
func (b *Bank) MetaFeatures(t int, X mat.Matrix, numClass int) (*mat.Dense, error) {
	n, _ := X.Dims()
	out := mat.NewDense(n, len(b.families)*numClass, nil)
	for f := range b.families {
		p, err := b.FamilyProba(t, f, X)
		if err != nil {
			return nil, err
		}
		if _, c := p.Dims(); c != numClass {
			return nil, errors.NewFamilyMismatchError(b.targets[t], "family "+b.families[f]+" output width", numClass, c)
		}
		out.Slice(0, n, f*numClass, (f+1)*numClass).(*mat.Dense).Copy(p)
	}
	return out, nil
}
