package stacking

import (
	"io"
	"sync/atomic"

	"github.com/agricure/oofstack/pkg/errors"
)

// Holder serves one ensemble at a time and lets a new one replace it
// without blocking readers.
type Holder struct {
	current atomic.Pointer[Ensemble]
}

// NewHolder returns a Holder serving ens (which may be nil).
func NewHolder(ens *Ensemble) *Holder {
	h := &Holder{}
	if ens != nil {
		h.current.Store(ens)
	}
	return h
}

// Current returns the served ensemble or nil.
func (h *Holder) Current() *Ensemble { return h.current.Load() }

// Swap replaces the served ensemble and returns the previous one.
func (h *Holder) Swap(ens *Ensemble) *Ensemble { return h.current.Swap(ens) }

// Load reads an ensemble from r and swaps it in. On error the served
// ensemble is unchanged.
func (h *Holder) Load(r io.Reader) error {
	ens, err := Load(r)
	if err != nil {
		return err
	}
	h.Swap(ens)
	return nil
}

// Predict predicts with the ensemble served at call time.
func (h *Holder) Predict(row FeatureRow) (map[string]string, error) {
	ens := h.current.Load()
	if ens == nil {
		return nil, errors.NewNotFittedError("Holder", "Predict")
	}
	return ens.Predict(row)
}
