package stacking

import (
	"gonum.org/v1/gonum/mat"

	"github.com/agricure/oofstack/pkg/errors"
)

// OOFMatrix holds the out-of-fold probabilities of one target:
// n rows × len(Families)*NumClass columns, family f in columns
// [f*NumClass, (f+1)*NumClass).
//
// Every (row, family) block remembers which fold's instance wrote it so the
// no-leakage property can be checked before meta training.
type OOFMatrix struct {
	Target   string
	Families []string
	NumClass int
	Data     *mat.Dense

	source []int // row*F+f -> fold of the writer, -1 when unwritten
	writes []int
}

func newOOFMatrix(target string, families []string, rows, numClass int) *OOFMatrix {
	cells := rows * len(families)
	source := make([]int, cells)
	for i := range source {
		source[i] = -1
	}
	return &OOFMatrix{
		Target:   target,
		Families: families,
		NumClass: numClass,
		Data:     mat.NewDense(rows, len(families)*numClass, nil),
		source:   source,
		writes:   make([]int, cells),
	}
}

// Rows returns the number of training rows.
func (o *OOFMatrix) Rows() int {
	r, _ := o.Data.Dims()
	return r
}

// Width is the meta-learner input width.
func (o *OOFMatrix) Width() int { return len(o.Families) * o.NumClass }

// write stores proba (len(rows) × NumClass) for family f, produced by the
// instance that excluded fold.
//
// Units of one target touch disjoint (row, family) cells, so concurrent
// writes from different units do not overlap.
func (o *OOFMatrix) write(f, fold int, rows []int, proba mat.Matrix) error {
	r, c := proba.Dims()
	if r != len(rows) || c != o.NumClass {
		return errors.NewFamilyMismatchError(o.Target, "OOF block shape for family "+o.Families[f], len(rows)*o.NumClass, r*c)
	}
	F := len(o.Families)
	for i, row := range rows {
		dst := o.Data.RawRowView(row)[f*o.NumClass : (f+1)*o.NumClass]
		for j := range dst {
			dst[j] = proba.At(i, j)
		}
		o.source[row*F+f] = fold
		o.writes[row*F+f]++
	}
	return nil
}

// SourceFold returns the fold of the instance that wrote (row, family f),
// or -1.
func (o *OOFMatrix) SourceFold(row, f int) int { return o.source[row*len(o.Families)+f] }

// verify checks that every (row, family) block was written exactly once,
// by the instance whose excluded fold holds the row.
func (o *OOFMatrix) verify(p *FoldPartition) error {
	if o.Rows() != p.Len() {
		return errors.NewIncompleteOOFCoverageError(o.Target, "", o.Rows(), "row count differs from partition")
	}
	F := len(o.Families)
	for row := 0; row < o.Rows(); row++ {
		for f, fam := range o.Families {
			cell := row*F + f
			switch {
			case o.writes[cell] == 0:
				return errors.NewIncompleteOOFCoverageError(o.Target, fam, row, "never written")
			case o.writes[cell] > 1:
				return errors.NewIncompleteOOFCoverageError(o.Target, fam, row, "written more than once")
			case o.source[cell] != p.Fold(row):
				return errors.NewIncompleteOOFCoverageError(o.Target, fam, row, "written by an instance trained on the row")
			}
		}
	}
	return nil
}

// Block returns a view of the probabilities of family f.
func (o *OOFMatrix) Block(f int) mat.Matrix {
	return o.Data.Slice(0, o.Rows(), f*o.NumClass, (f+1)*o.NumClass)
}
