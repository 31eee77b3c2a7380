package stacking

import (
	"math/rand/v2"
	"strconv"

	"github.com/agricure/oofstack/pkg/errors"
)

// FoldPartition assigns every training row to exactly one of K folds.
// One partition is shared by every (target, family) pair of a run.
type FoldPartition struct {
	K               int    `msgpack:"k"`
	Seed            uint64 `msgpack:"seed"`
	ReferenceTarget string `msgpack:"reference_target"`
	Assignment      []int  `msgpack:"assignment"`
}

// Partition builds a stratified partition of labels. Rows are grouped by
// class in ascending class order, shuffled within the class, and dealt
// round-robin across folds; the dealer position carries over from one class
// to the next so fold sizes differ by at most one.
//
// classNames, when given, is used to name classes in the returned warnings.
func Partition(labels []int, k int, seed uint64, classNames ...string) (*FoldPartition, []*errors.FoldCoverageGapWarning, error) {
	if k < 2 {
		return nil, nil, errors.NewValidationError("k_folds", "must be at least 2", k)
	}
	if len(labels) < k {
		return nil, nil, errors.NewValidationError("k_folds", "more folds than samples", k)
	}

	numClass := 0
	for i, c := range labels {
		if c < 0 {
			return nil, nil, errors.NewValueError("Partition", "negative class index at row "+strconv.Itoa(i))
		}
		if c >= numClass {
			numClass = c + 1
		}
	}
	byClass := make([][]int, numClass)
	for i, c := range labels {
		byClass[c] = append(byClass[c], i)
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	assignment := make([]int, len(labels))
	var warnings []*errors.FoldCoverageGapWarning
	dealer := 0
	for c, rows := range byClass {
		if len(rows) == 0 {
			continue
		}
		rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
		for _, r := range rows {
			assignment[r] = dealer
			dealer = (dealer + 1) % k
		}
		if len(rows) < k {
			name := strconv.Itoa(c)
			if c < len(classNames) {
				name = classNames[c]
			}
			warnings = append(warnings, errors.NewFoldCoverageGapWarning("", name, len(rows), k))
		}
	}

	return &FoldPartition{K: k, Seed: seed, Assignment: assignment}, warnings, nil
}

// Len returns the number of partitioned rows.
func (p *FoldPartition) Len() int { return len(p.Assignment) }

// Fold returns the fold of row i.
func (p *FoldPartition) Fold(i int) int { return p.Assignment[i] }

// Rows returns the rows held out in fold k, ascending.
func (p *FoldPartition) Rows(k int) []int {
	var rows []int
	for i, f := range p.Assignment {
		if f == k {
			rows = append(rows, i)
		}
	}
	return rows
}

// TrainRows returns the rows outside fold k, ascending.
func (p *FoldPartition) TrainRows(k int) []int {
	rows := make([]int, 0, len(p.Assignment))
	for i, f := range p.Assignment {
		if f != k {
			rows = append(rows, i)
		}
	}
	return rows
}

// Sizes returns the number of rows per fold.
func (p *FoldPartition) Sizes() []int {
	sizes := make([]int, p.K)
	for _, f := range p.Assignment {
		sizes[f]++
	}
	return sizes
}

// Validate checks that every row has a fold in [0, K).
func (p *FoldPartition) Validate() error {
	if p == nil {
		return errors.NewValidationError("partition", "missing", nil)
	}
	if p.K < 2 {
		return errors.NewValidationError("partition.k", "must be at least 2", p.K)
	}
	for i, f := range p.Assignment {
		if f < 0 || f >= p.K {
			return errors.NewValidationError("partition.assignment", "fold out of range at row "+strconv.Itoa(i), f)
		}
	}
	return nil
}
