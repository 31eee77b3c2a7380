package lightgbm

import (
	"github.com/agricure/oofstack/sklearn/boosting"
	"github.com/agricure/oofstack/sklearn/tree"
)

type leafState struct {
	node  int
	depth int
	rows  []int
	hist  boosting.Histogram
	split boosting.Split
}

// leafWiseGrower returns a Grower that always splits the leaf with the
// largest gain next.
func leafWiseGrower(numLeaves, maxDepth int, params boosting.SplitParams) boosting.Grower[*tree.RegressionTree] {
	return func(ds *boosting.Dataset, rows, features []int, grad, hess []float64) *tree.RegressionTree {
		t := &tree.RegressionTree{}

		root := &leafState{rows: rows, hist: ds.NewHistogram(features)}
		ds.Build(root.hist, rows, features, grad, hess)
		g, h, _ := root.hist.Totals(features)
		root.node = t.AddLeaf(params.LeafValue(g, h))

		canSplit := func(l *leafState) {
			l.split = boosting.Split{Feature: -1}
			if maxDepth > 0 && l.depth >= maxDepth {
				return
			}
			l.split = boosting.BestSplit(l.hist, features, params)
		}
		canSplit(root)

		leaves := []*leafState{root}
		for len(leaves) < numLeaves {
			best := -1
			for i, l := range leaves {
				if l.split.Valid() && (best < 0 || l.split.Gain > leaves[best].split.Gain) {
					best = i
				}
			}
			if best < 0 {
				break
			}

			parent := leaves[best]
			s := parent.split
			leftRows, rightRows := ds.Partition(parent.rows, s.Feature, s.Bin)
			ln, rn := t.Split(parent.node, s.Feature, ds.Threshold(s.Feature, s.Bin), s.Gain,
				params.LeafValue(s.LeftGrad, s.LeftHess),
				params.LeafValue(s.RightGrad, s.RightHess))

			left := &leafState{node: ln, depth: parent.depth + 1, rows: leftRows}
			right := &leafState{node: rn, depth: parent.depth + 1, rows: rightRows}

			// 小さい方だけ集計し, もう一方は親との差分で求める
			small, large := left, right
			if len(rightRows) < len(leftRows) {
				small, large = right, left
			}
			small.hist = ds.NewHistogram(features)
			ds.Build(small.hist, small.rows, features, grad, hess)
			large.hist = parent.hist
			boosting.Subtract(large.hist, parent.hist, small.hist, features)

			canSplit(left)
			canSplit(right)

			leaves[best] = left
			leaves = append(leaves, right)
		}
		return t
	}
}
