package tree

// RegNode is one node of a regression tree grown on gradient statistics.
// Feature is -1 for leaves; Value holds the leaf output (already shrunk by
// the learning rate).
type RegNode struct {
	Feature   int     `msgpack:"f"`
	Threshold float64 `msgpack:"t"`
	Left      int     `msgpack:"l"`
	Right     int     `msgpack:"r"`
	Value     float64 `msgpack:"v"`
	Gain      float64 `msgpack:"g"`
}

// RegressionTree is a flat binary tree used by the boosted families.
// Node 0 is the root.
type RegressionTree struct {
	Nodes []RegNode `msgpack:"nodes"`
}

// AddLeaf appends a leaf and returns its index.
func (t *RegressionTree) AddLeaf(value float64) int {
	t.Nodes = append(t.Nodes, RegNode{Feature: -1, Left: -1, Right: -1, Value: value})
	return len(t.Nodes) - 1
}

// Split turns leaf n into an internal node with two new leaves and returns
// their indices.
func (t *RegressionTree) Split(n, feature int, threshold, gain, leftValue, rightValue float64) (int, int) {
	l := t.AddLeaf(leftValue)
	r := t.AddLeaf(rightValue)
	t.Nodes[n].Feature = feature
	t.Nodes[n].Threshold = threshold
	t.Nodes[n].Gain = gain
	t.Nodes[n].Left = l
	t.Nodes[n].Right = r
	return l, r
}

// Predict returns the leaf value reached by row.
func (t *RegressionTree) Predict(row []float64) float64 {
	n := 0
	for {
		node := &t.Nodes[n]
		if node.Feature < 0 {
			return node.Value
		}
		if row[node.Feature] <= node.Threshold {
			n = node.Left
		} else {
			n = node.Right
		}
	}
}

// Shrink multiplies every leaf value by rate.
func (t *RegressionTree) Shrink(rate float64) {
	for i := range t.Nodes {
		if t.Nodes[i].Feature < 0 {
			t.Nodes[i].Value *= rate
		}
	}
}

// NumLeaves counts the leaves of the tree.
func (t *RegressionTree) NumLeaves() int {
	leaves := 0
	for _, n := range t.Nodes {
		if n.Feature < 0 {
			leaves++
		}
	}
	return leaves
}

// Valid reports whether the node links form a tree over nFeatures inputs.
func (t *RegressionTree) Valid(nFeatures int) bool {
	if t == nil || len(t.Nodes) == 0 {
		return false
	}
	for i, n := range t.Nodes {
		if n.Feature < 0 {
			continue
		}
		if n.Feature >= nFeatures || n.Left <= i || n.Right <= i ||
			n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return false
		}
	}
	return true
}

// SumGain accumulates split gains per feature (used for importances).
func (t *RegressionTree) SumGain(dst []float64) {
	for _, n := range t.Nodes {
		if n.Feature >= 0 {
			dst[n.Feature] += n.Gain
		}
	}
}
