package tree

// ObliviousTree is a symmetric tree: every node on level d tests the same
// (Features[d], Thresholds[d]) pair. Leaves is indexed by the bit pattern of
// the level tests, bit d set when row[Features[d]] > Thresholds[d].
type ObliviousTree struct {
	Features   []int     `msgpack:"f"`
	Thresholds []float64 `msgpack:"t"`
	Gains      []float64 `msgpack:"g"`
	Leaves     []float64 `msgpack:"v"`
}

// Depth returns the number of levels.
func (t *ObliviousTree) Depth() int { return len(t.Features) }

// LeafIndex returns the leaf reached by row.
func (t *ObliviousTree) LeafIndex(row []float64) int {
	idx := 0
	for d, f := range t.Features {
		if row[f] > t.Thresholds[d] {
			idx |= 1 << d
		}
	}
	return idx
}

// Predict returns the leaf value reached by row.
func (t *ObliviousTree) Predict(row []float64) float64 {
	return t.Leaves[t.LeafIndex(row)]
}

// Shrink multiplies every leaf value by rate.
func (t *ObliviousTree) Shrink(rate float64) {
	for i := range t.Leaves {
		t.Leaves[i] *= rate
	}
}

// Valid reports whether the level arrays are consistent.
func (t *ObliviousTree) Valid(nFeatures int) bool {
	if t == nil {
		return false
	}
	d := len(t.Features)
	if len(t.Thresholds) != d || len(t.Gains) != d || len(t.Leaves) != 1<<d {
		return false
	}
	for _, f := range t.Features {
		if f < 0 || f >= nFeatures {
			return false
		}
	}
	return true
}

// SumGain accumulates level gains per feature.
func (t *ObliviousTree) SumGain(dst []float64) {
	for d, f := range t.Features {
		dst[f] += t.Gains[d]
	}
}
