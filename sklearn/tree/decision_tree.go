// Package tree implements CART decision trees: a multiclass classification
// tree (the building block of the random forest family) and the regression
// tree shared by the gradient-boosted families.
package tree

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/agricure/oofstack/core/model"
	"github.com/agricure/oofstack/pkg/errors"
)

// KindDecisionTree is the registry name of DecisionTreeClassifier.
const KindDecisionTree = "decision_tree"

func init() {
	model.Register(KindDecisionTree, func() model.Classifier { return NewDecisionTreeClassifier() })
}

// ClassNode is one node of a classification tree. Feature is -1 for leaves.
type ClassNode struct {
	Feature   int       `msgpack:"f"`
	Threshold float64   `msgpack:"t"`
	Left      int       `msgpack:"l"`
	Right     int       `msgpack:"r"`
	Value     []float64 `msgpack:"v"` // normalized (weighted) class distribution
}

// DecisionTreeClassifier is a CART classifier with gini or entropy impurity.
type DecisionTreeClassifier struct {
	state *model.StateManager

	Criterion       string  `msgpack:"criterion"`
	MaxDepth        int     `msgpack:"max_depth"` // 0 = unlimited
	MinSamplesSplit int     `msgpack:"min_samples_split"`
	MinSamplesLeaf  int     `msgpack:"min_samples_leaf"`
	MaxFeatures     int     `msgpack:"max_features"` // 0 = all features
	ClassWeight     string  `msgpack:"class_weight"` // "" or "balanced"
	RandomState     uint64  `msgpack:"random_state"`
	MinImpurityGain float64 `msgpack:"min_impurity_gain"`

	NClasses    int         `msgpack:"n_classes"`
	NFeatures   int         `msgpack:"n_features"`
	Nodes       []ClassNode `msgpack:"nodes"`
	Importances []float64   `msgpack:"importances"`
	Depth       int         `msgpack:"depth"`
}

// Option configures a DecisionTreeClassifier.
type Option func(*DecisionTreeClassifier)

// WithCriterion sets the impurity: "gini" (default) or "entropy".
func WithCriterion(criterion string) Option {
	return func(dt *DecisionTreeClassifier) { dt.Criterion = criterion }
}

// WithMaxDepth sets the maximum depth; 0 means unlimited.
func WithMaxDepth(depth int) Option {
	return func(dt *DecisionTreeClassifier) { dt.MaxDepth = depth }
}

// WithMinSamplesSplit sets the minimum number of samples needed to split a node.
func WithMinSamplesSplit(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.MinSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum number of samples in each leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.MinSamplesLeaf = n }
}

// WithMaxFeatures sets the number of features drawn at each split; 0 means all.
func WithMaxFeatures(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.MaxFeatures = n }
}

// WithClassWeight sets "balanced" class weighting.
func WithClassWeight(mode string) Option {
	return func(dt *DecisionTreeClassifier) { dt.ClassWeight = mode }
}

// WithRandomState seeds the feature sampler.
func WithRandomState(seed uint64) Option {
	return func(dt *DecisionTreeClassifier) { dt.RandomState = seed }
}

// WithNumClass fixes the output width of PredictProba.
func WithNumClass(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.NClasses = n }
}

// NewDecisionTreeClassifier creates a tree with sklearn-like defaults.
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	dt := &DecisionTreeClassifier{
		state:           model.NewStateManager(),
		Criterion:       "gini",
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

// Fit trains the tree on X and class labels y.
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	return dt.FitWeighted(X, y, nil)
}

// FitWeighted trains the tree with per-sample weights (nil = unit weights).
func (dt *DecisionTreeClassifier) FitWeighted(X, y mat.Matrix, sampleWeight []float64) error {
	if err := model.CheckFitInput("DecisionTreeClassifier.Fit", X, y); err != nil {
		return err
	}
	labels, nClass, err := model.Labels("DecisionTreeClassifier.Fit", y, dt.NClasses)
	if err != nil {
		return err
	}
	dt.NClasses = nClass
	data, _, cols := model.RowMajor(X)
	if sampleWeight != nil && len(sampleWeight) != len(labels) {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", len(labels), len(sampleWeight), 0)
	}
	if dt.ClassWeight == "balanced" {
		sampleWeight = applyClassWeights(BalancedClassWeights(labels, nClass), labels, sampleWeight)
	}
	return dt.FitRowMajor(data, cols, labels, sampleWeight)
}

// FitRowMajor trains on a row-major feature slice. Rows with zero weight are
// ignored, which lets a forest express a bootstrap sample as weights.
func (dt *DecisionTreeClassifier) FitRowMajor(data []float64, nFeatures int, y []int, weights []float64) error {
	if nFeatures == 0 || len(y) == 0 {
		return errors.NewModelError("DecisionTreeClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	if dt.NClasses <= 0 {
		for _, c := range y {
			if c+1 > dt.NClasses {
				dt.NClasses = c + 1
			}
		}
	}
	if dt.state == nil {
		dt.state = model.NewStateManager()
	}

	b := &treeBuilder{
		dt:      dt,
		data:    data,
		nf:      nFeatures,
		y:       y,
		w:       weights,
		rng:     rand.New(rand.NewPCG(dt.RandomState, dt.RandomState^0x9e3779b97f4a7c15)),
		imp:     make([]float64, nFeatures),
		entropy: dt.Criterion == "entropy",
	}
	indices := make([]int, 0, len(y))
	for i := range y {
		if weights == nil || weights[i] > 0 {
			indices = append(indices, i)
		}
	}
	if len(indices) == 0 {
		return errors.NewModelError("DecisionTreeClassifier.Fit", "all sample weights are zero", errors.ErrEmptyData)
	}

	dt.Nodes = dt.Nodes[:0]
	dt.Depth = 0
	b.build(indices, 0)

	total := 0.0
	for _, v := range b.imp {
		total += v
	}
	if total > 0 {
		for i := range b.imp {
			b.imp[i] /= total
		}
	}
	dt.Importances = b.imp
	dt.NFeatures = nFeatures
	dt.state.SetDimensions(nFeatures, len(indices))
	dt.state.SetFitted()
	return nil
}

// BalancedClassWeights returns n / (present_classes * count_c) per class;
// absent classes get weight 0.
func BalancedClassWeights(y []int, nClass int) []float64 {
	counts := make([]float64, nClass)
	for _, c := range y {
		counts[c]++
	}
	present := 0
	for _, c := range counts {
		if c > 0 {
			present++
		}
	}
	weights := make([]float64, nClass)
	for c, n := range counts {
		if n > 0 {
			weights[c] = float64(len(y)) / (float64(present) * n)
		}
	}
	return weights
}

func applyClassWeights(classWeights []float64, y []int, sampleWeight []float64) []float64 {
	out := make([]float64, len(y))
	for i, c := range y {
		w := 1.0
		if sampleWeight != nil {
			w = sampleWeight[i]
		}
		out[i] = w * classWeights[c]
	}
	return out
}

type treeBuilder struct {
	dt      *DecisionTreeClassifier
	data    []float64
	nf      int
	y       []int
	w       []float64
	rng     *rand.Rand
	imp     []float64
	entropy bool
}

func (b *treeBuilder) weight(i int) float64 {
	if b.w == nil {
		return 1
	}
	return b.w[i]
}

func (b *treeBuilder) impurity(counts []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	imp := 0.0
	if b.entropy {
		for _, c := range counts {
			if c > 0 {
				p := c / total
				imp -= p * math.Log2(p)
			}
		}
		return imp
	}
	imp = 1
	for _, c := range counts {
		p := c / total
		imp -= p * p
	}
	return imp
}

// build appends the subtree for indices to dt.Nodes and returns its index.
func (b *treeBuilder) build(indices []int, depth int) int {
	dt := b.dt
	nc := dt.NClasses
	counts := make([]float64, nc)
	total := 0.0
	for _, i := range indices {
		w := b.weight(i)
		counts[b.y[i]] += w
		total += w
	}
	if depth > dt.Depth {
		dt.Depth = depth
	}

	nodeIdx := len(dt.Nodes)
	dt.Nodes = append(dt.Nodes, ClassNode{Feature: -1, Left: -1, Right: -1, Value: normalize(counts, total)})

	parentImp := b.impurity(counts, total)
	if parentImp <= 0 ||
		(dt.MaxDepth > 0 && depth >= dt.MaxDepth) ||
		len(indices) < dt.MinSamplesSplit ||
		len(indices) < 2*dt.MinSamplesLeaf {
		return nodeIdx
	}

	feature, threshold, gain := b.bestSplit(indices, counts, total, parentImp)
	if feature < 0 || gain <= dt.MinImpurityGain {
		return nodeIdx
	}

	left := make([]int, 0, len(indices))
	right := make([]int, 0, len(indices))
	for _, i := range indices {
		if b.data[i*b.nf+feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	b.imp[feature] += gain * total

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	dt.Nodes[nodeIdx].Feature = feature
	dt.Nodes[nodeIdx].Threshold = threshold
	dt.Nodes[nodeIdx].Left = l
	dt.Nodes[nodeIdx].Right = r
	return nodeIdx
}

type valueIdx struct {
	value float64
	idx   int
}

func (b *treeBuilder) candidateFeatures() []int {
	features := make([]int, b.nf)
	for i := range features {
		features[i] = i
	}
	m := b.dt.MaxFeatures
	if m <= 0 || m >= b.nf {
		return features
	}
	// partial Fisher-Yates
	for i := 0; i < m; i++ {
		j := i + b.rng.IntN(b.nf-i)
		features[i], features[j] = features[j], features[i]
	}
	return features[:m]
}

// bestSplit returns the split with the largest impurity decrease per unit
// weight, or feature -1 when no split satisfies MinSamplesLeaf.
func (b *treeBuilder) bestSplit(indices []int, counts []float64, total, parentImp float64) (int, float64, float64) {
	nc := b.dt.NClasses
	minLeaf := b.dt.MinSamplesLeaf
	bestFeature, bestThreshold, bestGain := -1, 0.0, 0.0

	buf := make([]valueIdx, len(indices))
	left := make([]float64, nc)
	right := make([]float64, nc)

	for _, f := range b.candidateFeatures() {
		for k, i := range indices {
			buf[k] = valueIdx{value: b.data[i*b.nf+f], idx: i}
		}
		sort.Slice(buf, func(a, c int) bool { return buf[a].value < buf[c].value })
		if buf[0].value == buf[len(buf)-1].value {
			continue
		}

		for c := range left {
			left[c] = 0
			right[c] = counts[c]
		}
		wl := 0.0
		for k := 0; k < len(buf)-1; k++ {
			i := buf[k].idx
			w := b.weight(i)
			left[b.y[i]] += w
			right[b.y[i]] -= w
			wl += w

			if buf[k].value == buf[k+1].value {
				continue
			}
			nl := k + 1
			if nl < minLeaf || len(buf)-nl < minLeaf {
				continue
			}
			wr := total - wl
			child := (wl*b.impurity(left, wl) + wr*b.impurity(right, wr)) / total
			gain := parentImp - child
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = (buf[k].value + buf[k+1].value) / 2
			}
		}
	}
	return bestFeature, bestThreshold, bestGain
}

func normalize(counts []float64, total float64) []float64 {
	out := make([]float64, len(counts))
	if total <= 0 {
		for i := range out {
			out[i] = 1 / float64(len(out))
		}
		return out
	}
	for i, c := range counts {
		out[i] = c / total
	}
	return out
}

// ProbaRow returns the leaf distribution for one row. The slice is shared
// with the tree and must not be modified.
func (dt *DecisionTreeClassifier) ProbaRow(row []float64) []float64 {
	n := 0
	for {
		node := &dt.Nodes[n]
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

// PredictProba returns class probabilities (n × NumClasses).
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.state.RequireFitted("DecisionTreeClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	data, rows, cols := model.RowMajor(X)
	if cols != dt.NFeatures {
		return nil, errors.NewDimensionError("DecisionTreeClassifier.PredictProba", dt.NFeatures, cols, 1)
	}
	out := mat.NewDense(rows, dt.NClasses, nil)
	for i := 0; i < rows; i++ {
		out.SetRow(i, dt.ProbaRow(data[i*cols:(i+1)*cols]))
	}
	return out, nil
}

// Predict returns the most probable class per row (n × 1).
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := dt.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return model.PredictFromProba(proba), nil
}

// Score returns the mean accuracy on (X, y).
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) (float64, error) {
	return model.ScoreAccuracy(dt, X, y)
}

// GetDepth returns the depth of the fitted tree.
func (dt *DecisionTreeClassifier) GetDepth() int { return dt.Depth }

// GetFeatureImportances returns normalized impurity-decrease importances.
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 { return dt.Importances }

func (dt *DecisionTreeClassifier) NumClasses() int  { return dt.NClasses }
func (dt *DecisionTreeClassifier) NumFeatures() int { return dt.NFeatures }
func (dt *DecisionTreeClassifier) Kind() string     { return KindDecisionTree }

// Restore implements model.Restorer.
func (dt *DecisionTreeClassifier) Restore() error {
	if dt.state == nil {
		dt.state = model.NewStateManager()
	}
	if len(dt.Nodes) == 0 {
		return errors.NewValidationError("nodes", "decoded tree has no nodes", 0)
	}
	for i, n := range dt.Nodes {
		if n.Feature >= dt.NFeatures || (n.Feature >= 0 && (n.Left <= i || n.Right <= i || n.Right >= len(dt.Nodes))) {
			return errors.NewValidationError("nodes", "decoded tree is malformed", i)
		}
		if n.Feature < 0 && len(n.Value) != dt.NClasses {
			return errors.NewValidationError("nodes", "leaf width does not match class count", i)
		}
	}
	dt.state.SetDimensions(dt.NFeatures, 0)
	dt.state.SetFitted()
	return nil
}
