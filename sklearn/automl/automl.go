// Package automl implements a small AutoML classifier: a fixed library of
// candidate learners is scored on an inner stratified holdout, a weighted
// ensemble is chosen by greedy forward selection with replacement
// (Caruana et al., 2004), and the selected candidates are refit on all rows.
package automl

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/agricure/oofstack/core/model"
	"github.com/agricure/oofstack/core/parallel"
	"github.com/agricure/oofstack/pkg/errors"
	"github.com/agricure/oofstack/pkg/log"
	"github.com/agricure/oofstack/sklearn/ensemble"
	"github.com/agricure/oofstack/sklearn/lightgbm"
	"github.com/agricure/oofstack/sklearn/linear_model"
	"github.com/agricure/oofstack/sklearn/tree"
)

// KindAutoML is the registry name of AutoMLClassifier.
const KindAutoML = "automl"

func init() {
	model.Register(KindAutoML, func() model.Classifier { return NewAutoMLClassifier() })
}

// Candidate builds one untrained learner of the library.
type Candidate struct {
	Name  string
	Build func(numClass int, seed uint64) model.Classifier
}

// DefaultCandidates is the candidate library used when none is configured.
func DefaultCandidates() []Candidate {
	return []Candidate{
		{Name: "logistic_regression", Build: func(numClass int, _ uint64) model.Classifier {
			return linear_model.NewLogisticRegression(linear_model.WithLRNumClass(numClass), linear_model.WithLRMaxIter(300))
		}},
		{Name: "decision_tree", Build: func(numClass int, seed uint64) model.Classifier {
			return tree.NewDecisionTreeClassifier(tree.WithMaxDepth(6), tree.WithMinSamplesLeaf(3),
				tree.WithNumClass(numClass), tree.WithRandomState(seed))
		}},
		{Name: "random_forest", Build: func(numClass int, seed uint64) model.Classifier {
			return ensemble.NewRandomForestClassifier(ensemble.WithNEstimators(50), ensemble.WithMaxDepth(10),
				ensemble.WithNumClass(numClass), ensemble.WithRandomState(seed))
		}},
		{Name: "lightgbm", Build: func(numClass int, seed uint64) model.Classifier {
			return lightgbm.NewLGBMClassifier().
				WithNumIterations(60).
				WithMaxDepth(4).
				WithNumLeaves(15).
				WithMinChildSamples(5).
				WithNumClass(numClass).
				WithRandomState(seed)
		}},
	}
}

// LeaderboardEntry records one candidate's holdout result.
type LeaderboardEntry struct {
	Name    string  `msgpack:"name"`
	LogLoss float64 `msgpack:"log_loss"`
	Weight  float64 `msgpack:"weight"`
}

// AutoMLClassifier is a weighted ensemble of library candidates.
type AutoMLClassifier struct {
	state *model.StateManager

	HoldoutFraction float64 `msgpack:"holdout_fraction"`
	SelectionRounds int     `msgpack:"selection_rounds"`
	RandomState     uint64  `msgpack:"random_state"`
	NClasses        int     `msgpack:"n_classes"`
	NFeatures       int     `msgpack:"n_features"`

	Members     []model.Envelope   `msgpack:"members"`
	Weights     []float64          `msgpack:"weights"`
	Leaderboard []LeaderboardEntry `msgpack:"leaderboard"`

	candidates []Candidate
	members    []model.Classifier
}

// Option configures an AutoMLClassifier.
type Option func(*AutoMLClassifier)

// WithHoldoutFraction sets the inner validation share.
func WithHoldoutFraction(f float64) Option {
	return func(a *AutoMLClassifier) { a.HoldoutFraction = f }
}

// WithSelectionRounds sets the number of greedy selection steps.
func WithSelectionRounds(n int) Option {
	return func(a *AutoMLClassifier) { a.SelectionRounds = n }
}

// WithRandomState seeds the holdout split and the candidates.
func WithRandomState(seed uint64) Option {
	return func(a *AutoMLClassifier) { a.RandomState = seed }
}

// WithNumClass fixes the number of output columns.
func WithNumClass(n int) Option {
	return func(a *AutoMLClassifier) { a.NClasses = n }
}

// WithCandidates replaces the candidate library.
func WithCandidates(c ...Candidate) Option {
	return func(a *AutoMLClassifier) { a.candidates = c }
}

// NewAutoMLClassifier creates a classifier over DefaultCandidates.
func NewAutoMLClassifier(opts ...Option) *AutoMLClassifier {
	a := &AutoMLClassifier{
		state:           model.NewStateManager(),
		HoldoutFraction: 0.2,
		SelectionRounds: 20,
		candidates:      DefaultCandidates(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// stratifiedHoldout moves about fraction of every class with at least two
// members to the holdout set.
func stratifiedHoldout(labels []int, nClass int, fraction float64, seed uint64) (train, holdout []int) {
	rng := rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d))
	byClass := make([][]int, nClass)
	for i, c := range labels {
		byClass[c] = append(byClass[c], i)
	}
	for _, rows := range byClass {
		rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
		nh := 0
		if len(rows) >= 2 {
			nh = int(math.Round(float64(len(rows)) * fraction))
			nh = max(1, min(nh, len(rows)-1))
		}
		holdout = append(holdout, rows[:nh]...)
		train = append(train, rows[nh:]...)
	}
	sort.Ints(train)
	sort.Ints(holdout)
	return train, holdout
}

func subset(data []float64, cols int, labels []int, rows []int) (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(len(rows), cols, nil)
	y := mat.NewDense(len(rows), 1, nil)
	for i, r := range rows {
		X.SetRow(i, data[r*cols:(r+1)*cols])
		y.Set(i, 0, float64(labels[r]))
	}
	return X, y
}

// holdoutLogLoss is the mean negative log-likelihood of proba (row-major).
func holdoutLogLoss(proba []float64, nClass int, labels []int) float64 {
	const eps = 1e-15
	total := 0.0
	for i, c := range labels {
		total -= math.Log(math.Max(proba[i*nClass+c], eps))
	}
	return total / float64(len(labels))
}

// Fit selects and trains the ensemble.
func (a *AutoMLClassifier) Fit(X, y mat.Matrix) error {
	if err := model.CheckFitInput("AutoMLClassifier.Fit", X, y); err != nil {
		return err
	}
	if len(a.candidates) == 0 {
		return errors.NewValidationError("candidates", "library is empty", 0)
	}
	if a.HoldoutFraction <= 0 || a.HoldoutFraction >= 1 {
		return errors.NewValidationError("holdout_fraction", "must be in (0, 1)", a.HoldoutFraction)
	}
	if a.SelectionRounds < 1 {
		return errors.NewValidationError("selection_rounds", "must be at least 1", a.SelectionRounds)
	}
	labels, nClass, err := model.Labels("AutoMLClassifier.Fit", y, a.NClasses)
	if err != nil {
		return err
	}
	data, n, nf := model.RowMajor(X)
	logger := log.GetLoggerWithName("automl")

	trainRows, holdRows := stratifiedHoldout(labels, nClass, a.HoldoutFraction, a.RandomState)
	if len(holdRows) == 0 {
		// 小さすぎて分けられない場合は学習データで評価する
		holdRows = trainRows
	}
	Xtr, ytr := subset(data, nf, labels, trainRows)
	Xho, _ := subset(data, nf, labels, holdRows)
	holdLabels := make([]int, len(holdRows))
	for i, r := range holdRows {
		holdLabels[i] = labels[r]
	}

	// 1. score every candidate on the holdout
	preds := make([][]float64, len(a.candidates))
	err = parallel.ForEach(context.Background(), len(a.candidates), 0, func(_ context.Context, i int) error {
		cand := a.candidates[i]
		return errors.SafeExecute("automl candidate "+cand.Name, func() error {
			c := cand.Build(nClass, a.RandomState+uint64(i))
			if err := c.Fit(Xtr, ytr); err != nil {
				return errors.Wrapf(err, "automl: candidate %s", cand.Name)
			}
			p, err := c.PredictProba(Xho)
			if err != nil {
				return err
			}
			preds[i], _, _ = model.RowMajor(p)
			preds[i] = append([]float64(nil), preds[i]...)
			return nil
		})
	})
	if err != nil {
		return err
	}

	board := make([]LeaderboardEntry, len(a.candidates))
	for i, cand := range a.candidates {
		board[i] = LeaderboardEntry{Name: cand.Name, LogLoss: holdoutLogLoss(preds[i], nClass, holdLabels)}
	}

	// 2. greedy ensemble selection with replacement
	counts := make([]int, len(a.candidates))
	sum := make([]float64, len(holdRows)*nClass)
	trial := make([]float64, len(sum))
	for r := 1; r <= a.SelectionRounds; r++ {
		best, bestLoss := -1, math.Inf(1)
		for i := range a.candidates {
			for j := range trial {
				trial[j] = (sum[j] + preds[i][j]) / float64(r)
			}
			if loss := holdoutLogLoss(trial, nClass, holdLabels); loss < bestLoss {
				best, bestLoss = i, loss
			}
		}
		counts[best]++
		for j := range sum {
			sum[j] += preds[best][j]
		}
	}

	// 3. refit the selected candidates on every row
	var selected []int
	for i, c := range counts {
		board[i].Weight = float64(c) / float64(a.SelectionRounds)
		if c > 0 {
			selected = append(selected, i)
		}
	}
	Xall, yall := subset(data, nf, labels, allRows(n))
	members := make([]model.Classifier, len(selected))
	err = parallel.ForEach(context.Background(), len(selected), 0, func(_ context.Context, k int) error {
		i := selected[k]
		cand := a.candidates[i]
		return errors.SafeExecute("automl refit "+cand.Name, func() error {
			c := cand.Build(nClass, a.RandomState+uint64(i))
			if err := c.Fit(Xall, yall); err != nil {
				return errors.Wrapf(err, "automl: refit %s", cand.Name)
			}
			members[k] = c
			return nil
		})
	})
	if err != nil {
		return err
	}

	a.Members = make([]model.Envelope, len(members))
	a.Weights = make([]float64, len(members))
	for k, c := range members {
		env, err := model.Encode(c)
		if err != nil {
			return err
		}
		a.Members[k] = env
		a.Weights[k] = board[selected[k]].Weight
	}
	a.members = members
	a.Leaderboard = board
	a.NClasses = nClass
	a.NFeatures = nf
	a.state.SetDimensions(nf, n)
	a.state.SetFitted()

	logger.Debug("AutoML ensemble selected",
		log.SamplesKey, n,
		"holdout", len(holdRows),
		"members", len(members),
	)
	return nil
}

func allRows(n int) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return rows
}

// PredictProba returns the weighted mean of the members' probabilities.
func (a *AutoMLClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := a.state.RequireFitted("AutoMLClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if cols != a.NFeatures {
		return nil, errors.NewDimensionError("AutoMLClassifier.PredictProba", a.NFeatures, cols, 1)
	}
	out := mat.NewDense(rows, a.NClasses, nil)
	for k, m := range a.members {
		p, err := m.PredictProba(X)
		if err != nil {
			return nil, err
		}
		var scaled mat.Dense
		scaled.Scale(a.Weights[k], p)
		out.Add(out, &scaled)
	}
	return out, nil
}

// Predict returns arg-max labels.
func (a *AutoMLClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := a.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return model.PredictFromProba(proba), nil
}

// Score returns mean accuracy.
func (a *AutoMLClassifier) Score(X, y mat.Matrix) (float64, error) {
	return model.ScoreAccuracy(a, X, y)
}

func (a *AutoMLClassifier) NumClasses() int  { return a.NClasses }
func (a *AutoMLClassifier) NumFeatures() int { return a.NFeatures }
func (a *AutoMLClassifier) Kind() string     { return KindAutoML }

// Restore decodes the member envelopes.
func (a *AutoMLClassifier) Restore() error {
	if a.state == nil {
		a.state = model.NewStateManager()
	}
	if len(a.Members) == 0 || len(a.Members) != len(a.Weights) {
		return errors.NewValidationError("members", "decoded ensemble has no members or mismatched weights", len(a.Members))
	}
	a.members = make([]model.Classifier, len(a.Members))
	for k, env := range a.Members {
		m, err := model.Decode(env)
		if err != nil {
			return err
		}
		if m.NumClasses() != a.NClasses || m.NumFeatures() != a.NFeatures {
			return errors.NewValidationError("members", "member shape does not match ensemble", env.Kind)
		}
		a.members[k] = m
	}
	a.state.SetDimensions(a.NFeatures, 0)
	a.state.SetFitted()
	return nil
}
