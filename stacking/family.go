package stacking

import (
	"github.com/agricure/oofstack/core/model"
	"github.com/agricure/oofstack/sklearn/automl"
	"github.com/agricure/oofstack/sklearn/catboost"
	"github.com/agricure/oofstack/sklearn/ensemble"
	"github.com/agricure/oofstack/sklearn/lightgbm"
	"github.com/agricure/oofstack/sklearn/xgboost"
)

// Model structures. The ensemble is degraded when its families span fewer
// than two of them.
const (
	StructureBaggedTrees  = "bagged_trees"
	StructureBoostedTrees = "boosted_trees"
	StructureAutoML       = "automl"
)

// Family names.
const (
	FamilyRandomForest = "random_forest"
	FamilyXGBoost      = "xgboost"
	FamilyCatBoost     = "catboost"
	FamilyLightGBM     = "lightgbm"
	FamilyAutoML       = "automl"
)

// Builder creates one untrained classifier with a fixed output width.
type Builder func(numClass int, seed uint64) model.Classifier

// FamilySpec describes one base model family.
type FamilySpec struct {
	Family    string
	Structure string
	Build     Builder
}

// MetaSpec describes the per-target meta-learner.
type MetaSpec struct {
	Name  string
	Build Builder
}

// RandomForestParams configures the bagged tree family.
type RandomForestParams struct {
	NEstimators     int    `yaml:"n_estimators"`
	MaxDepth        int    `yaml:"max_depth"`
	MinSamplesSplit int    `yaml:"min_samples_split"`
	MinSamplesLeaf  int    `yaml:"min_samples_leaf"`
	MaxFeatures     string `yaml:"max_features"`
	ClassWeight     string `yaml:"class_weight"`
}

// BoostingParams configures the boosted tree families. Fields a family does
// not use are ignored (NumLeaves is LightGBM only).
type BoostingParams struct {
	Rounds       int     `yaml:"rounds"`
	MaxDepth     int     `yaml:"max_depth"`
	LearningRate float64 `yaml:"learning_rate"`
	Subsample    float64 `yaml:"subsample"`
	ColSample    float64 `yaml:"colsample"`
	NumLeaves    int     `yaml:"num_leaves,omitempty"`
	MinChild     int     `yaml:"min_child_samples,omitempty"`
}

// AutoMLParams configures the ensemble-selection family.
type AutoMLParams struct {
	HoldoutFraction float64 `yaml:"holdout_fraction"`
	SelectionRounds int     `yaml:"selection_rounds"`
}

// RandomForestFamily returns the bagged tree family.
func RandomForestFamily(p RandomForestParams) FamilySpec {
	return FamilySpec{
		Family:    FamilyRandomForest,
		Structure: StructureBaggedTrees,
		Build: func(numClass int, seed uint64) model.Classifier {
			opts := []ensemble.Option{
				ensemble.WithNEstimators(p.NEstimators),
				ensemble.WithMaxDepth(p.MaxDepth),
				ensemble.WithClassWeight(p.ClassWeight),
				ensemble.WithNumClass(numClass),
				ensemble.WithRandomState(seed),
			}
			if p.MinSamplesSplit > 0 {
				opts = append(opts, ensemble.WithMinSamplesSplit(p.MinSamplesSplit))
			}
			if p.MinSamplesLeaf > 0 {
				opts = append(opts, ensemble.WithMinSamplesLeaf(p.MinSamplesLeaf))
			}
			if p.MaxFeatures != "" {
				opts = append(opts, ensemble.WithMaxFeatures(p.MaxFeatures))
			}
			return ensemble.NewRandomForestClassifier(opts...)
		},
	}
}

// XGBoostFamily returns the depth-wise boosting family.
func XGBoostFamily(p BoostingParams) FamilySpec {
	return FamilySpec{
		Family:    FamilyXGBoost,
		Structure: StructureBoostedTrees,
		Build: func(numClass int, seed uint64) model.Classifier {
			return xgboost.NewXGBClassifier(
				xgboost.WithNEstimators(p.Rounds),
				xgboost.WithMaxDepth(p.MaxDepth),
				xgboost.WithLearningRate(p.LearningRate),
				xgboost.WithSubsample(orOne(p.Subsample)),
				xgboost.WithColsampleBytree(orOne(p.ColSample)),
				xgboost.WithNumClass(numClass),
				xgboost.WithRandomState(seed),
			)
		},
	}
}

// CatBoostFamily returns the oblivious tree family.
func CatBoostFamily(p BoostingParams) FamilySpec {
	return FamilySpec{
		Family:    FamilyCatBoost,
		Structure: StructureBoostedTrees,
		Build: func(numClass int, seed uint64) model.Classifier {
			return catboost.NewCatBoostClassifier(
				catboost.WithIterations(p.Rounds),
				catboost.WithDepth(p.MaxDepth),
				catboost.WithLearningRate(p.LearningRate),
				catboost.WithRSM(orOne(p.ColSample)),
				catboost.WithNumClass(numClass),
				catboost.WithRandomSeed(seed),
			)
		},
	}
}

// LightGBMFamily returns the leaf-wise histogram boosting family.
func LightGBMFamily(p BoostingParams) FamilySpec {
	return FamilySpec{
		Family:    FamilyLightGBM,
		Structure: StructureBoostedTrees,
		Build:     lightGBMBuilder(p),
	}
}

func lightGBMBuilder(p BoostingParams) Builder {
	return func(numClass int, seed uint64) model.Classifier {
		lgb := lightgbm.NewLGBMClassifier().
			WithNumIterations(p.Rounds).
			WithMaxDepth(p.MaxDepth).
			WithLearningRate(p.LearningRate).
			WithSubsample(orOne(p.Subsample)).
			WithColsampleBytree(orOne(p.ColSample)).
			WithNumClass(numClass).
			WithRandomState(seed)
		if p.NumLeaves > 0 {
			lgb.WithNumLeaves(p.NumLeaves)
		}
		if p.MinChild > 0 {
			lgb.WithMinChildSamples(p.MinChild)
		}
		return lgb
	}
}

// AutoMLFamily returns the ensemble-selection family over the default
// candidate library.
func AutoMLFamily(p AutoMLParams) FamilySpec {
	return FamilySpec{
		Family:    FamilyAutoML,
		Structure: StructureAutoML,
		Build: func(numClass int, seed uint64) model.Classifier {
			opts := []automl.Option{automl.WithNumClass(numClass), automl.WithRandomState(seed)}
			if p.HoldoutFraction > 0 {
				opts = append(opts, automl.WithHoldoutFraction(p.HoldoutFraction))
			}
			if p.SelectionRounds > 0 {
				opts = append(opts, automl.WithSelectionRounds(p.SelectionRounds))
			}
			return automl.NewAutoMLClassifier(opts...)
		},
	}
}

// DefaultRandomForestParams: 200 trees, depth 15, balanced.
func DefaultRandomForestParams() RandomForestParams {
	return RandomForestParams{
		NEstimators:     200,
		MaxDepth:        15,
		MinSamplesSplit: 5,
		MinSamplesLeaf:  2,
		MaxFeatures:     "sqrt",
		ClassWeight:     "balanced",
	}
}

// DefaultBoostingParams: 200 rounds, depth 8, learning rate 0.05, 80% row
// and column sampling.
func DefaultBoostingParams() BoostingParams {
	return BoostingParams{Rounds: 200, MaxDepth: 8, LearningRate: 0.05, Subsample: 0.8, ColSample: 0.8}
}

// DefaultFamilies returns random_forest, xgboost, catboost and lightgbm with
// their default parameters. automl is opt-in.
func DefaultFamilies() []FamilySpec {
	bp := DefaultBoostingParams()
	cb := bp
	cb.Subsample, cb.ColSample = 1, 1
	return []FamilySpec{
		RandomForestFamily(DefaultRandomForestParams()),
		XGBoostFamily(bp),
		CatBoostFamily(cb),
		LightGBMFamily(bp),
	}
}

// DefaultMetaParams: 100 rounds, depth 5, learning rate 0.05.
func DefaultMetaParams() BoostingParams {
	return BoostingParams{Rounds: 100, MaxDepth: 5, LearningRate: 0.05, Subsample: 1, ColSample: 1}
}

// LightGBMMeta returns a LightGBM meta-learner spec.
func LightGBMMeta(p BoostingParams) MetaSpec {
	return MetaSpec{Name: FamilyLightGBM, Build: lightGBMBuilder(p)}
}

// DefaultMeta is the LightGBM meta-learner with DefaultMetaParams.
func DefaultMeta() MetaSpec { return LightGBMMeta(DefaultMetaParams()) }

// structures returns the distinct structures of families in first-seen order.
func structures(families []FamilySpec) []string {
	var out []string
	seen := make(map[string]bool)
	for _, f := range families {
		if !seen[f.Structure] {
			seen[f.Structure] = true
			out = append(out, f.Structure)
		}
	}
	return out
}

func familyNames(families []FamilySpec) []string {
	names := make([]string, len(families))
	for i, f := range families {
		names[i] = f.Family
	}
	return names
}

func orOne(f float64) float64 {
	if f <= 0 {
		return 1
	}
	return f
}
