package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agricure/oofstack/pkg/errors"
	"github.com/agricure/oofstack/stacking"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.KFolds)
	assert.Equal(t, uint64(42), cfg.Seed)
	assert.Equal(t, stacking.TargetNStatus, cfg.ReferenceTarget)
	assert.Equal(t, "strict", cfg.UnknownPolicy)
	assert.Equal(t, 200, cfg.RandomForest.NEstimators)
	assert.Equal(t, 15, cfg.RandomForest.MaxDepth)
	assert.Equal(t, "balanced", cfg.RandomForest.ClassWeight)
	assert.Equal(t, 8, cfg.XGBoost.MaxDepth)
	assert.Equal(t, 0.05, cfg.LightGBM.LearningRate)
	assert.Equal(t, 100, cfg.Meta.Rounds)
	assert.Equal(t, 5, cfg.Meta.MaxDepth)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
k_folds: 3
seed: 7
unknown_policy: most_frequent
families: [random_forest, lightgbm]
random_forest:
  n_estimators: 50
lightgbm:
  rounds: 40
  num_leaves: 15
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.KFolds)
	assert.Equal(t, uint64(7), cfg.Seed)
	assert.Equal(t, 50, cfg.RandomForest.NEstimators)
	assert.Equal(t, 15, cfg.RandomForest.MaxDepth, "unset fields keep defaults")
	assert.Equal(t, 40, cfg.LightGBM.Rounds)
	assert.Equal(t, 15, cfg.LightGBM.NumLeaves)
	assert.Equal(t, 0.8, cfg.LightGBM.Subsample)

	sc, err := cfg.StackingConfig(nil)
	require.NoError(t, err)
	require.Len(t, sc.Families, 2)
	assert.Equal(t, stacking.FamilyRandomForest, sc.Families[0].Family)
	assert.Equal(t, stacking.StructureBoostedTrees, sc.Families[1].Structure)
	assert.Equal(t, stacking.PolicyMostFrequent, sc.UnknownPolicy)
	assert.NotNil(t, sc.Meta.Build)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("k_folds: [1, 2"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"folds", func(c *Config) { c.KFolds = 1 }, "k_folds"},
		{"test size", func(c *Config) { c.TestSize = 1 }, "test_size"},
		{"reference target", func(c *Config) { c.ReferenceTarget = "Yield" }, "reference_target"},
		{"policy", func(c *Config) { c.UnknownPolicy = "guess" }, "unknown_policy"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"unknown family", func(c *Config) { c.Families = []string{"svm"} }, "families"},
		{"duplicate family", func(c *Config) { c.Families = []string{"xgboost", "xgboost"} }, "families"},
		{"rounds", func(c *Config) { c.Meta.Rounds = 0 }, "meta.rounds"},
		{"subsample", func(c *Config) { c.XGBoost.Subsample = 1.5 }, "xgboost.subsample"},
		{"catboost depth", func(c *Config) { c.CatBoost.MaxDepth = 20 }, "catboost.max_depth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			var ve *errors.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.ParamName)
		})
	}
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "train.yaml")
	cfg := Default()
	cfg.Families = append(cfg.Families, stacking.FamilyAutoML)
	require.NoError(t, cfg.Save(path))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}
