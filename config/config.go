// Package config loads training configuration from YAML.
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/agricure/oofstack/pkg/errors"
	"github.com/agricure/oofstack/pkg/log"
	"github.com/agricure/oofstack/stacking"
)

// Config is the YAML training configuration.
type Config struct {
	KFolds          int     `yaml:"k_folds"`
	Seed            uint64  `yaml:"seed"`
	TestSize        float64 `yaml:"test_size"`
	ReferenceTarget string  `yaml:"reference_target"`
	UnknownPolicy   string  `yaml:"unknown_policy"`
	Workers         int     `yaml:"workers"`
	LogLevel        string  `yaml:"log_level"`

	// Families lists the trained families in meta-feature order.
	Families []string `yaml:"families"`

	RandomForest stacking.RandomForestParams `yaml:"random_forest"`
	XGBoost      stacking.BoostingParams     `yaml:"xgboost"`
	CatBoost     stacking.BoostingParams     `yaml:"catboost"`
	LightGBM     stacking.BoostingParams     `yaml:"lightgbm"`
	AutoML       stacking.AutoMLParams       `yaml:"automl"`
	Meta         stacking.BoostingParams     `yaml:"meta"`
}

// Default returns the production configuration.
func Default() *Config {
	boosting := stacking.DefaultBoostingParams()
	catboost := boosting
	catboost.Subsample, catboost.ColSample = 1, 1
	return &Config{
		KFolds:          5,
		Seed:            42,
		TestSize:        0.2,
		ReferenceTarget: stacking.TargetNStatus,
		UnknownPolicy:   string(stacking.PolicyStrict),
		Workers:         runtime.NumCPU(),
		LogLevel:        "info",
		Families: []string{
			stacking.FamilyRandomForest,
			stacking.FamilyXGBoost,
			stacking.FamilyCatBoost,
			stacking.FamilyLightGBM,
		},
		RandomForest: stacking.DefaultRandomForestParams(),
		XGBoost:      boosting,
		CatBoost:     catboost,
		LightGBM:     boosting,
		AutoML:       stacking.AutoMLParams{HoldoutFraction: 0.2, SelectionRounds: 20},
		Meta:         stacking.DefaultMetaParams(),
	}
}

// Load reads path over Default. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config")
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	return errors.Wrap(os.WriteFile(path, data, 0o644), "failed to write config")
}

// Validate reports one ValidationError per bad field.
func (c *Config) Validate() error {
	var errs []error
	bad := func(field, reason string, value interface{}) {
		errs = append(errs, errors.NewValidationError(field, reason, value))
	}

	if c.KFolds < 2 {
		bad("k_folds", "must be at least 2", c.KFolds)
	}
	if c.TestSize <= 0 || c.TestSize >= 1 {
		bad("test_size", "must be in (0, 1)", c.TestSize)
	}
	if !stacking.DefaultSchema().HasTarget(c.ReferenceTarget) {
		bad("reference_target", "not a target column", c.ReferenceTarget)
	}
	if _, err := stacking.ParseUnknownPolicy(c.UnknownPolicy); err != nil {
		errs = append(errs, err)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		bad("log_level", "unknown level", c.LogLevel)
	}
	if len(c.Families) == 0 {
		bad("families", "at least one family is required", 0)
	}
	seen := make(map[string]bool)
	for _, f := range c.Families {
		switch f {
		case stacking.FamilyRandomForest, stacking.FamilyXGBoost, stacking.FamilyCatBoost,
			stacking.FamilyLightGBM, stacking.FamilyAutoML:
		default:
			bad("families", "unknown family", f)
		}
		if seen[f] {
			bad("families", "duplicate family", f)
		}
		seen[f] = true
	}

	if c.RandomForest.NEstimators < 1 {
		bad("random_forest.n_estimators", "must be at least 1", c.RandomForest.NEstimators)
	}
	for _, b := range []struct {
		name string
		p    stacking.BoostingParams
	}{
		{"xgboost", c.XGBoost}, {"catboost", c.CatBoost}, {"lightgbm", c.LightGBM}, {"meta", c.Meta},
	} {
		name, p := b.name, b.p
		if p.Rounds < 1 {
			bad(name+".rounds", "must be at least 1", p.Rounds)
		}
		if p.LearningRate <= 0 {
			bad(name+".learning_rate", "must be positive", p.LearningRate)
		}
		if p.Subsample < 0 || p.Subsample > 1 {
			bad(name+".subsample", "must be in (0, 1]", p.Subsample)
		}
		if p.ColSample < 0 || p.ColSample > 1 {
			bad(name+".colsample", "must be in (0, 1]", p.ColSample)
		}
	}
	if c.CatBoost.MaxDepth < 1 || c.CatBoost.MaxDepth > 16 {
		bad("catboost.max_depth", "must be in [1, 16]", c.CatBoost.MaxDepth)
	}
	if c.XGBoost.MaxDepth < 1 {
		bad("xgboost.max_depth", "must be at least 1", c.XGBoost.MaxDepth)
	}
	return errors.Join(errs...)
}

// Family builds the FamilySpec for a configured family name.
func (c *Config) Family(name string) (stacking.FamilySpec, error) {
	switch name {
	case stacking.FamilyRandomForest:
		return stacking.RandomForestFamily(c.RandomForest), nil
	case stacking.FamilyXGBoost:
		return stacking.XGBoostFamily(c.XGBoost), nil
	case stacking.FamilyCatBoost:
		return stacking.CatBoostFamily(c.CatBoost), nil
	case stacking.FamilyLightGBM:
		return stacking.LightGBMFamily(c.LightGBM), nil
	case stacking.FamilyAutoML:
		return stacking.AutoMLFamily(c.AutoML), nil
	}
	return stacking.FamilySpec{}, errors.NewValidationError("families", "unknown family", name)
}

// StackingConfig builds the training configuration.
func (c *Config) StackingConfig(logger log.Logger) (stacking.Config, error) {
	if err := c.Validate(); err != nil {
		return stacking.Config{}, err
	}
	families := make([]stacking.FamilySpec, 0, len(c.Families))
	for _, name := range c.Families {
		f, err := c.Family(name)
		if err != nil {
			return stacking.Config{}, err
		}
		families = append(families, f)
	}
	policy, _ := stacking.ParseUnknownPolicy(c.UnknownPolicy)
	return stacking.Config{
		KFolds:          c.KFolds,
		Families:        families,
		ReferenceTarget: c.ReferenceTarget,
		Seed:            c.Seed,
		UnknownPolicy:   policy,
		Meta:            stacking.LightGBMMeta(c.Meta),
		Workers:         c.Workers,
		Logger:          logger,
	}, nil
}
