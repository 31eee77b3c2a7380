package stacking

import (
	"context"
	"runtime"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/agricure/oofstack/core/parallel"
	"github.com/agricure/oofstack/pkg/errors"
	"github.com/agricure/oofstack/pkg/log"
)

// Config controls a training run.
type Config struct {
	// KFolds is the number of folds of the shared partition (>= 2).
	KFolds int
	// Families are the base model families, in meta-feature order.
	Families []FamilySpec
	// ReferenceTarget is the target the partition is stratified on.
	ReferenceTarget string
	Seed            uint64
	// UnknownPolicy is recorded in the ensemble and applied at inference.
	UnknownPolicy UnknownPolicy
	Meta          MetaSpec
	// Workers bounds concurrent training units; <= 0 means runtime.NumCPU().
	Workers int
	Logger  log.Logger
}

// DefaultConfig returns 5 folds, seed 42, stratification on N_Status, strict
// unknown handling and the default families and meta-learner.
func DefaultConfig() Config {
	return Config{
		KFolds:          5,
		Families:        DefaultFamilies(),
		ReferenceTarget: TargetNStatus,
		Seed:            42,
		UnknownPolicy:   PolicyStrict,
		Meta:            DefaultMeta(),
		Workers:         runtime.NumCPU(),
	}
}

func (c *Config) validate(schema Schema) error {
	if c.KFolds < 2 {
		return errors.NewValidationError("k_folds", "must be at least 2", c.KFolds)
	}
	if len(c.Families) == 0 {
		return errors.NewValidationError("families", "at least one family is required", 0)
	}
	seen := make(map[string]bool, len(c.Families))
	for _, f := range c.Families {
		if f.Family == "" || f.Build == nil {
			return errors.NewValidationError("families", "family needs a name and a builder", f.Family)
		}
		if f.Structure == "" {
			return errors.NewValidationError("families", "family needs a structure", f.Family)
		}
		if seen[f.Family] {
			return errors.NewValidationError("families", "duplicate family", f.Family)
		}
		seen[f.Family] = true
	}
	if !schema.HasTarget(c.ReferenceTarget) {
		return errors.NewValidationError("reference_target", "not a target column", c.ReferenceTarget)
	}
	if _, err := ParseUnknownPolicy(string(c.UnknownPolicy)); err != nil {
		return err
	}
	if c.Meta.Build == nil {
		return errors.NewValidationError("meta", "meta-learner builder is required", c.Meta.Name)
	}
	return nil
}

// TrainReport is returned next to a trained ensemble.
type TrainReport struct {
	// Warnings holds FoldCoverageGapWarning and DegradedEnsembleWarning
	// values. They are also emitted through errors.Warn.
	Warnings  []error
	FoldSizes []int
	Targets   []TargetDiagnostics
	Units     int
	Duration  time.Duration

	// OOF is the out-of-fold matrix of every target.
	OOF map[string]*OOFMatrix
}

// Train runs the full OOF stacking protocol on ds: codecs, one stratified
// partition, every (target, family, fold) base unit, coverage verification
// and the per-target meta-learners.
//
// Units run concurrently, bounded by cfg.Workers. ctx is checked before
// each unit; a canceled run returns an error marked with errors.ErrCanceled.
func Train(ctx context.Context, ds *Dataset, cfg Config) (*Ensemble, *TrainReport, error) {
	start := time.Now()
	logger := cfg.Logger
	if logger == nil {
		logger = log.GetLoggerWithName("stacking")
	}
	if cfg.UnknownPolicy == "" {
		cfg.UnknownPolicy = PolicyStrict
	}
	if err := cfg.validate(ds.Schema); err != nil {
		return nil, nil, err
	}
	if err := ds.Validate(); err != nil {
		return nil, nil, err
	}

	codecs, err := FitCodecs(ds)
	if err != nil {
		return nil, nil, err
	}
	X, err := codecs.EncodeFeatures(ds)
	if err != nil {
		return nil, nil, err
	}
	labels, err := codecs.EncodeTargets(ds)
	if err != nil {
		return nil, nil, err
	}

	report := &TrainReport{OOF: make(map[string]*OOFMatrix, len(ds.Schema.Targets))}

	ref := codecs.Target(cfg.ReferenceTarget)
	partition, gaps, err := Partition(labels[cfg.ReferenceTarget], cfg.KFolds, cfg.Seed, ref.Classes...)
	if err != nil {
		return nil, nil, err
	}
	partition.ReferenceTarget = cfg.ReferenceTarget
	report.FoldSizes = partition.Sizes()
	for _, w := range gaps {
		w.Target = cfg.ReferenceTarget
		report.Warnings = append(report.Warnings, w)
		errors.Warn(w)
	}
	logger.Info("Partition built",
		log.PhaseKey, log.PhasePartition,
		log.TargetKey, cfg.ReferenceTarget,
		log.FoldKey, cfg.KFolds,
		log.SamplesKey, ds.Len(),
		"fold_sizes", report.FoldSizes,
	)

	families := familyNames(cfg.Families)
	structs := structures(cfg.Families)
	if len(structs) < 2 {
		w := errors.NewDegradedEnsembleWarning(families, structs)
		report.Warnings = append(report.Warnings, w)
		errors.Warn(w)
	}

	targets := ds.Schema.Targets
	bank := newBank(targets, families, cfg.KFolds)
	oofs := make([]*OOFMatrix, len(targets))
	targetLabels := make([][]int, len(targets))
	for t, name := range targets {
		oofs[t] = newOOFMatrix(name, families, ds.Len(), codecs.Target(name).Len())
		targetLabels[t] = labels[name]
	}

	// fold matrices are shared by every (target, family)
	trainRows := make([][]int, cfg.KFolds)
	heldRows := make([][]int, cfg.KFolds)
	trainX := make([]*mat.Dense, cfg.KFolds)
	heldX := make([]*mat.Dense, cfg.KFolds)
	for k := 0; k < cfg.KFolds; k++ {
		trainRows[k] = partition.TrainRows(k)
		heldRows[k] = partition.Rows(k)
		trainX[k] = selectRows(X, trainRows[k])
		heldX[k] = selectRows(X, heldRows[k])
	}

	report.Units = bank.Len()
	logger.Info("Training base models",
		log.PhaseKey, log.PhaseBase,
		log.UnitsKey, report.Units,
		"families", families,
	)
	err = parallel.ForEach(ctx, bank.Len(), cfg.Workers, func(ctx context.Context, u int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		t, f, k := bank.unit(u)
		spec := cfg.Families[f]
		oof := oofs[t]
		unitStart := time.Now()

		m := spec.Build(oof.NumClass, unitSeed(cfg.Seed, t, f, k))
		err := errors.SafeExecute("train "+targets[t]+"/"+spec.Family, func() error {
			if err := m.Fit(trainX[k], subsetLabels(targetLabels[t], trainRows[k])); err != nil {
				return err
			}
			if len(heldRows[k]) == 0 {
				return nil
			}
			proba, err := m.PredictProba(heldX[k])
			if err != nil {
				return err
			}
			return oof.write(f, k, heldRows[k], proba)
		})
		if err != nil {
			return errors.Wrapf(err, "unit %s/%s fold %d", targets[t], spec.Family, k)
		}
		bank.set(t, f, k, m)

		logger.Debug("Unit trained",
			log.PhaseKey, log.PhaseBase,
			log.TargetKey, targets[t],
			log.FamilyKey, spec.Family,
			log.FoldKey, k,
			log.DurationMsKey, time.Since(unitStart).Milliseconds(),
		)
		return nil
	})
	if err != nil {
		return nil, nil, canceled(ctx, err)
	}

	for t, oof := range oofs {
		if err := oof.verify(partition); err != nil {
			return nil, nil, err
		}
		report.OOF[targets[t]] = oof
	}

	metas, diags, err := trainMetaLearners(ctx, oofs, targetLabels, cfg.Meta, cfg.Seed, cfg.Workers, logger)
	if err != nil {
		return nil, nil, canceled(ctx, err)
	}
	report.Targets = diags

	ens := &Ensemble{
		ID:             uuid.New(),
		CreatedAt:      time.Now().UTC(),
		Schema:         ds.Schema,
		FeatureColumns: ds.Schema.FeatureColumns(),
		Targets:        targets,
		Families:       families,
		Structures:     familyStructures(cfg.Families),
		MetaName:       cfg.Meta.Name,
		Codecs:         codecs,
		Policy:         cfg.UnknownPolicy,
		Partition:      partition,
		bank:           bank,
		meta:           metas,
	}
	ens.index()

	report.Duration = time.Since(start)
	logger.Info("Ensemble trained",
		log.TargetsKey, len(targets),
		log.UnitsKey, report.Units,
		log.DurationMsKey, report.Duration.Milliseconds(),
		"ensemble_id", ens.ID.String(),
	)
	return ens, report, nil
}

// unitSeed derives a distinct seed per (target, family, fold).
func unitSeed(seed uint64, t, f, k int) uint64 {
	return seed*0x9e3779b97f4a7c15 + uint64(t)<<32 + uint64(f)<<16 + uint64(k)
}

func canceled(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errors.Mark(errors.Wrap(err, "training canceled"), errors.ErrCanceled)
	}
	return err
}

func familyStructures(families []FamilySpec) []string {
	out := make([]string, len(families))
	for i, f := range families {
		out[i] = f.Structure
	}
	return out
}

func selectRows(X *mat.Dense, rows []int) *mat.Dense {
	_, c := X.Dims()
	if len(rows) == 0 {
		return nil
	}
	out := mat.NewDense(len(rows), c, nil)
	for i, r := range rows {
		copy(out.RawRowView(i), X.RawRowView(r))
	}
	return out
}
