package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agricure/oofstack/pkg/errors"
	"github.com/agricure/oofstack/stacking"
)

func memRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func tinyEnsemble(t *testing.T, seed uint64) *stacking.Ensemble {
	t.Helper()
	ds := &stacking.Dataset{Schema: stacking.DefaultSchema()}
	labels := []string{"A", "B"}
	for i := 0; i < 40; i++ {
		num := make(map[string]float64)
		for j, c := range ds.Schema.Numeric {
			num[c] = float64(i + j)
		}
		targets := make(map[string]string)
		for _, target := range ds.Schema.Targets {
			targets[target] = labels[i%2]
		}
		ds.Samples = append(ds.Samples, stacking.Sample{
			FeatureRow: stacking.FeatureRow{
				Numeric:     num,
				Categorical: map[string]string{stacking.ColSoilType: fmt.Sprint("S", i%3), stacking.ColCrop: "Wheat"},
			},
			Targets: targets,
		})
	}

	cfg := stacking.DefaultConfig()
	cfg.KFolds = 2
	cfg.Seed = seed
	cfg.Workers = 2
	cfg.Families = []stacking.FamilySpec{
		stacking.RandomForestFamily(stacking.RandomForestParams{NEstimators: 3, MaxDepth: 3}),
		stacking.LightGBMFamily(stacking.BoostingParams{Rounds: 3, MaxDepth: 2, LearningRate: 0.3, MinChild: 2}),
	}
	cfg.Meta = stacking.LightGBMMeta(stacking.BoostingParams{Rounds: 3, MaxDepth: 2, LearningRate: 0.3, MinChild: 2})
	ens, _, err := stacking.Train(context.Background(), ds, cfg)
	require.NoError(t, err)
	return ens
}

func TestRegistry_PutGetActivate(t *testing.T) {
	ctx := context.Background()
	r := memRegistry(t)
	a := tinyEnsemble(t, 1)
	b := tinyEnsemble(t, 2)

	_, err := r.Active(ctx)
	assert.True(t, errors.Is(err, ErrNoActive))

	entry, err := r.Put(ctx, a, 0.91)
	require.NoError(t, err)
	assert.Equal(t, a.ID, entry.ID)
	assert.Greater(t, entry.Size, 0)
	_, err = r.Put(ctx, b, 0.85)
	require.NoError(t, err)

	_, err = r.Put(ctx, a, 0.91)
	assert.Error(t, err, "ids are unique")

	got, err := r.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Families, got.Families)

	_, err = r.Get(ctx, uuid.New())
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(r.Activate(ctx, uuid.New()), ErrNotFound))

	require.NoError(t, r.Activate(ctx, a.ID))
	require.NoError(t, r.Activate(ctx, b.ID))
	active, err := r.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.ID, active.ID)

	entries, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	activeCount := 0
	for _, e := range entries {
		if e.Active {
			activeCount++
			assert.Equal(t, b.ID, e.ID)
			assert.Equal(t, 0.85, e.OverallAccuracy)
			assert.Equal(t, []string{stacking.FamilyRandomForest, stacking.FamilyLightGBM}, e.Families)
			assert.Equal(t, "strict", e.UnknownPolicy)
		}
	}
	assert.Equal(t, 1, activeCount)
}

func TestRegistry_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	r := memRegistry(t)
	ens := tinyEnsemble(t, 6)

	// 整数秒と小数秒が同じ秒内で並ぶケースを含める
	base := time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC)
	stamps := []time.Time{
		base,
		base.Add(500 * time.Millisecond),
		base.Add(-100 * time.Millisecond),
		base.Add(2*time.Second + 7),
	}
	ids := make(map[time.Time]uuid.UUID, len(stamps))
	for _, ts := range stamps {
		ens.ID = uuid.New()
		ens.CreatedAt = ts
		_, err := r.Put(ctx, ens, 0.5)
		require.NoError(t, err)
		ids[ts] = ens.ID
	}

	entries, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, len(stamps))
	want := []time.Time{stamps[3], stamps[1], stamps[0], stamps[2]}
	for i, e := range entries {
		assert.True(t, want[i].Equal(e.CreatedAt), "entry %d: want %s, got %s", i, want[i], e.CreatedAt)
		assert.Equal(t, ids[want[i]], e.ID)
		assert.Equal(t, time.UTC, e.CreatedAt.Location())
	}
}

func TestRegistry_Refresh(t *testing.T) {
	ctx := context.Background()
	r := memRegistry(t)
	a := tinyEnsemble(t, 3)
	b := tinyEnsemble(t, 4)
	for _, e := range []*stacking.Ensemble{a, b} {
		_, err := r.Put(ctx, e, 0.5)
		require.NoError(t, err)
	}

	h := stacking.NewHolder(nil)
	_, err := r.Refresh(ctx, h)
	assert.True(t, errors.Is(err, ErrNoActive))

	require.NoError(t, r.Activate(ctx, a.ID))
	swapped, err := r.Refresh(ctx, h)
	require.NoError(t, err)
	assert.True(t, swapped)
	assert.Equal(t, a.ID, h.Current().ID)

	swapped, err = r.Refresh(ctx, h)
	require.NoError(t, err)
	assert.False(t, swapped, "already serving the active ensemble")

	require.NoError(t, r.Activate(ctx, b.ID))
	swapped, err = r.Refresh(ctx, h)
	require.NoError(t, err)
	assert.True(t, swapped)
	assert.Equal(t, b.ID, h.Current().ID)
}

func TestRegistry_File(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "registry.db")
	ens := tinyEnsemble(t, 5)

	r, err := Open(path)
	require.NoError(t, err)
	_, err = r.Put(ctx, ens, 0.7)
	require.NoError(t, err)
	require.NoError(t, r.Activate(ctx, ens.ID))
	require.NoError(t, r.Close())

	r, err = Open(path)
	require.NoError(t, err)
	defer r.Close()
	active, err := r.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, ens.ID, active.ID)
}
