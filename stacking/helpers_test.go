package stacking

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	soils = []string{"Black", "Clay", "Loamy", "Red", "Sandy"}
	crops = []string{"Cotton", "Maize", "Rice", "Sugarcane", "Wheat"}
)

// syntheticDataset generates rows whose labels follow simple agronomic
// thresholds, so every target is learnable from the features.
func syntheticDataset(n int, seed uint64) *Dataset {
	rng := rand.New(rand.NewPCG(seed, 7))
	uniform := func(lo, hi float64) float64 { return lo + rng.Float64()*(hi-lo) }

	ds := &Dataset{Schema: DefaultSchema(), Samples: make([]Sample, n)}
	for i := range ds.Samples {
		num := map[string]float64{
			ColTemperature: uniform(18, 40),
			ColHumidity:    uniform(40, 90),
			ColMoisture:    uniform(20, 60),
			ColNitrogen:    uniform(0, 140),
			ColPhosphorus:  uniform(0, 100),
			ColPotassium:   uniform(0, 200),
			ColPH:          uniform(4.5, 9),
			ColEC:          uniform(0, 2),
		}
		cat := map[string]string{
			ColSoilType: soils[rng.IntN(len(soils))],
			ColCrop:     crops[rng.IntN(len(crops))],
		}
		ds.Samples[i] = Sample{
			FeatureRow: FeatureRow{Numeric: num, Categorical: cat},
			Targets:    labelsFor(num, cat),
		}
	}
	return ds
}

func level(v, low, high float64) string {
	switch {
	case v < low:
		return "Low"
	case v < high:
		return "Medium"
	}
	return "High"
}

func labelsFor(num map[string]float64, cat map[string]string) map[string]string {
	n := level(num[ColNitrogen], 40, 80)
	p := level(num[ColPhosphorus], 30, 60)
	k := level(num[ColPotassium], 60, 120)

	primary := "NPK"
	switch {
	case n == "Low":
		primary = "Urea"
	case p == "Low":
		primary = "DAP"
	case k == "Low":
		primary = "MOP"
	}

	secondary := "None"
	switch {
	case cat[ColCrop] == "Rice":
		secondary = "Zinc Sulphate"
	case num[ColMoisture] < 30:
		secondary = "Compost"
	}

	ph := num[ColPH]
	amendment := "Sulphur"
	switch {
	case ph < 5.5:
		amendment = "Lime"
	case ph < 6.0:
		amendment = "Dolomite"
	case ph < 7.5:
		amendment = "None"
	case ph < 8.2:
		amendment = "Gypsum"
	}

	return map[string]string{
		TargetNStatus:             n,
		TargetPStatus:             p,
		TargetKStatus:             k,
		TargetPrimaryFertilizer:   primary,
		TargetSecondaryFertilizer: secondary,
		TargetPHAmendment:         amendment,
	}
}

func smallForest() FamilySpec {
	return RandomForestFamily(RandomForestParams{
		NEstimators: 15, MaxDepth: 8, MaxFeatures: "sqrt", ClassWeight: "balanced",
	})
}

func smallLightGBM() FamilySpec {
	return LightGBMFamily(BoostingParams{
		Rounds: 15, MaxDepth: 4, LearningRate: 0.2, NumLeaves: 15, MinChild: 5,
	})
}

func testConfig(families ...FamilySpec) Config {
	cfg := DefaultConfig()
	cfg.Families = families
	cfg.Meta = LightGBMMeta(BoostingParams{Rounds: 20, MaxDepth: 3, LearningRate: 0.2, MinChild: 5})
	cfg.Workers = 4
	return cfg
}

type fixture struct {
	train, test *Dataset
	ens         *Ensemble
	report      *TrainReport
}

var (
	fixtureOnce sync.Once
	shared      fixture
	fixtureErr  error
)

// trainedFixture trains the 1000-row, 5-fold, two-family scenario once.
func trainedFixture(t *testing.T) fixture {
	t.Helper()
	fixtureOnce.Do(func() {
		all := syntheticDataset(1000, 42)
		extra := syntheticDataset(200, 43)
		shared.train = all
		shared.test = extra
		shared.ens, shared.report, fixtureErr = Train(context.Background(), all, testConfig(smallForest(), smallLightGBM()))
	})
	require.NoError(t, fixtureErr)
	return shared
}
