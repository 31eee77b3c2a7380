package dataset

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/agricure/oofstack/pkg/errors"
	"github.com/agricure/oofstack/stacking"
)

// TrainTestSplit splits ds stratified on target: every class contributes
// round(count*testSize) rows to the test set, and at least one row stays in
// training. Row order inside each part follows ds.
func TrainTestSplit(ds *stacking.Dataset, target string, testSize float64, seed uint64) (train, test *stacking.Dataset, err error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, errors.NewValidationError("test_size", "must be in (0, 1)", testSize)
	}
	if !ds.Schema.HasTarget(target) {
		return nil, nil, errors.NewValidationError("target", "not a target column", target)
	}

	byClass := make(map[string][]int)
	for i, label := range ds.TargetColumn(target) {
		byClass[label] = append(byClass[label], i)
	}
	classes := make([]string, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Strings(classes)

	rng := rand.New(rand.NewPCG(seed, 0x5eed))
	isTest := make([]bool, ds.Len())
	for _, c := range classes {
		rows := byClass[c]
		rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
		nTest := int(math.Round(float64(len(rows)) * testSize))
		if nTest >= len(rows) {
			nTest = len(rows) - 1
		}
		for _, r := range rows[:nTest] {
			isTest[r] = true
		}
	}

	var trainRows, testRows []int
	for i, t := range isTest {
		if t {
			testRows = append(testRows, i)
		} else {
			trainRows = append(trainRows, i)
		}
	}
	if len(testRows) == 0 {
		return nil, nil, errors.NewValidationError("test_size", "test set would be empty", testSize)
	}
	return ds.Subset(trainRows), ds.Subset(testRows), nil
}
