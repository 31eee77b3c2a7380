package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agricure/oofstack/metrics"
	"github.com/agricure/oofstack/stacking"
)

func sampleReport() *stacking.EvalReport {
	return &stacking.EvalReport{
		Rows: 10,
		Targets: []stacking.TargetEval{
			{
				Target: stacking.TargetNStatus, Classes: []string{"High", "Low"}, Samples: 10,
				Accuracy: 0.9, WeightedPrecision: 0.91, WeightedRecall: 0.9, WeightedF1: 0.9, MacroF1: 0.88,
				PerClass: []metrics.ClassScores{
					{Precision: 1, Recall: 0.8, F1: 0.89, Support: 5},
					{Precision: 0.83, Recall: 1, F1: 0.91, Support: 5},
				},
			},
			{Target: stacking.TargetPHAmendment, Classes: []string{"Lime"}, Samples: 10, Accuracy: 0.65},
		},
		OverallAccuracy: 0.775,
	}
}

func TestRows(t *testing.T) {
	rows := Rows(sampleReport())
	require.Len(t, rows, 2+1+1+1)
	assert.Equal(t, "excellent", rows[0].Category)
	assert.Equal(t, "0.9000", rows[0].Accuracy)
	assert.Equal(t, "Low", rows[2].Class)
	assert.Equal(t, "needs improvement", rows[3].Category)
	last := rows[len(rows)-1]
	assert.Equal(t, "overall", last.Target)
	assert.Equal(t, "fair", last.Category)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleReport()))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[0], "target,class,samples,accuracy"))
	assert.True(t, strings.HasPrefix(lines[1], "N_Status,,10,0.9000"))
}

func TestSaveAccuracyChart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accuracy.png")
	require.NoError(t, SaveAccuracyChart(path, sampleReport()))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	assert.Error(t, SaveAccuracyChart(path, &stacking.EvalReport{}))
}
