// Package report writes evaluation results as CSV and as an accuracy chart.
package report

import (
	"image/color"
	"io"
	"strconv"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/agricure/oofstack/pkg/errors"
	"github.com/agricure/oofstack/stacking"
)

// Row is one CSV line: a target summary (Class empty) or one class.
type Row struct {
	Target    string  `csv:"target"`
	Class     string  `csv:"class"`
	Samples   int     `csv:"samples"`
	Accuracy  string  `csv:"accuracy"`
	Precision float64 `csv:"precision"`
	Recall    float64 `csv:"recall"`
	F1        float64 `csv:"f1"`
	MacroF1   string  `csv:"macro_f1"`
	Category  string  `csv:"category"`
}

// Rows flattens rep: per target a weighted summary row followed by one row
// per class, then an "overall" row.
func Rows(rep *stacking.EvalReport) []*Row {
	var rows []*Row
	for _, te := range rep.Targets {
		rows = append(rows, &Row{
			Target:    te.Target,
			Samples:   te.Samples,
			Accuracy:  format(te.Accuracy),
			Precision: te.WeightedPrecision,
			Recall:    te.WeightedRecall,
			F1:        te.WeightedF1,
			MacroF1:   format(te.MacroF1),
			Category:  te.Category(),
		})
		for c, s := range te.PerClass {
			rows = append(rows, &Row{
				Target:    te.Target,
				Class:     te.Classes[c],
				Samples:   s.Support,
				Precision: s.Precision,
				Recall:    s.Recall,
				F1:        s.F1,
			})
		}
	}
	rows = append(rows, &Row{
		Target:   "overall",
		Samples:  rep.Rows - rep.SkippedRows,
		Accuracy: format(rep.OverallAccuracy),
		Category: stacking.TargetEval{Accuracy: rep.OverallAccuracy}.Category(),
	})
	return rows
}

func format(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }

// WriteCSV writes Rows(rep) to w.
func WriteCSV(w io.Writer, rep *stacking.EvalReport) error {
	rows := Rows(rep)
	return errors.Wrap(gocsv.Marshal(&rows, w), "write evaluation report")
}

// SaveAccuracyChart draws per-target accuracy as a bar chart. The image
// format follows the extension of path (.png, .svg, .pdf).
func SaveAccuracyChart(path string, rep *stacking.EvalReport) error {
	if len(rep.Targets) == 0 {
		return errors.NewValueError("SaveAccuracyChart", "report has no targets")
	}
	values := make(plotter.Values, len(rep.Targets))
	names := make([]string, len(rep.Targets))
	for i, te := range rep.Targets {
		values[i] = te.Accuracy
		names[i] = te.Target
	}

	p := plot.New()
	p.Title.Text = "Test accuracy per target"
	p.Y.Label.Text = "accuracy"
	p.Y.Min, p.Y.Max = 0, 1

	bars, err := plotter.NewBarChart(values, vg.Points(28))
	if err != nil {
		return errors.Wrap(err, "bar chart")
	}
	bars.Color = color.RGBA{R: 46, G: 125, B: 50, A: 255}
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.Add(plotter.NewGrid())

	overall, err := plotter.NewLine(plotter.XYs{
		{X: -0.5, Y: rep.OverallAccuracy},
		{X: float64(len(names)) - 0.5, Y: rep.OverallAccuracy},
	})
	if err != nil {
		return errors.Wrap(err, "overall line")
	}
	overall.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(overall)
	p.Legend.Add("overall", overall)
	p.NominalX(names...)

	if err := p.Save(9*vg.Inch, 5*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "save chart %s", path)
	}
	return nil
}
