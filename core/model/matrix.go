package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/agricure/oofstack/pkg/errors"
)

// RowMajor returns the values of X as a row-major slice. A *mat.Dense with a
// contiguous backing array is returned without copying; callers must treat
// the result as read-only.
func RowMajor(X mat.Matrix) (data []float64, rows, cols int) {
	rows, cols = X.Dims()
	if d, ok := X.(*mat.Dense); ok {
		raw := d.RawMatrix()
		if raw.Stride == cols {
			return raw.Data[:rows*cols], rows, cols
		}
	}
	data = make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			data[i*cols+j] = X.At(i, j)
		}
	}
	return data, rows, cols
}

// Labels converts an n×1 label matrix into class indices and checks that
// every label is an integer in [0, numClass). numClass <= 0 means "infer":
// the result then reports max(label)+1 classes.
func Labels(op string, y mat.Matrix, numClass int) ([]int, int, error) {
	n, c := y.Dims()
	if n == 0 {
		return nil, 0, errors.NewModelError(op, "empty labels", errors.ErrEmptyData)
	}
	if c != 1 {
		return nil, 0, errors.NewDimensionError(op, 1, c, 1)
	}
	labels := make([]int, n)
	maxLabel := 0
	for i := 0; i < n; i++ {
		v := y.At(i, 0)
		k := int(v)
		if float64(k) != v || k < 0 {
			return nil, 0, errors.NewValueError(op, fmt.Sprintf("label %v at row %d is not a class index", v, i))
		}
		if numClass > 0 && k >= numClass {
			return nil, 0, errors.NewValueError(op, fmt.Sprintf("label %d at row %d exceeds %d classes", k, i, numClass))
		}
		if k > maxLabel {
			maxLabel = k
		}
		labels[i] = k
	}
	if numClass <= 0 {
		numClass = maxLabel + 1
	}
	return labels, numClass, nil
}

// CheckFitInput validates the shapes passed to Fit.
func CheckFitInput(op string, X, y mat.Matrix) error {
	n, f := X.Dims()
	if n == 0 || f == 0 {
		return errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	if yn, _ := y.Dims(); yn != n {
		return errors.NewDimensionError(op, n, yn, 0)
	}
	return nil
}

// ArgMax returns the index of the largest value; ties go to the lowest index.
func ArgMax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}

// PredictFromProba turns an n×C probability matrix into an n×1 label matrix.
func PredictFromProba(proba mat.Matrix) *mat.Dense {
	n, c := proba.Dims()
	out := mat.NewDense(n, 1, nil)
	row := make([]float64, c)
	for i := 0; i < n; i++ {
		mat.Row(row, i, proba)
		out.Set(i, 0, float64(ArgMax(row)))
	}
	return out
}

// ScoreAccuracy is the shared Score implementation: mean accuracy of p on (X, y).
func ScoreAccuracy(p ProbabilisticPredictor, X, y mat.Matrix) (float64, error) {
	proba, err := p.PredictProba(X)
	if err != nil {
		return 0, err
	}
	pred := PredictFromProba(proba)
	n, _ := y.Dims()
	if n == 0 {
		return 0, errors.NewModelError("Score", "empty labels", errors.ErrEmptyData)
	}
	correct := 0
	for i := 0; i < n; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}
