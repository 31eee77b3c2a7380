// Package metrics は分類器の評価指標を提供する.
// ラベルは *mat.VecDense (クラス番号を float64 で保持) で受け取る.
package metrics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/agricure/oofstack/pkg/errors"
)

// ClassScores は1クラス分の適合率・再現率・F1
type ClassScores struct {
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// Average は平均化された適合率・再現率・F1
type Average struct {
	Precision float64
	Recall    float64
	F1        float64
}

// ClassificationReport は PrecisionRecallFScore の結果
type ClassificationReport struct {
	PerClass []ClassScores
	Macro    Average
	Weighted Average
}

func checkLabels(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil || yTrue.Len() == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	if yPred.Len() != yTrue.Len() {
		return 0, errors.NewDimensionError(op, yTrue.Len(), yPred.Len(), 0)
	}
	return yTrue.Len(), nil
}

func classIndex(op string, v float64, nClasses int) (int, error) {
	c := int(v)
	if float64(c) != v || c < 0 || c >= nClasses {
		return 0, errors.NewValueError(op, fmt.Sprintf("label %v is not a class index in [0, %d)", v, nClasses))
	}
	return c, nil
}

// Accuracy は正解率を計算する
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkLabels("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// AccuracyInts は整数ラベル版の正解率. 空入力では 0 を返す.
func AccuracyInts(yTrue, yPred []int) float64 {
	if len(yTrue) == 0 || len(yTrue) != len(yPred) {
		return 0
	}
	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(yTrue))
}

// ClassificationError は誤分類率 (1 - 正解率) を計算する
func ClassificationError(yTrue, yPred *mat.VecDense) (float64, error) {
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - acc, nil
}

// ConfusionMatrix は nClasses×nClasses の混同行列を返す. 行が正解、列が予測.
func ConfusionMatrix(yTrue, yPred *mat.VecDense, nClasses int) (*mat.Dense, error) {
	n, err := checkLabels("ConfusionMatrix", yTrue, yPred)
	if err != nil {
		return nil, err
	}
	if nClasses < 1 {
		return nil, errors.NewValueError("ConfusionMatrix", "nClasses must be positive")
	}
	cm := mat.NewDense(nClasses, nClasses, nil)
	for i := 0; i < n; i++ {
		t, err := classIndex("ConfusionMatrix", yTrue.AtVec(i), nClasses)
		if err != nil {
			return nil, err
		}
		p, err := classIndex("ConfusionMatrix", yPred.AtVec(i), nClasses)
		if err != nil {
			return nil, err
		}
		cm.Set(t, p, cm.At(t, p)+1)
	}
	return cm, nil
}

// PrecisionRecallFScore はクラス別・macro・weighted の適合率、再現率、F1 を計算する.
//
// macro 平均は正解または予測に一度でも現れたクラスのみを対象とする.
// 分母が0になる指標は 0 とし、UndefinedMetricWarning を発行する.
func PrecisionRecallFScore(yTrue, yPred *mat.VecDense, nClasses int) (*ClassificationReport, error) {
	cm, err := ConfusionMatrix(yTrue, yPred, nClasses)
	if err != nil {
		return nil, err
	}

	report := &ClassificationReport{PerClass: make([]ClassScores, nClasses)}
	total := 0
	present := 0
	undefined := false

	for c := 0; c < nClasses; c++ {
		tp := cm.At(c, c)
		predicted := 0.0
		actual := 0.0
		for k := 0; k < nClasses; k++ {
			predicted += cm.At(k, c)
			actual += cm.At(c, k)
		}

		s := ClassScores{Support: int(actual)}
		if predicted > 0 {
			s.Precision = tp / predicted
		} else if actual > 0 {
			undefined = true
		}
		if actual > 0 {
			s.Recall = tp / actual
		}
		if s.Precision+s.Recall > 0 {
			s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
		}
		report.PerClass[c] = s

		if predicted == 0 && actual == 0 {
			continue
		}
		present++
		total += s.Support
		report.Macro.Precision += s.Precision
		report.Macro.Recall += s.Recall
		report.Macro.F1 += s.F1
		w := float64(s.Support)
		report.Weighted.Precision += w * s.Precision
		report.Weighted.Recall += w * s.Recall
		report.Weighted.F1 += w * s.F1
	}

	if present > 0 {
		report.Macro.Precision /= float64(present)
		report.Macro.Recall /= float64(present)
		report.Macro.F1 /= float64(present)
	}
	if total > 0 {
		report.Weighted.Precision /= float64(total)
		report.Weighted.Recall /= float64(total)
		report.Weighted.F1 /= float64(total)
	}
	if undefined {
		errors.Warn(errors.NewUndefinedMetricWarning("precision", "no predicted samples for a class present in y_true", 0))
	}
	return report, nil
}

// LogLoss は多クラス交差エントロピーを計算する. proba は n×C の確率行列.
func LogLoss(yTrue *mat.VecDense, proba mat.Matrix) (float64, error) {
	if yTrue == nil || yTrue.Len() == 0 {
		return 0, errors.NewValueError("LogLoss", "empty vector")
	}
	r, c := proba.Dims()
	if r != yTrue.Len() {
		return 0, errors.NewDimensionError("LogLoss", yTrue.Len(), r, 0)
	}

	const eps = 1e-15
	total := 0.0
	for i := 0; i < r; i++ {
		k, err := classIndex("LogLoss", yTrue.AtVec(i), c)
		if err != nil {
			return 0, err
		}
		p := math.Min(math.Max(proba.At(i, k), eps), 1-eps)
		total -= math.Log(p)
	}
	return total / float64(r), nil
}
