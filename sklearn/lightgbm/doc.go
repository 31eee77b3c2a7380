// Package lightgbm provides a pure Go LightGBM-style multiclass classifier.
//
// Training follows the LightGBM recipe: features are quantized into at most
// MaxBin histogram bins, trees grow leaf-wise (the leaf with the largest
// gain is split next) until NumLeaves or MaxDepth is reached, and each round
// may draw a bagging sample of rows and a feature fraction.
//
// # Basic Usage
//
//	clf := lightgbm.NewLGBMClassifier().
//	    WithNumIterations(200).
//	    WithMaxDepth(8).
//	    WithLearningRate(0.05)
//	if err := clf.Fit(X, y); err != nil {
//	    return err
//	}
//	proba, _ := clf.PredictProba(XTest)
//
// Labels are class indices in an n×1 matrix. WithNumClass fixes the width of
// PredictProba so that folds missing a class still produce one column per
// class.
package lightgbm
