// Package oofstack is a multi-output stacking ensemble for fertilizer
// recommendation.
//
// From soil and crop measurements (Soil_Type, Crop, Temperature, Humidity,
// Moisture, Nitrogen, Phosphorus, Potassium, pH, EC) it predicts six
// categorical targets: N_Status, P_Status, K_Status, Primary_Fertilizer,
// Secondary_Fertilizer and pH_Amendment.
//
// Training follows an out-of-fold protocol. One stratified K-fold partition
// is shared by every target and base family; each (target, family, fold)
// instance predicts only the rows it was not trained on, and a per-target
// LightGBM meta-learner is trained on those out-of-fold probabilities.
// At inference the K fold instances of each family are averaged.
//
// # Packages
//
//   - stacking: schema, codecs, fold partition, OOF training, inference,
//     persistence and hot reload
//   - dataset: CSV and JSON feature row I/O, stratified train/test split
//   - config: YAML training configuration
//   - registry: SQLite store of trained ensembles with an active pointer
//   - report: evaluation CSV and accuracy chart
//   - sklearn/...: the base learners (random forest, xgboost, catboost,
//     lightgbm, automl selection) and their shared tree code
//   - core/model, core/parallel, core/objective: learner interfaces,
//     persistence envelope, worker pools and the softmax objective
//   - pkg/errors, pkg/log: error types and structured logging
//
// # Quick Start
//
//	ds, err := dataset.LoadCSV("fertilizer.csv")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ens, report, err := stacking.Train(ctx, ds, stacking.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, w := range report.Warnings {
//	    fmt.Println("warning:", w)
//	}
//
//	labels, err := ens.Predict(stacking.FeatureRow{...})
//
// The agricure command under cmd/agricure wraps the same flow.
package oofstack
