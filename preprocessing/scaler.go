package preprocessing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/agricure/oofstack/core/model"
	"github.com/agricure/oofstack/pkg/errors"
)

// StandardScaler はデータを平均0、標準偏差1に変換する.
// 線形モデルの前処理に使う. 学習済みの統計量は msgpack で永続化される.
type StandardScaler struct {
	state *model.StateManager

	// Mean は各特徴量の平均値
	Mean []float64 `msgpack:"mean"`

	// Scale は各特徴量の標準偏差 (ゼロに近い場合は 1)
	Scale []float64 `msgpack:"scale"`

	// WithMean は平均を引くかどうか
	WithMean bool `msgpack:"with_mean"`

	// WithStd は標準偏差で割るかどうか
	WithStd bool `msgpack:"with_std"`
}

// NewStandardScaler は新しいStandardScalerを作成する
//
// 使用例:
//
//	scaler := preprocessing.NewStandardScaler(true, true)
//	XScaled, err := scaler.FitTransform(X)
func NewStandardScaler(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{
		state:    model.NewStateManager(),
		WithMean: withMean,
		WithStd:  withStd,
	}
}

// NewStandardScalerDefault はデフォルト設定でStandardScalerを作成する
func NewStandardScalerDefault() *StandardScaler {
	return NewStandardScaler(true, true)
}

// Fit は訓練データから統計情報（平均、標準偏差）を計算する
func (s *StandardScaler) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("StandardScaler.Fit", "empty data", errors.ErrEmptyData)
	}

	s.Mean = make([]float64, c)
	s.Scale = make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		mean, std := stat.PopMeanStdDev(col, nil)
		if s.WithMean {
			s.Mean[j] = mean
		}
		s.Scale[j] = 1.0
		// 標準偏差が0に近い場合は1のまま（ゼロ除算を避ける）
		if s.WithStd && math.Abs(std) >= 1e-8 {
			s.Scale[j] = std
		}
	}

	s.state.SetDimensions(c, r)
	s.state.SetFitted()
	return nil
}

// Transform は学習済みの統計情報を使ってデータを標準化する
func (s *StandardScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.state.RequireFitted("StandardScaler", "Transform"); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	if c != len(s.Mean) {
		return nil, errors.NewDimensionError("StandardScaler.Transform", len(s.Mean), c, 1)
	}

	result := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			result.Set(i, j, (X.At(i, j)-s.Mean[j])/s.Scale[j])
		}
	}
	return result, nil
}

// FitTransform は訓練データで学習し、同じデータを変換する
func (s *StandardScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// Restore は永続化から復元されたスケーラーを学習済み状態に戻す
func (s *StandardScaler) Restore() error {
	if s.state == nil {
		s.state = model.NewStateManager()
	}
	if len(s.Mean) == 0 || len(s.Mean) != len(s.Scale) {
		return errors.NewValidationError("StandardScaler", "mean and scale must be non-empty and of equal length", len(s.Mean))
	}
	s.state.SetDimensions(len(s.Mean), 0)
	s.state.SetFitted()
	return nil
}

// String はスケーラーの文字列表現を返す
func (s *StandardScaler) String() string {
	if !s.state.IsFitted() {
		return "StandardScaler(fitted=false)"
	}
	return fmt.Sprintf("StandardScaler(n_features=%d, with_mean=%t, with_std=%t)", len(s.Mean), s.WithMean, s.WithStd)
}
