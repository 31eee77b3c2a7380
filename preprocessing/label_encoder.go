package preprocessing

import (
	"sort"

	"github.com/agricure/oofstack/pkg/errors"
)

// LabelEncoder は文字列カテゴリと 0..C-1 の整数の全単射.
// Classes は辞書順に並び、Fit 後は変更されない.
type LabelEncoder struct {
	// Column は符号化対象の列名. エラーメッセージに使われる.
	Column string `msgpack:"column"`

	// Classes は辞書順に並んだカテゴリ
	Classes []string `msgpack:"classes"`

	// Counts は学習データ中の各カテゴリの出現回数
	Counts []int `msgpack:"counts"`
}

// NewLabelEncoder は列名を持つ空の LabelEncoder を作成する
func NewLabelEncoder(column string) *LabelEncoder {
	return &LabelEncoder{Column: column}
}

// Fit は値の集合からカテゴリ辞書と出現回数を作成する
func (le *LabelEncoder) Fit(values []string) error {
	if len(values) == 0 {
		return errors.NewModelError("LabelEncoder.Fit", "empty data for column "+le.Column, errors.ErrEmptyData)
	}

	counts := make(map[string]int)
	for _, v := range values {
		counts[v]++
	}

	le.Classes = make([]string, 0, len(counts))
	for v := range counts {
		le.Classes = append(le.Classes, v)
	}
	sort.Strings(le.Classes)

	le.Counts = make([]int, len(le.Classes))
	for i, c := range le.Classes {
		le.Counts[i] = counts[c]
	}
	return nil
}

// FitTransform は Fit の後に全ての値を符号化する
func (le *LabelEncoder) FitTransform(values []string) ([]int, error) {
	if err := le.Fit(values); err != nil {
		return nil, err
	}
	return le.Transform(values)
}

// Len はカテゴリ数を返す
func (le *LabelEncoder) Len() int {
	return len(le.Classes)
}

// Encode は値を整数に変換する. 未知の値は UnknownCategoryError.
func (le *LabelEncoder) Encode(value string) (int, error) {
	i := sort.SearchStrings(le.Classes, value)
	if i < len(le.Classes) && le.Classes[i] == value {
		return i, nil
	}
	return -1, errors.NewUnknownCategoryError(le.Column, value)
}

// Transform は値のスライスを符号化する
func (le *LabelEncoder) Transform(values []string) ([]int, error) {
	out := make([]int, len(values))
	for i, v := range values {
		code, err := le.Encode(v)
		if err != nil {
			return nil, err
		}
		out[i] = code
	}
	return out, nil
}

// Decode は整数をカテゴリに戻す
func (le *LabelEncoder) Decode(index int) (string, error) {
	if index < 0 || index >= len(le.Classes) {
		return "", errors.NewValueError("LabelEncoder.Decode",
			"index out of range for column "+le.Column)
	}
	return le.Classes[index], nil
}

// MostFrequent は学習データで最も多いカテゴリを返す. 同数の場合は辞書順で先のもの.
func (le *LabelEncoder) MostFrequent() string {
	best := -1
	for i, c := range le.Counts {
		if best < 0 || c > le.Counts[best] {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return le.Classes[best]
}

// Validate は永続化から復元された辞書の整合性を確認する
func (le *LabelEncoder) Validate() error {
	if len(le.Classes) == 0 {
		return errors.NewValidationError(le.Column, "codec has no classes", 0)
	}
	if len(le.Counts) != len(le.Classes) {
		return errors.NewValidationError(le.Column, "class counts do not match classes", len(le.Counts))
	}
	if !sort.StringsAreSorted(le.Classes) {
		return errors.NewValidationError(le.Column, "classes are not sorted", le.Classes)
	}
	for i := 1; i < len(le.Classes); i++ {
		if le.Classes[i] == le.Classes[i-1] {
			return errors.NewValidationError(le.Column, "duplicate class", le.Classes[i])
		}
	}
	return nil
}
