package model

import (
	"io"
	"sort"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/agricure/oofstack/pkg/errors"
)

// Envelope は永続化された学習器. Kind でファクトリを引き、Payload を
// msgpack でデコードする.
type Envelope struct {
	Kind    string `msgpack:"kind"`
	Payload []byte `msgpack:"payload"`
}

var (
	registryMu sync.RWMutex
	registry   = map[string]func() Classifier{}
)

// Register は kind 名に対する空の学習器ファクトリを登録する.
// 学習器パッケージの init から呼ばれる. 同じ kind の二重登録は panic する.
func Register(kind string, factory func() Classifier) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[kind]; dup {
		panic("model: Register called twice for kind " + kind)
	}
	registry[kind] = factory
}

// Kinds returns the registered kind names in sorted order.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// NewByKind は登録済みファクトリから空の学習器を作成する.
func NewByKind(kind string) (Classifier, error) {
	registryMu.RLock()
	factory, ok := registry[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.NewValidationError("kind", "no learner registered under this kind", kind)
	}
	return factory(), nil
}

// Encode はモデルを Envelope に変換する.
//
// 使用例:
//
//	env, err := model.Encode(forest)
//	restored, err := model.Decode(env)
func Encode(c Classifier) (Envelope, error) {
	payload, err := msgpack.Marshal(c)
	if err != nil {
		return Envelope{}, errors.Wrapf(err, "encode %s", c.Kind())
	}
	return Envelope{Kind: c.Kind(), Payload: payload}, nil
}

// Decode は Envelope から学習器を復元する. Restorer を実装する学習器は
// デコード後に Restore が呼ばれる.
func Decode(env Envelope) (Classifier, error) {
	c, err := NewByKind(env.Kind)
	if err != nil {
		return nil, err
	}
	if err := msgpack.Unmarshal(env.Payload, c); err != nil {
		return nil, errors.Wrapf(err, "decode %s", env.Kind)
	}
	if r, ok := c.(Restorer); ok {
		if err := r.Restore(); err != nil {
			return nil, errors.Wrapf(err, "restore %s", env.Kind)
		}
	}
	return c, nil
}

// SaveModelToWriter はモデルを Envelope として w に書き出す.
func SaveModelToWriter(c Classifier, w io.Writer) error {
	env, err := Encode(c)
	if err != nil {
		return err
	}
	if err := msgpack.NewEncoder(w).Encode(&env); err != nil {
		return errors.Wrap(err, "failed to encode model")
	}
	return nil
}

// LoadModelFromReader は r から Envelope を読み込み学習器を復元する.
func LoadModelFromReader(r io.Reader) (Classifier, error) {
	var env Envelope
	if err := msgpack.NewDecoder(r).Decode(&env); err != nil {
		return nil, errors.Wrap(err, "failed to decode model")
	}
	return Decode(env)
}
