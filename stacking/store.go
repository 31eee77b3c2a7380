package stacking

import (
	"bytes"
	"io"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/agricure/oofstack/core/model"
	"github.com/agricure/oofstack/pkg/errors"
	"github.com/agricure/oofstack/preprocessing"
)

// Persisted ensembles start with storeMagic and a one-byte format version,
// followed by a snappy block holding the msgpack document.
const (
	storeMagic    = "OOFS"
	formatVersion = 1
)

type instanceDoc struct {
	Target string         `msgpack:"target"`
	Family string         `msgpack:"family"`
	Fold   int            `msgpack:"fold"`
	Model  model.Envelope `msgpack:"model"`
}

type metaDoc struct {
	Target string         `msgpack:"target"`
	Model  model.Envelope `msgpack:"model"`
}

type document struct {
	ID             string                        `msgpack:"id"`
	CreatedAt      int64                         `msgpack:"created_at"`
	Schema         Schema                        `msgpack:"schema"`
	FeatureColumns []string                      `msgpack:"feature_columns"`
	Targets        []string                      `msgpack:"targets"`
	Classes        [][]string                    `msgpack:"classes"`
	MetaWidth      []int                         `msgpack:"meta_width"`
	Families       []string                      `msgpack:"families"`
	Structures     []string                      `msgpack:"structures"`
	MetaName       string                        `msgpack:"meta_name"`
	Policy         string                        `msgpack:"unknown_policy"`
	FeatureCodecs  []*preprocessing.LabelEncoder `msgpack:"feature_codecs"`
	TargetCodecs   []*preprocessing.LabelEncoder `msgpack:"target_codecs"`
	Partition      *FoldPartition                `msgpack:"partition"`
	Instances      []instanceDoc                 `msgpack:"instances"`
	Meta           []metaDoc                     `msgpack:"meta"`
}

// Marshal serializes the ensemble. The output is deterministic for a given
// ensemble.
func (e *Ensemble) Marshal() ([]byte, error) {
	doc := document{
		ID:             e.ID.String(),
		CreatedAt:      e.CreatedAt.UnixNano(),
		Schema:         e.Schema,
		FeatureColumns: e.FeatureColumns,
		Targets:        e.Targets,
		Classes:        e.classes,
		MetaWidth:      e.metaWidth,
		Families:       e.Families,
		Structures:     e.Structures,
		MetaName:       e.MetaName,
		Policy:         string(e.Policy),
		Partition:      e.Partition,
	}
	// codecs go out as slices in schema order; map order is not stable
	for _, col := range e.Schema.Categorical {
		doc.FeatureCodecs = append(doc.FeatureCodecs, e.Codecs.Features[col])
	}
	for _, t := range e.Schema.Targets {
		doc.TargetCodecs = append(doc.TargetCodecs, e.Codecs.Targets[t])
	}
	for _, inst := range e.bank.Instances() {
		env, err := model.Encode(inst.Model)
		if err != nil {
			return nil, errors.Wrapf(err, "%s/%s fold %d", inst.Target, inst.Family, inst.Fold)
		}
		doc.Instances = append(doc.Instances, instanceDoc{Target: inst.Target, Family: inst.Family, Fold: inst.Fold, Model: env})
	}
	for t, m := range e.meta {
		env, err := model.Encode(m)
		if err != nil {
			return nil, errors.Wrapf(err, "meta-learner for %s", e.Targets[t])
		}
		doc.Meta = append(doc.Meta, metaDoc{Target: e.Targets[t], Model: env})
	}

	var body bytes.Buffer
	enc := msgpack.NewEncoder(&body)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(&doc); err != nil {
		return nil, errors.Wrap(err, "encode ensemble")
	}

	out := make([]byte, 0, len(storeMagic)+1+snappy.MaxEncodedLen(body.Len()))
	out = append(out, storeMagic...)
	out = append(out, formatVersion)
	return append(out, snappy.Encode(nil, body.Bytes())...), nil
}

// Save writes the serialized ensemble to w.
func (e *Ensemble) Save(w io.Writer) error {
	blob, err := e.Marshal()
	if err != nil {
		return err
	}
	if _, err := w.Write(blob); err != nil {
		return errors.Wrap(err, "write ensemble")
	}
	return nil
}

// Load reads and validates an ensemble from r.
func Load(r io.Reader) (*Ensemble, error) {
	blob, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read ensemble")
	}
	return Unmarshal(blob)
}

// Unmarshal decodes and validates an ensemble. Any inconsistency between the
// metadata and the stored models is a FamilyMismatchError (or a
// ValidationError for structural corruption) and no ensemble is returned.
func Unmarshal(blob []byte) (*Ensemble, error) {
	body, err := decodeBody(blob)
	if err != nil {
		return nil, err
	}
	var doc document
	if err := msgpack.Unmarshal(body, &doc); err != nil {
		return nil, errors.Wrap(err, "decode ensemble")
	}
	return doc.ensemble()
}

// decodeBody checks the header and returns the msgpack document bytes.
func decodeBody(blob []byte) ([]byte, error) {
	if len(blob) < len(storeMagic)+1 || string(blob[:len(storeMagic)]) != storeMagic {
		return nil, errors.NewValidationError("format", "not an ensemble blob", nil)
	}
	if v := blob[len(storeMagic)]; v != formatVersion {
		return nil, errors.NewValidationError("format_version", "unsupported", int(v))
	}
	body, err := snappy.Decode(nil, blob[len(storeMagic)+1:])
	if err != nil {
		return nil, errors.Wrap(err, "decompress ensemble")
	}
	return body, nil
}

func (doc *document) ensemble() (*Ensemble, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, errors.NewValidationError("id", "invalid ensemble id", doc.ID)
	}
	if err := doc.Schema.Validate(); err != nil {
		return nil, err
	}
	if !equalStrings(doc.FeatureColumns, doc.Schema.FeatureColumns()) {
		return nil, errors.NewValidationError("feature_columns", "do not match schema", doc.FeatureColumns)
	}
	if !equalStrings(doc.Targets, doc.Schema.Targets) {
		return nil, errors.NewValidationError("targets", "do not match schema", doc.Targets)
	}
	policy, err := ParseUnknownPolicy(doc.Policy)
	if err != nil {
		return nil, err
	}
	codecs, err := doc.codecs()
	if err != nil {
		return nil, err
	}
	if err := doc.Partition.Validate(); err != nil {
		return nil, err
	}

	if len(doc.Families) == 0 {
		return nil, errors.NewFamilyMismatchError("", "empty family list", 1, 0)
	}
	if len(doc.Structures) != len(doc.Families) {
		return nil, errors.NewFamilyMismatchError("", "structure list length", len(doc.Families), len(doc.Structures))
	}
	famIndex := make(map[string]int, len(doc.Families))
	for i, f := range doc.Families {
		if _, dup := famIndex[f]; dup {
			return nil, errors.NewFamilyMismatchError("", "duplicate family "+f, len(doc.Families), len(doc.Families)+1)
		}
		famIndex[f] = i
	}
	tgtIndex := make(map[string]int, len(doc.Targets))
	for i, t := range doc.Targets {
		tgtIndex[t] = i
	}
	if len(doc.Classes) != len(doc.Targets) || len(doc.MetaWidth) != len(doc.Targets) {
		return nil, errors.NewValidationError("classes", "per-target metadata length", len(doc.Classes))
	}

	F, K := len(doc.Families), doc.Partition.K
	for t, name := range doc.Targets {
		classes := codecs.Target(name).Classes
		if !equalStrings(doc.Classes[t], classes) {
			return nil, errors.NewFamilyMismatchError(name, "class list differs from codec", len(classes), len(doc.Classes[t]))
		}
		if doc.MetaWidth[t] != F*len(classes) {
			return nil, errors.NewFamilyMismatchError(name, "meta width", F*len(classes), doc.MetaWidth[t])
		}
	}

	bank := newBank(doc.Targets, doc.Families, K)
	if len(doc.Instances) != bank.Len() {
		return nil, errors.NewFamilyMismatchError("", "instance count", bank.Len(), len(doc.Instances))
	}
	nFeatures := len(doc.FeatureColumns)
	for _, inst := range doc.Instances {
		t, ok := tgtIndex[inst.Target]
		if !ok {
			return nil, errors.NewFamilyMismatchError(inst.Target, "instance for unknown target", len(doc.Targets), 0)
		}
		f, ok := famIndex[inst.Family]
		if !ok {
			return nil, errors.NewFamilyMismatchError(inst.Target, "instance for unlisted family "+inst.Family, F, F+1)
		}
		if inst.Fold < 0 || inst.Fold >= K {
			return nil, errors.NewFamilyMismatchError(inst.Target, "instance fold out of range", K, inst.Fold)
		}
		if bank.Get(t, f, inst.Fold) != nil {
			return nil, errors.NewFamilyMismatchError(inst.Target, "duplicate instance for family "+inst.Family, 1, 2)
		}
		m, err := model.Decode(inst.Model)
		if err != nil {
			return nil, errors.Wrapf(err, "%s/%s fold %d", inst.Target, inst.Family, inst.Fold)
		}
		if c := len(doc.Classes[t]); m.NumClasses() != c {
			return nil, errors.NewFamilyMismatchError(inst.Target, "instance class count for family "+inst.Family, c, m.NumClasses())
		}
		if m.NumFeatures() != nFeatures {
			return nil, errors.NewFamilyMismatchError(inst.Target, "instance feature count for family "+inst.Family, nFeatures, m.NumFeatures())
		}
		bank.set(t, f, inst.Fold, m)
	}

	if len(doc.Meta) != len(doc.Targets) {
		return nil, errors.NewFamilyMismatchError("", "meta-learner count", len(doc.Targets), len(doc.Meta))
	}
	metas := make([]model.Classifier, len(doc.Targets))
	for _, md := range doc.Meta {
		t, ok := tgtIndex[md.Target]
		if !ok || metas[t] != nil {
			return nil, errors.NewFamilyMismatchError(md.Target, "unexpected meta-learner", 1, 0)
		}
		m, err := model.Decode(md.Model)
		if err != nil {
			return nil, errors.Wrapf(err, "meta-learner for %s", md.Target)
		}
		if m.NumFeatures() != doc.MetaWidth[t] {
			return nil, errors.NewFamilyMismatchError(md.Target, "meta-learner input width", doc.MetaWidth[t], m.NumFeatures())
		}
		if m.NumClasses() != len(doc.Classes[t]) {
			return nil, errors.NewFamilyMismatchError(md.Target, "meta-learner class count", len(doc.Classes[t]), m.NumClasses())
		}
		metas[t] = m
	}

	ens := &Ensemble{
		ID:             id,
		CreatedAt:      time.Unix(0, doc.CreatedAt).UTC(),
		Schema:         doc.Schema,
		FeatureColumns: doc.FeatureColumns,
		Targets:        doc.Targets,
		Families:       doc.Families,
		Structures:     doc.Structures,
		MetaName:       doc.MetaName,
		Codecs:         codecs,
		Policy:         policy,
		Partition:      doc.Partition,
		bank:           bank,
		meta:           metas,
	}
	ens.index()
	return ens, nil
}

// codecs rebuilds the CodecSet from the schema-ordered slices.
func (doc *document) codecs() (*CodecSet, error) {
	if len(doc.FeatureCodecs) != len(doc.Schema.Categorical) || len(doc.TargetCodecs) != len(doc.Schema.Targets) {
		return nil, errors.NewValidationError("codecs", "codec count does not match schema",
			len(doc.FeatureCodecs)+len(doc.TargetCodecs))
	}
	cs := &CodecSet{
		Features: make(map[string]*preprocessing.LabelEncoder, len(doc.FeatureCodecs)),
		Targets:  make(map[string]*preprocessing.LabelEncoder, len(doc.TargetCodecs)),
	}
	for i, col := range doc.Schema.Categorical {
		if le := doc.FeatureCodecs[i]; le != nil && le.Column == col {
			cs.Features[col] = le
		}
	}
	for i, t := range doc.Schema.Targets {
		if le := doc.TargetCodecs[i]; le != nil && le.Column == t {
			cs.Targets[t] = le
		}
	}
	if err := cs.Validate(doc.Schema); err != nil {
		return nil, err
	}
	return cs, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
