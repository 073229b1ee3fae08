package structured

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// StructuredDecoder turns per-part scores for one instance into a
// final structured labeling. Decode must be a pure function of its
// inputs. The score payload is decoder-specific (a sequence decoder
// receives *SequenceScores); a decoder rejects payloads it cannot
// handle with ErrScoresType.
type StructuredDecoder interface {
	Decode(instance any, parts []any, scores any) (any, error)
}

// StructuredStrategy supplies the model-family-specific pieces of a
// structured model: decomposing instances into parts, fitting a
// scoring function, and scoring parts at test time.
type StructuredStrategy interface {
	// MakeParts decomposes an instance into scoreable parts.
	MakeParts(instance any) []any
	// TrainStructured fits scoring parameters from every instance and
	// its parts.
	TrainStructured(instances []any, partsByInstance [][]any) error
	// ScoreParts computes the decoder input for one instance's parts.
	ScoreParts(instance any, parts []any) (any, error)
	// Reset clears learned state before retraining.
	Reset()
}

// StructuredModel scores instance parts with its strategy and decodes
// the scores into a labeling per instance with its decoder.
type StructuredModel struct {
	strategy StructuredStrategy
	decoder  StructuredDecoder
}

func NewStructuredModel(strategy StructuredStrategy, decoder StructuredDecoder) *StructuredModel {
	return &StructuredModel{strategy: strategy, decoder: decoder}
}

// Train resets the strategy's state, derives every instance's parts,
// and hands the whole batch to the strategy.
func (m *StructuredModel) Train(instances []any) error {
	m.strategy.Reset()
	partsByInstance := make([][]any, len(instances))
	for i, instance := range instances {
		partsByInstance[i] = m.strategy.MakeParts(instance)
	}
	return m.strategy.TrainStructured(instances, partsByInstance)
}

// Test derives parts, scores them, and decodes each instance,
// returning one decoded labeling per instance in instance order.
func (m *StructuredModel) Test(instances []any) ([]any, error) {
	outputs := make([]any, len(instances))
	for i, instance := range instances {
		parts := m.strategy.MakeParts(instance)
		scores, err := m.strategy.ScoreParts(instance, parts)
		if err != nil {
			return nil, fmt.Errorf("scoring parts: %w", err)
		}
		output, err := m.decoder.Decode(instance, parts, scores)
		if err != nil {
			return nil, fmt.Errorf("decoding instance: %w", err)
		}
		outputs[i] = output
	}
	return outputs, nil
}

// Featurizer featurizes one class of parts against its own extractor
// set and feature-name dictionary. An optional filter predicate
// selects which parts get real feature vectors; filtered-out parts
// keep their row, as all zeros.
type Featurizer struct {
	extractors []Extractor
	dictionary *FeatureNameDictionary
	filter     func(part any) bool

	// SaveFeaturized keeps the last featurized matrix for inspection.
	SaveFeaturized bool
	Features       *mat.Dense
}

// NewFeaturizer resolves selected feature names against the registry;
// filter may be nil to featurize every part.
func NewFeaturizer(registry *Registry, selected []string, filter func(part any) bool) (*Featurizer, error) {
	extractors, err := registry.Resolve(selected)
	if err != nil {
		return nil, err
	}
	return &Featurizer{
		extractors: extractors,
		dictionary: NewFeatureNameDictionary(),
		filter:     filter,
	}, nil
}

// Dictionary exposes the featurizer's feature-name dictionary.
func (f *Featurizer) Dictionary() *FeatureNameDictionary { return f.dictionary }

// Reset clears the dictionary for retraining.
func (f *Featurizer) Reset() {
	f.dictionary.Clear()
	f.Features = nil
}

// Register runs each extractor's training pass over the parts and
// records every subfeature name it can produce, in extractor-list
// order.
func (f *Featurizer) Register(parts []any) error {
	for _, extractor := range f.extractors {
		if err := extractor.Train(parts); err != nil {
			return fmt.Errorf("training feature %q: %w", extractor.Name(), err)
		}
		for _, name := range extractor.SubfeatureNames(parts) {
			f.dictionary.Insert(name)
		}
	}
	return nil
}

// Featurize builds one row per part against the frozen dictionary.
// Unknown subfeature names are dropped; zero values are omitted. The
// result is nil when there are no parts (or no registered features),
// since a dense matrix cannot have zero rows; scorers must accept a
// nil matrix for a class.
func (f *Featurizer) Featurize(parts []any) *mat.Dense {
	if len(parts) == 0 || f.dictionary.Len() == 0 {
		return nil
	}
	features := mat.NewDense(len(parts), f.dictionary.Len(), nil)
	for i, part := range parts {
		if f.filter != nil && !f.filter(part) {
			continue
		}
		for _, extractor := range f.extractors {
			for name, value := range extractor.Extract(part) {
				if value == 0 {
					continue
				}
				if id, ok := f.dictionary.ID(name); ok {
					features.Set(i, id, value)
				}
			}
		}
	}
	if f.SaveFeaturized {
		f.Features = features
	}
	return features
}

// PartClass declares one part type of a multi-part-type structured
// model: a predicate selecting its parts and the featurizer that
// scores them.
type PartClass struct {
	Name       string
	Selects    func(part any) bool
	Featurizer *Featurizer
}

// FeaturizedScorer turns per-class featurized part matrices into the
// decoder's score payload, and learns whatever parameters that
// scoring needs. An entry in featurizedByClass is nil when the
// instance has no parts of that class.
type FeaturizedScorer interface {
	TrainFeaturized(instances []any, partsByInstance [][]any) error
	ScoreFeaturized(instance any, parts []any, featurizedByClass []*mat.Dense) (any, error)
	Reset()
}

// PartDecomposer derives the scoreable parts of an instance.
type PartDecomposer interface {
	MakeParts(instance any) []any
}

// FeaturizedStructuredModel is a StructuredStrategy for models whose
// parts come in several classes (e.g. node parts and edge parts), each
// featurized independently.
type FeaturizedStructuredModel struct {
	decomposer PartDecomposer
	classes    []PartClass
	scorer     FeaturizedScorer
}

func NewFeaturizedStructuredModel(decomposer PartDecomposer, classes []PartClass, scorer FeaturizedScorer) *FeaturizedStructuredModel {
	return &FeaturizedStructuredModel{decomposer: decomposer, classes: classes, scorer: scorer}
}

func (m *FeaturizedStructuredModel) MakeParts(instance any) []any {
	return m.decomposer.MakeParts(instance)
}

func (m *FeaturizedStructuredModel) Reset() {
	for _, class := range m.classes {
		class.Featurizer.Reset()
	}
	m.scorer.Reset()
}

// TrainStructured registers each class's features over all of that
// class's parts, then delegates parameter learning to the scorer.
func (m *FeaturizedStructuredModel) TrainStructured(instances []any, partsByInstance [][]any) error {
	var all []any
	for _, parts := range partsByInstance {
		all = append(all, parts...)
	}
	for _, class := range m.classes {
		if err := class.Featurizer.Register(m.partsOf(class, all)); err != nil {
			return fmt.Errorf("registering features for part class %q: %w", class.Name, err)
		}
	}
	return m.scorer.TrainFeaturized(instances, partsByInstance)
}

// ScoreParts partitions the instance's parts by class, featurizes
// each partition independently, and delegates numeric scoring.
func (m *FeaturizedStructuredModel) ScoreParts(instance any, parts []any) (any, error) {
	featurized := make([]*mat.Dense, len(m.classes))
	for i, class := range m.classes {
		featurized[i] = class.Featurizer.Featurize(m.partsOf(class, parts))
	}
	return m.scorer.ScoreFeaturized(instance, parts, featurized)
}

func (m *FeaturizedStructuredModel) partsOf(class PartClass, parts []any) []any {
	var selected []any
	for _, part := range parts {
		if class.Selects(part) {
			selected = append(selected, part)
		}
	}
	return selected
}
