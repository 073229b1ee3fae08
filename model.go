package structured

import (
	"fmt"
	"log/slog"
	"time"

	"gonum.org/v1/gonum/mat"
)

// The model capability contracts. Models compose these by delegation;
// a structured model owns its decoder and featurization strategy as
// components rather than inheriting them.

// Trainable fits internal parameters from a collection of parts.
type Trainable interface {
	Train(parts []any) error
}

// Testable labels parts in place.
type Testable interface {
	Test(parts []any) error
}

// Persistable writes and restores learned state at a path.
type Persistable interface {
	Save(path string) error
	Load(path string) error
}

// ClassifierPart is the atomic scoreable unit for classifier models:
// a reference to its originating domain object plus an integer label.
type ClassifierPart struct {
	Instance any
	Label    int
}

// Classifier is the underlying learner contract: fit a dense feature
// matrix against integer labels, then predict labels for new rows.
type Classifier interface {
	Fit(features *mat.Dense, labels []int) error
	Predict(features *mat.Dense) ([]int, error)
}

// FeaturizedClassifier trains a Classifier over parts featurized
// through a fixed extractor list, owning the feature-name dictionary
// that freezes the feature space after training.
type FeaturizedClassifier struct {
	extractors []Extractor
	dictionary *FeatureNameDictionary
	classifier Classifier

	// SaveFeaturized keeps the last featurized matrix and labels
	// around for inspection.
	SaveFeaturized bool
	Features       *mat.Dense
	Labels         []int
}

// NewFeaturizedClassifier resolves the selected feature names (which
// may be composite, e.g. "pos:lemma") against the registry. An
// unresolvable name is a configuration error.
func NewFeaturizedClassifier(registry *Registry, selected []string, classifier Classifier) (*FeaturizedClassifier, error) {
	extractors, err := registry.Resolve(selected)
	if err != nil {
		return nil, err
	}
	return &FeaturizedClassifier{
		extractors: extractors,
		dictionary: NewFeatureNameDictionary(),
		classifier: classifier,
	}, nil
}

// Dictionary exposes the feature-name dictionary, frozen after Train.
func (m *FeaturizedClassifier) Dictionary() *FeatureNameDictionary { return m.dictionary }

// Train resets all learned state, registers every subfeature name
// each extractor can produce over the parts (in extractor-list order),
// and only then fits the classifier on the featurized parts.
func (m *FeaturizedClassifier) Train(parts []any) error {
	m.dictionary.Clear()
	m.Features, m.Labels = nil, nil

	slog.Info("registering features")
	for _, extractor := range m.extractors {
		if err := extractor.Train(parts); err != nil {
			return fmt.Errorf("training feature %q: %w", extractor.Name(), err)
		}
		names := extractor.SubfeatureNames(parts)
		for _, name := range names {
			m.dictionary.Insert(name)
		}
		slog.Debug("registered feature", "name", extractor.Name(), "subfeatures", len(names))
	}
	slog.Info("done registering features", "total", m.dictionary.Len())

	features, labels := m.featurize(parts)
	if features == nil {
		slog.Info("no featurized parts to fit")
		return nil
	}
	slog.Info("fitting classifier")
	if err := m.classifier.Fit(features, labels); err != nil {
		return fmt.Errorf("fitting classifier: %w", err)
	}
	slog.Info("done fitting classifier")
	return nil
}

// Test featurizes the parts against the frozen dictionary and writes
// predicted labels onto them in order. Calling Test before Train or
// Load is a sequencing error.
func (m *FeaturizedClassifier) Test(parts []any) error {
	if m.dictionary.Len() == 0 {
		return fmt.Errorf("%w: feature-name dictionary is empty", ErrNotTrained)
	}
	if len(parts) == 0 {
		return nil
	}
	features, _ := m.featurize(parts)
	labels, err := m.classifier.Predict(features)
	if err != nil {
		return fmt.Errorf("predicting labels: %w", err)
	}
	for i, part := range parts {
		part.(*ClassifierPart).Label = labels[i]
	}
	return nil
}

// featurize builds the dense feature matrix and gold labels for the
// parts. Zero-valued subfeatures are omitted; subfeatures unseen at
// training time are dropped with a debug note, never an error.
func (m *FeaturizedClassifier) featurize(parts []any) (*mat.Dense, []int) {
	start := time.Now()
	if len(parts) == 0 || m.dictionary.Len() == 0 {
		return nil, nil
	}
	features := mat.NewDense(len(parts), m.dictionary.Len(), nil)
	labels := make([]int, len(parts))
	for i, part := range parts {
		labels[i] = part.(*ClassifierPart).Label
	}

	for _, extractor := range m.extractors {
		for i, part := range parts {
			for name, value := range extractor.Extract(part) {
				if value == 0 {
					continue
				}
				id, ok := m.dictionary.ID(name)
				if !ok {
					slog.Debug("ignoring unknown subfeature", "name", name)
					continue
				}
				features.Set(i, id, value)
			}
		}
	}
	slog.Debug("featurized parts", "count", len(parts), "elapsed", time.Since(start))
	if m.SaveFeaturized {
		m.Features, m.Labels = features, labels
	}
	return features, labels
}

const featureDictionaryFile = "features.gob"

// Save writes the feature-name dictionary, and the classifier's own
// state when it is Persistable, as gob files under path.
func (m *FeaturizedClassifier) Save(path string) error {
	if err := writeGob(path, featureDictionaryFile, m.dictionary.Names()); err != nil {
		return fmt.Errorf("unable to save feature dictionary: %w", err)
	}
	if persistable, ok := m.classifier.(Persistable); ok {
		return persistable.Save(path)
	}
	return nil
}

// Load restores the dictionary (and classifier state) written by Save,
// after which Test may be called without retraining.
func (m *FeaturizedClassifier) Load(path string) error {
	var names []string
	if err := readGob(path, featureDictionaryFile, &names); err != nil {
		return fmt.Errorf("unable to load feature dictionary: %w", err)
	}
	m.dictionary.Clear()
	for _, name := range names {
		m.dictionary.Insert(name)
	}
	if persistable, ok := m.classifier.(Persistable); ok {
		return persistable.Load(path)
	}
	return nil
}
