package structured

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Attributes is one sequence position's feature-name-to-value mapping,
// as consumed by the external sequence learner.
type Attributes map[string]float64

// SequenceTrainer is the external CRF trainer contract. The trained
// model file's format is opaque; it is addressed only by path.
type SequenceTrainer interface {
	// Append adds one training sequence with its gold labels.
	Append(features []Attributes, labels []string) error
	// Select chooses the training algorithm by name.
	Select(algorithm string) error
	// SetParams sets algorithm hyperparameters.
	SetParams(params map[string]any) error
	// Train fits the model and persists it at modelPath.
	Train(modelPath string) error
}

// SequenceTagger is the external CRF tagger contract. Every Open must
// be paired with a Close, on all exit paths.
type SequenceTagger interface {
	Open(modelPath string) error
	Tag(features []Attributes) ([]string, error)
	// Info reports model diagnostics from the opened model.
	Info() (map[string]any, error)
	Close() error
}

// SequenceSource supplies and consumes the sequences behind each part
// of a sequence model.
type SequenceSource interface {
	// Sequences returns the part's observation sequence and, when
	// train is true, its gold label sequence (nil otherwise).
	Sequences(part any, train bool) (observations []any, labels []string, err error)
	// ApplyLabels writes predicted per-position labels back onto the
	// part.
	ApplyLabels(part any, labels []string) error
}

// ObservationContext is what sequence feature extractors receive: one
// observation together with its surrounding sequence, so features can
// look at neighboring positions.
type ObservationContext struct {
	Observation any
	Sequence    []any
	Index       int
	Part        any
}

// ErrTraining marks failures reported by the external sequence
// trainer, so callers can tell a bad configuration from a failed
// learner.
var ErrTraining = errors.New("sequence trainer failed")

// TrainingError wraps the trainer's reported failure. It unwraps to
// ErrTraining.
type TrainingError struct {
	Err error
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("crf training failed: %v", e.Err)
}

func (e *TrainingError) Unwrap() error { return ErrTraining }

// CRFTagger is a sequence-labeling model whose parts are whole
// sequences. It owns per-position featurization with neighboring
// context; parameter learning and inference belong to the external
// trainer and tagger.
type CRFTagger struct {
	config     TrainerConfig
	extractors []Extractor
	source     SequenceSource
	trainer    SequenceTrainer
	newTagger  func() SequenceTagger

	trained   bool
	modelInfo map[string]any
}

// NewCRFTagger resolves the selected feature names against the
// registry. newTagger constructs a fresh tagger for each open/close
// bracket.
func NewCRFTagger(source SequenceSource, registry *Registry, selected []string,
	trainer SequenceTrainer, newTagger func() SequenceTagger, config TrainerConfig) (*CRFTagger, error) {
	extractors, err := registry.Resolve(selected)
	if err != nil {
		return nil, err
	}
	return &CRFTagger{
		config:     config,
		extractors: extractors,
		source:     source,
		trainer:    trainer,
		newTagger:  newTagger,
	}, nil
}

// Train featurizes every part's observation sequence position by
// position, appends the sequences to the external trainer, and runs
// training with the configured algorithm and parameters. Any failure
// the trainer reports is fatal and surfaces as a *TrainingError; no
// partial model is usable afterwards.
func (t *CRFTagger) Train(parts []any) error {
	t.trained = false
	t.modelInfo = nil

	if err := t.trainer.Select(t.config.Algorithm); err != nil {
		return &TrainingError{Err: err}
	}
	if err := t.trainer.SetParams(t.config.Params); err != nil {
		return &TrainingError{Err: err}
	}

	for _, part := range parts {
		observations, labels, err := t.source.Sequences(part, true)
		if err != nil {
			return fmt.Errorf("getting sequences for part: %w", err)
		}
		if err := t.trainer.Append(t.featurizeSequence(observations, part), labels); err != nil {
			return &TrainingError{Err: err}
		}
	}

	start := time.Now()
	slog.Info("training CRF model", "algorithm", t.config.Algorithm)
	if err := t.trainer.Train(t.config.ModelPath); err != nil {
		return &TrainingError{Err: err}
	}
	slog.Info("CRF model saved", "path", t.config.ModelPath, "elapsed", time.Since(start))
	t.trained = true

	if t.config.SaveModelInfo {
		if err := t.captureModelInfo(); err != nil {
			return err
		}
	}
	return nil
}

func (t *CRFTagger) captureModelInfo() error {
	tagger := t.newTagger()
	if err := tagger.Open(t.config.ModelPath); err != nil {
		return fmt.Errorf("unable to open model for diagnostics: %w", err)
	}
	defer tagger.Close()
	info, err := tagger.Info()
	if err != nil {
		return fmt.Errorf("unable to read model diagnostics: %w", err)
	}
	t.modelInfo = info
	return nil
}

// ModelInfo returns the diagnostics captured after training when
// SaveModelInfo is set.
func (t *CRFTagger) ModelInfo() map[string]any { return t.modelInfo }

// Test opens the trained model, tags every part's observation
// sequence, and applies the predicted labels back onto the parts. The
// tagger is closed on every exit path.
func (t *CRFTagger) Test(parts []any) error {
	if !t.trained {
		return fmt.Errorf("%w: crf model at %q", ErrNotTrained, t.config.ModelPath)
	}
	tagger := t.newTagger()
	if err := tagger.Open(t.config.ModelPath); err != nil {
		return fmt.Errorf("unable to open crf model: %w", err)
	}
	defer tagger.Close()

	for _, part := range parts {
		observations, _, err := t.source.Sequences(part, false)
		if err != nil {
			return fmt.Errorf("getting sequences for part: %w", err)
		}
		labels, err := tagger.Tag(t.featurizeSequence(observations, part))
		if err != nil {
			return fmt.Errorf("tagging sequence: %w", err)
		}
		if err := t.source.ApplyLabels(part, labels); err != nil {
			return fmt.Errorf("applying labels to part: %w", err)
		}
	}
	return nil
}

// featurizeSequence merges every extractor's output into one
// attribute map per position, handing each extractor the observation
// with its surrounding context.
func (t *CRFTagger) featurizeSequence(observations []any, part any) []Attributes {
	features := make([]Attributes, len(observations))
	for i, observation := range observations {
		values := make(Attributes)
		context := &ObservationContext{
			Observation: observation,
			Sequence:    observations,
			Index:       i,
			Part:        part,
		}
		for _, extractor := range t.extractors {
			for name, value := range extractor.Extract(context) {
				values[name] = value
			}
		}
		features[i] = values
	}
	return features
}

const crfModelPathFile = "crfpath.gob"

// Save records the path of the externally-owned model file; the
// trainer already persisted the model itself there.
func (t *CRFTagger) Save(path string) error {
	if !t.trained {
		return fmt.Errorf("%w: nothing to save", ErrNotTrained)
	}
	return writeGob(path, crfModelPathFile, t.config.ModelPath)
}

// Load restores the model file path written by Save, after which Test
// may be called without retraining.
func (t *CRFTagger) Load(path string) error {
	var modelPath string
	if err := readGob(path, crfModelPathFile, &modelPath); err != nil {
		return err
	}
	t.config.ModelPath = modelPath
	t.trained = true
	return nil
}
