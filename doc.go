// Package structured provides the machine-learned model framework used
// by text-analysis pipelines: trainable models over scoreable "parts",
// structured models that decode per-part scores into a labeling for a
// whole instance, a semiring-generalized Viterbi decoder for exact
// best-path inference over a trellis, and a sequence tagger that
// prepares per-position features for an external CRF trainer.
//
// Feature extraction, linguistic annotation, and pipeline orchestration
// live outside this package and are consumed through the Extractor,
// SequenceTrainer/SequenceTagger, and Classifier contracts.
package structured
