package structured

import "errors"

// Configuration errors: the caller's model setup is wrong. These are
// raised before any training or decoding work happens.
var (
	// ErrUnknownFeature reports a selected feature name (simple or
	// composite) that matches no registered extractor.
	ErrUnknownFeature = errors.New("unknown feature name")

	// ErrNotCategorical reports an attempt to conjoin an extractor
	// that does not produce categorical values.
	ErrNotCategorical = errors.New("only categorical features can be conjoined")

	// ErrNoArgSum reports a request for best-path decoding under a
	// semiring that cannot select a winner.
	ErrNoArgSum = errors.New("semiring does not define an arg-sum operation")

	// ErrScoresType reports a score payload a decoder cannot handle.
	ErrScoresType = errors.New("unsupported score type for decoder")
)

// ErrNotTrained is a sequencing error: Test was called before the
// model's state was populated by Train or Load.
var ErrNotTrained = errors.New("model has not been trained or loaded")
