package structured

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// A Semiring bundles the two operators and identities that
// parameterize trellis decoding, so the same dynamic program can
// compute sum-product marginals, max-product best scores, or max-sum
// scores in log space.
type Semiring struct {
	// Sum reduces the scores of competing predecessors.
	Sum func(scores []float64) float64
	// Multiply combines a transition weight with a path score, or a
	// node score with a summed predecessor score.
	Multiply func(a, b float64) float64

	AdditiveIdentity       float64
	MultiplicativeIdentity float64

	// ArgSum selects which predecessor won the Sum. Nil for score-only
	// semirings, which cannot reconstruct a path. Ties resolve to the
	// first (lowest) index.
	ArgSum func(scores []float64) int
}

// HasArgSum reports whether the semiring can pick a winning
// predecessor, which best-path reconstruction requires.
func (s Semiring) HasArgSum() bool { return s.ArgSum != nil }

// PlusMultiply sums products of path scores: counts and probabilities.
// Score-only; it has no arg-sum.
var PlusMultiply = Semiring{
	Sum:                    floats.Sum,
	Multiply:               func(a, b float64) float64 { return a * b },
	AdditiveIdentity:       0,
	MultiplicativeIdentity: 1,
}

// MaxMultiply maximizes products of path scores.
var MaxMultiply = Semiring{
	Sum:                    floats.Max,
	Multiply:               func(a, b float64) float64 { return a * b },
	AdditiveIdentity:       math.Inf(-1),
	MultiplicativeIdentity: 1,
	ArgSum:                 floats.MaxIdx,
}

// MaxPlus maximizes sums of path scores, for weights already in log
// space.
var MaxPlus = Semiring{
	Sum:                    floats.Max,
	Multiply:               func(a, b float64) float64 { return a + b },
	AdditiveIdentity:       math.Inf(-1),
	MultiplicativeIdentity: 0,
	ArgSum:                 floats.MaxIdx,
}
