package structured

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/mat"
)

// SequenceScores holds the trellis input for sequence decoding: a
// states-by-positions matrix of node scores (any start weights folded
// into column 0) plus transition weights, either one stationary
// states-by-states matrix or one matrix per transition.
type SequenceScores struct {
	nodes       *mat.Dense
	stationary  *mat.Dense
	perPosition []*mat.Dense
}

// NewSequenceScores builds scores with a single stationary transition
// matrix. Entry (i, j) of transitions is the score of moving from
// state i to state j.
func NewSequenceScores(nodes, transitions *mat.Dense) *SequenceScores {
	return &SequenceScores{nodes: nodes, stationary: transitions}
}

// NewPositionDependentScores builds scores with one transition matrix
// per adjacent position pair; transitions must have length
// positions-1.
func NewPositionDependentScores(nodes *mat.Dense, transitions []*mat.Dense) *SequenceScores {
	return &SequenceScores{nodes: nodes, perPosition: transitions}
}

// NodeScores returns the underlying node score matrix.
func (s *SequenceScores) NodeScores() *mat.Dense { return s.nodes }

func (s *SequenceScores) dims() (states, positions int) {
	return s.nodes.Dims()
}

// transitionAt returns the matrix for the transition arriving at
// position t+1.
func (s *SequenceScores) transitionAt(t int) *mat.Dense {
	if s.perPosition != nil {
		return s.perPosition[t]
	}
	return s.stationary
}

func (s *SequenceScores) validate() error {
	states, positions := s.dims()
	if s.perPosition != nil && len(s.perPosition) != positions-1 {
		return fmt.Errorf("position-dependent transitions: have %d matrices for %d positions",
			len(s.perPosition), positions)
	}
	if s.perPosition == nil && s.stationary == nil {
		return fmt.Errorf("sequence scores have no transition weights")
	}
	if s.stationary != nil {
		if r, c := s.stationary.Dims(); r != states || c != states {
			return fmt.Errorf("transition matrix is %dx%d for %d states", r, c, states)
		}
	}
	for t, transitions := range s.perPosition {
		if r, c := transitions.Dims(); r != states || c != states {
			return fmt.Errorf("transition matrix at position %d is %dx%d for %d states", t, r, c, states)
		}
	}
	return nil
}

// ViterbiDecoder is a StructuredDecoder that finds the best global
// state sequence for a trellis of SequenceScores under a configurable
// semiring. Only first-order transition dependencies are supported.
type ViterbiDecoder struct {
	// PossibleStates, when set, maps decoded state indices onto labels.
	PossibleStates []string
	Semiring       Semiring
}

// NewViterbiDecoder returns a decoder over the given state labels
// using the MaxMultiply semiring.
func NewViterbiDecoder(possibleStates []string) *ViterbiDecoder {
	return &ViterbiDecoder{PossibleStates: possibleStates, Semiring: MaxMultiply}
}

// RunViterbi computes the semiring-summed score of the trellis. When
// returnBestPath is true it also reconstructs the winning state
// sequence, which requires a semiring with an arg-sum; otherwise the
// path is nil and the score is the plain semiring sum over all paths.
func (d *ViterbiDecoder) RunViterbi(scores *SequenceScores, returnBestPath bool) (float64, []int, error) {
	if returnBestPath && !d.Semiring.HasArgSum() {
		return 0, nil, fmt.Errorf("%w: cannot return a best path", ErrNoArgSum)
	}
	if err := scores.validate(); err != nil {
		return 0, nil, err
	}
	states, positions := scores.dims()

	pathScores := mat.NewDense(states, positions, nil)
	for i := 0; i < states; i++ {
		pathScores.Set(i, 0, scores.nodes.At(i, 0))
	}
	var predecessors [][]int
	if returnBestPath {
		predecessors = make([][]int, states)
		for i := range predecessors {
			predecessors[i] = make([]int, positions)
			// Column 0 has no predecessor; the sentinel is never
			// dereferenced because backtracking stops there.
			predecessors[i][0] = -1
		}
	}

	predScores := make([]float64, states)
	summed := make([]float64, states)
	for t := 1; t < positions; t++ {
		transitions := scores.transitionAt(t - 1)
		for j := 0; j < states; j++ {
			for i := 0; i < states; i++ {
				predScores[i] = d.Semiring.Multiply(transitions.At(i, j), pathScores.At(i, t-1))
			}
			if returnBestPath {
				best := d.Semiring.ArgSum(predScores)
				predecessors[j][t] = best
				summed[j] = predScores[best]
			} else {
				summed[j] = d.Semiring.Sum(predScores)
			}
		}
		for j := 0; j < states; j++ {
			pathScores.Set(j, t, d.Semiring.Multiply(scores.nodes.At(j, t), summed[j]))
		}
	}

	final := mat.Col(nil, positions-1, pathScores)
	if !returnBestPath {
		return d.Semiring.Sum(final), nil, nil
	}

	best := d.Semiring.ArgSum(final)
	path := make([]int, positions)
	path[positions-1] = best
	for t := positions - 1; t > 0; t-- {
		path[t-1] = predecessors[path[t]][t]
	}
	return final[best], path, nil
}

// Decode implements StructuredDecoder. It always reconstructs the
// best path and returns the state sequence, as a []string when
// PossibleStates is set and a []int otherwise.
func (d *ViterbiDecoder) Decode(instance any, parts []any, scores any) (any, error) {
	seq, ok := scores.(*SequenceScores)
	if !ok {
		return nil, fmt.Errorf("%w: viterbi decoding needs *SequenceScores, got %T", ErrScoresType, scores)
	}
	score, path, err := d.RunViterbi(seq, true)
	if err != nil {
		return nil, err
	}
	slog.Debug("viterbi decoded sequence", "score", score)
	if d.PossibleStates == nil {
		return path, nil
	}
	labels := make([]string, len(path))
	for i, state := range path {
		labels[i] = d.PossibleStates[state]
	}
	return labels, nil
}
