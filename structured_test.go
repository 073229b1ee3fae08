package structured

import (
	"fmt"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// caseStrategy labels each rune of a string instance as upper or
// lower case via trellis scores: the matching state gets score 2, the
// other 1.
type caseStrategy struct {
	resets int
	seen   [][]any
}

func (s *caseStrategy) MakeParts(instance any) []any {
	runes := []rune(instance.(string))
	parts := make([]any, len(runes))
	for i, r := range runes {
		parts[i] = r
	}
	return parts
}

func (s *caseStrategy) TrainStructured(instances []any, partsByInstance [][]any) error {
	s.seen = partsByInstance
	return nil
}

func (s *caseStrategy) ScoreParts(instance any, parts []any) (any, error) {
	nodes := mat.NewDense(2, len(parts), nil)
	for i, part := range parts {
		upper := 1.0
		lower := 1.0
		if unicode.IsUpper(part.(rune)) {
			upper = 2.0
		} else {
			lower = 2.0
		}
		nodes.Set(0, i, upper)
		nodes.Set(1, i, lower)
	}
	transitions := mat.NewDense(2, 2, []float64{1, 1, 1, 1})
	return NewSequenceScores(nodes, transitions), nil
}

func (s *caseStrategy) Reset() { s.resets++ }

func TestStructuredModelDecodesEachInstance(t *testing.T) {
	strategy := &caseStrategy{}
	model := NewStructuredModel(strategy, NewViterbiDecoder([]string{"U", "L"}))

	require.NoError(t, model.Train([]any{"Go", "ml"}))
	assert.Equal(t, 1, strategy.resets)
	require.Len(t, strategy.seen, 2)
	assert.Len(t, strategy.seen[0], 2)

	outputs, err := model.Test([]any{"Go", "ml", "aB"})
	require.NoError(t, err)
	require.Len(t, outputs, 3)
	assert.Equal(t, []string{"U", "L"}, outputs[0])
	assert.Equal(t, []string{"L", "L"}, outputs[1])
	assert.Equal(t, []string{"L", "U"}, outputs[2])
}

func TestStructuredModelTrainResetsBeforeRetraining(t *testing.T) {
	strategy := &caseStrategy{}
	model := NewStructuredModel(strategy, NewViterbiDecoder(nil))

	require.NoError(t, model.Train([]any{"a"}))
	require.NoError(t, model.Train([]any{"b"}))
	assert.Equal(t, 2, strategy.resets)
}

// numbersDecomposer derives one ClassifierPart per int; evens and odds
// are separate part classes.
type numbersDecomposer struct{}

func (numbersDecomposer) MakeParts(instance any) []any {
	values := instance.([]int)
	parts := make([]any, len(values))
	for i, v := range values {
		parts[i] = &ClassifierPart{Instance: v}
	}
	return parts
}

type recordingScorer struct {
	resets     int
	trained    bool
	featurized []*mat.Dense
}

func (s *recordingScorer) TrainFeaturized(instances []any, partsByInstance [][]any) error {
	s.trained = true
	return nil
}

func (s *recordingScorer) ScoreFeaturized(instance any, parts []any, featurizedByClass []*mat.Dense) (any, error) {
	s.featurized = featurizedByClass
	return "scored", nil
}

func (s *recordingScorer) Reset() { s.resets++ }

type passthroughDecoder struct{}

func (passthroughDecoder) Decode(instance any, parts []any, scores any) (any, error) {
	return scores, nil
}

func TestFeaturizedStructuredModelPartitionsByClass(t *testing.T) {
	value := NewCategoricalExtractor("value", func(part any) string {
		return fmt.Sprint(intValue(part))
	})
	registry := NewRegistry(value)

	evens, err := NewFeaturizer(registry, []string{"value"}, nil)
	require.NoError(t, err)
	// Odd parts above 5 are filtered out but keep their all-zero row.
	odds, err := NewFeaturizer(registry, []string{"value"}, func(part any) bool {
		return intValue(part) <= 5
	})
	require.NoError(t, err)

	classes := []PartClass{
		{Name: "even", Selects: func(part any) bool { return intValue(part)%2 == 0 }, Featurizer: evens},
		{Name: "odd", Selects: func(part any) bool { return intValue(part)%2 == 1 }, Featurizer: odds},
	}
	scorer := &recordingScorer{}
	strategy := NewFeaturizedStructuredModel(numbersDecomposer{}, classes, scorer)
	model := NewStructuredModel(strategy, passthroughDecoder{})

	require.NoError(t, model.Train([]any{[]int{1, 2, 3}, []int{4, 7}}))
	assert.True(t, scorer.trained)
	assert.Equal(t, 1, scorer.resets)
	assert.Equal(t, 2, evens.Dictionary().Len(), "value=2, value=4")
	assert.Equal(t, 3, odds.Dictionary().Len(), "value=1, value=3, value=7")

	outputs, err := model.Test([]any{[]int{1, 2, 7}})
	require.NoError(t, err)
	assert.Equal(t, []any{"scored"}, outputs)

	require.Len(t, scorer.featurized, 2)
	evenRows, _ := scorer.featurized[0].Dims()
	assert.Equal(t, 1, evenRows)

	oddMatrix := scorer.featurized[1]
	oddRows, oddCols := oddMatrix.Dims()
	require.Equal(t, 2, oddRows)
	require.Equal(t, 3, oddCols)
	// Part 1 is featurized; part 7 is filtered to an all-zero row.
	assert.Equal(t, 1.0, mat.Sum(oddMatrix.RowView(0)))
	assert.Equal(t, 0.0, mat.Sum(oddMatrix.RowView(1)))
}

func TestFeaturizerDropsUnknownNames(t *testing.T) {
	value := NewCategoricalExtractor("value", func(part any) string {
		return fmt.Sprint(intValue(part))
	})
	featurizer, err := NewFeaturizer(NewRegistry(value), []string{"value"}, nil)
	require.NoError(t, err)

	require.NoError(t, featurizer.Register(intParts(1, 2)))
	features := featurizer.Featurize(intParts(9))
	require.NotNil(t, features)
	assert.Equal(t, 0.0, mat.Sum(features))
}
