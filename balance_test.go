package structured

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

var zeroClassRow = []float64{7, 8, 9}

func balancingFixture() (*mat.Dense, []int) {
	data := mat.NewDense(4, 3, []float64{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
		10, 11, 12,
	})
	return data, []int{1, 1, 0, 1}
}

// countRowValues tallies how many times each distinct row appears and
// checks every row kept the label its values had originally.
func countRowValues(t *testing.T, originalData *mat.Dense, originalLabels []int,
	data *mat.Dense, labels []int) map[string]int {
	t.Helper()
	labelByRow := make(map[string]int)
	originalRows, cols := originalData.Dims()
	for r := 0; r < originalRows; r++ {
		labelByRow[fmt.Sprint(mat.Row(nil, r, originalData))] = originalLabels[r]
	}

	counts := make(map[string]int)
	rows, dataCols := data.Dims()
	require.Equal(t, cols, dataCols)
	require.Equal(t, rows, len(labels))
	for r := 0; r < rows; r++ {
		key := fmt.Sprint(mat.Row(nil, r, data))
		original, known := labelByRow[key]
		require.True(t, known, "row %s not present in original data", key)
		assert.Equal(t, original, labels[r], "row %s changed label", key)
		counts[key]++
	}
	return counts
}

func rowKey(values []float64) string { return fmt.Sprint(values) }

func TestRebalanceUnchangedForLowRatios(t *testing.T) {
	for _, ratio := range []float64{0.5, 1.0} {
		data, labels := balancingFixture()
		wrapper := NewClassBalancingModelWrapper(nil, ratio, nil)

		rebalanced, rebalancedLabels := wrapper.Rebalance(data, labels)
		assert.Same(t, data, rebalanced, "ratio %v", ratio)
		assert.Equal(t, labels, rebalancedLabels, "ratio %v", ratio)
	}
}

func TestRebalanceUnlimitedEqualizesToMajority(t *testing.T) {
	data, labels := balancingFixture()
	wrapper := NewClassBalancingModelWrapper(nil, math.Inf(1), nil)

	rebalanced, rebalancedLabels := wrapper.Rebalance(data, labels)
	counts := countRowValues(t, data, labels, rebalanced, rebalancedLabels)
	assert.Equal(t, 3, counts[rowKey(zeroClassRow)])
	assert.Equal(t, 1, counts[rowKey([]float64{1, 2, 3})])
	assert.Equal(t, 1, counts[rowKey([]float64{4, 5, 6})])
	assert.Equal(t, 1, counts[rowKey([]float64{10, 11, 12})])
}

func TestRebalanceWholeAndFractionalRatios(t *testing.T) {
	for _, ratio := range []float64{1.7, 2.0, 2.2, 3.0} {
		data, labels := balancingFixture()
		wrapper := NewClassBalancingModelWrapper(nil, ratio, nil)

		rebalanced, rebalancedLabels := wrapper.Rebalance(data, labels)
		counts := countRowValues(t, data, labels, rebalanced, rebalancedLabels)
		assert.Equal(t, int(ratio), counts[rowKey(zeroClassRow)], "ratio %v", ratio)
	}
}

func TestRebalanceWithUnevenMultiples(t *testing.T) {
	// Class counts 3:8 force a partial repetition after two full
	// cycles of the minority block.
	rows := [][]float64{
		{1, 2, 3}, {4, 5, 6}, {7, 8, 9}, {10, 11, 12},
		{7, 8, 9}, {7, 8, 9},
		{13, 13, 13}, {13, 13, 13}, {13, 13, 13}, {13, 13, 13}, {13, 13, 13},
	}
	flat := make([]float64, 0, len(rows)*3)
	for _, row := range rows {
		flat = append(flat, row...)
	}
	data := mat.NewDense(len(rows), 3, flat)
	labels := []int{1, 1, 0, 1, 0, 0, 1, 1, 1, 1, 1}
	wrapper := NewClassBalancingModelWrapper(nil, 10, nil)

	rebalanced, rebalancedLabels := wrapper.Rebalance(data, labels)
	counts := countRowValues(t, data, labels, rebalanced, rebalancedLabels)
	assert.Equal(t, 8, counts[rowKey(zeroClassRow)])
}

func TestRebalanceStochasticDrawsFromSameClass(t *testing.T) {
	data, labels := balancingFixture()
	wrapper := NewClassBalancingModelWrapper(nil, math.Inf(1), &Options{StochasticResampling: true})
	wrapper.SetRand(rand.New(rand.NewSource(42)))

	rebalanced, rebalancedLabels := wrapper.Rebalance(data, labels)
	counts := countRowValues(t, data, labels, rebalanced, rebalancedLabels)
	// The only class-0 row must have been replicated to the majority
	// count; sampling can only ever pick that row.
	assert.Equal(t, 3, counts[rowKey(zeroClassRow)])
}

func TestRebalanceNoAdditionsReturnsOriginals(t *testing.T) {
	data := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	labels := []int{0, 1}
	wrapper := NewClassBalancingModelWrapper(nil, 10, nil)

	rebalanced, rebalancedLabels := wrapper.Rebalance(data, labels)
	assert.Same(t, data, rebalanced)
	assert.Equal(t, labels, rebalancedLabels)
}

type recordingClassifier struct {
	fitRows    int
	fitLabels  []int
	predictOut []int
}

func (c *recordingClassifier) Fit(features *mat.Dense, labels []int) error {
	c.fitRows, _ = features.Dims()
	c.fitLabels = labels
	return nil
}

func (c *recordingClassifier) Predict(features *mat.Dense) ([]int, error) {
	rows, _ := features.Dims()
	if c.predictOut != nil {
		return c.predictOut, nil
	}
	return make([]int, rows), nil
}

func TestWrapperFitDelegatesRebalancedData(t *testing.T) {
	data, labels := balancingFixture()
	inner := &recordingClassifier{}
	wrapper := NewClassBalancingModelWrapper(inner, math.Inf(1), nil)

	require.NoError(t, wrapper.Fit(data, labels))
	assert.Equal(t, 6, inner.fitRows)
	assert.Len(t, inner.fitLabels, 6)

	predicted, err := wrapper.Predict(data)
	require.NoError(t, err)
	assert.Len(t, predicted, 4)
}
