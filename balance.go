package structured

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// ClassBalancingModelWrapper decorates a Classifier, resampling the
// training set before fitting so that no class's resulting count
// exceeds ratio times its original count (and none exceeds the
// majority class's count).
type ClassBalancingModelWrapper struct {
	classifier Classifier
	ratio      float64
	stochastic bool
	rng        *rand.Rand
}

// NewClassBalancingModelWrapper wraps classifier with the given
// balancing ratio. A ratio <= 1 leaves training data unchanged;
// math.Inf(1) equalizes every class to the majority count. opts may
// be nil for the defaults (deterministic resampling).
func NewClassBalancingModelWrapper(classifier Classifier, ratio float64, opts *Options) *ClassBalancingModelWrapper {
	w := &ClassBalancingModelWrapper{
		classifier: classifier,
		ratio:      ratio,
		rng:        rand.New(rand.NewSource(uint64(time.Now().UnixNano()))),
	}
	if opts != nil {
		w.stochastic = opts.StochasticResampling
	}
	return w
}

// SetRand replaces the sampling source used in stochastic mode.
func (w *ClassBalancingModelWrapper) SetRand(rng *rand.Rand) { w.rng = rng }

// Fit rebalances the training set and delegates to the wrapped
// classifier.
func (w *ClassBalancingModelWrapper) Fit(data *mat.Dense, labels []int) error {
	rebalancedData, rebalancedLabels := w.Rebalance(data, labels)
	return w.classifier.Fit(rebalancedData, rebalancedLabels)
}

// Predict delegates to the wrapped classifier.
func (w *ClassBalancingModelWrapper) Predict(data *mat.Dense) ([]int, error) {
	return w.classifier.Predict(data)
}

// Save persists the wrapped classifier when it is Persistable.
func (w *ClassBalancingModelWrapper) Save(path string) error {
	if persistable, ok := w.classifier.(Persistable); ok {
		return persistable.Save(path)
	}
	return nil
}

// Load restores the wrapped classifier when it is Persistable.
func (w *ClassBalancingModelWrapper) Load(path string) error {
	if persistable, ok := w.classifier.(Persistable); ok {
		return persistable.Load(path)
	}
	return nil
}

// Rebalance returns data and labels with extra rows appended after the
// originals so every class count approaches the majority count,
// bounded by ratio times the class's original count (truncated to an
// integer). Inputs come back unchanged when ratio <= 1 or no class
// needs additional rows.
func (w *ClassBalancingModelWrapper) Rebalance(data *mat.Dense, labels []int) (*mat.Dense, []int) {
	if w.ratio <= 1.0 {
		return data, labels
	}

	rowsByClass := make(map[int][]int)
	for row, label := range labels {
		rowsByClass[label] = append(rowsByClass[label], row)
	}
	classes := make([]int, 0, len(rowsByClass))
	for class := range rowsByClass {
		classes = append(classes, class)
	}
	sort.Ints(classes)

	maxCount := 0
	for _, class := range classes {
		if count := len(rowsByClass[class]); count > maxCount {
			maxCount = count
		}
	}

	countsToAdd := make(map[int]int, len(classes))
	totalToAdd := 0
	for _, class := range classes {
		current := len(rowsByClass[class])
		toAdd := int(math.Min(float64(maxCount-current), (w.ratio-1)*float64(current)))
		countsToAdd[class] = toAdd
		totalToAdd += toAdd
	}
	if totalToAdd == 0 {
		return data, labels
	}

	rows, cols := data.Dims()
	rebalanced := mat.NewDense(rows+totalToAdd, cols, nil)
	rebalanced.Copy(data)
	rebalancedLabels := make([]int, rows, rows+totalToAdd)
	copy(rebalancedLabels, labels)

	next := rows
	for _, class := range classes {
		indices := rowsByClass[class]
		needed := countsToAdd[class]
		if needed == 0 {
			continue
		}
		var chosen []int
		if w.stochastic {
			chosen = make([]int, needed)
			for i := range chosen {
				chosen[i] = indices[w.rng.Intn(len(indices))]
			}
		} else {
			fullRepetitions := needed / len(indices)
			slog.Debug("increasing count for label", "label", class, "repetitions", fullRepetitions)
			for r := 0; r < fullRepetitions; r++ {
				chosen = append(chosen, indices...)
			}
			chosen = append(chosen, indices[:needed-len(chosen)]...)
		}
		for _, source := range chosen {
			for c := 0; c < cols; c++ {
				rebalanced.Set(next, c, data.At(source, c))
			}
			rebalancedLabels = append(rebalancedLabels, labels[source])
			next++
		}
	}
	return rebalanced, rebalancedLabels
}
