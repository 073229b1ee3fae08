package structured

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// PerceptronClassifier is an averaged perceptron over dense feature
// rows. It is the package's built-in Classifier; anything exposing
// Fit/Predict can stand in for it.
type PerceptronClassifier struct {
	// Iterations is the number of passes over the training rows.
	Iterations int

	classes    []int
	classIndex map[int]int
	weights    *mat.Dense
	totals     *mat.Dense
	stamps     *mat.Dense
	instances  float64
}

func NewPerceptronClassifier(iterations int) *PerceptronClassifier {
	if iterations <= 0 {
		iterations = 5
	}
	return &PerceptronClassifier{Iterations: iterations}
}

// Fit trains the perceptron, replacing any previously learned weights.
func (p *PerceptronClassifier) Fit(features *mat.Dense, labels []int) error {
	if features == nil {
		return fmt.Errorf("no training rows to fit")
	}
	rows, cols := features.Dims()
	if rows != len(labels) {
		return fmt.Errorf("feature matrix has %d rows for %d labels", rows, len(labels))
	}

	p.classes = nil
	p.classIndex = make(map[int]int)
	for _, label := range labels {
		if _, ok := p.classIndex[label]; !ok {
			p.classIndex[label] = len(p.classes)
			p.classes = append(p.classes, label)
		}
	}
	p.weights = mat.NewDense(len(p.classes), cols, nil)
	p.totals = mat.NewDense(len(p.classes), cols, nil)
	p.stamps = mat.NewDense(len(p.classes), cols, nil)
	p.instances = 0

	row := make([]float64, cols)
	for iteration := 0; iteration < p.Iterations; iteration++ {
		for r := 0; r < rows; r++ {
			mat.Row(row, r, features)
			p.instances++
			guess := p.predictRow(row)
			truth := p.classIndex[labels[r]]
			if guess == truth {
				continue
			}
			for c, value := range row {
				if value == 0 {
					continue
				}
				p.updateFeature(truth, c, value)
				p.updateFeature(guess, c, -value)
			}
		}
	}
	p.averageWeights()
	return nil
}

func (p *PerceptronClassifier) updateFeature(class, feature int, delta float64) {
	weight := p.weights.At(class, feature)
	p.totals.Set(class, feature,
		p.totals.At(class, feature)+(p.instances-p.stamps.At(class, feature))*weight)
	p.stamps.Set(class, feature, p.instances)
	p.weights.Set(class, feature, weight+delta)
}

func (p *PerceptronClassifier) averageWeights() {
	if p.instances == 0 {
		return
	}
	rows, cols := p.weights.Dims()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			weight := p.weights.At(r, c)
			total := p.totals.At(r, c) + (p.instances-p.stamps.At(r, c))*weight
			p.weights.Set(r, c, total/p.instances)
		}
	}
}

func (p *PerceptronClassifier) predictRow(row []float64) int {
	scores := make([]float64, len(p.classes))
	for class := range p.classes {
		for c, value := range row {
			if value != 0 {
				scores[class] += value * p.weights.At(class, c)
			}
		}
	}
	return floats.MaxIdx(scores)
}

// Predict labels each feature row with the highest-scoring class. A
// nil matrix yields no labels.
func (p *PerceptronClassifier) Predict(features *mat.Dense) ([]int, error) {
	if p.weights == nil {
		return nil, fmt.Errorf("%w: perceptron has no weights", ErrNotTrained)
	}
	if features == nil {
		return nil, nil
	}
	rows, cols := features.Dims()
	_, trainedCols := p.weights.Dims()
	if cols != trainedCols {
		return nil, fmt.Errorf("feature matrix has %d columns, model expects %d", cols, trainedCols)
	}
	labels := make([]int, rows)
	row := make([]float64, cols)
	for r := 0; r < rows; r++ {
		mat.Row(row, r, features)
		labels[r] = p.classes[p.predictRow(row)]
	}
	return labels, nil
}

const perceptronFile = "perceptron.gob"

type perceptronState struct {
	Classes  []int
	Features int
	Weights  []float64
}

// Save writes the averaged weights as a gob file under path.
func (p *PerceptronClassifier) Save(path string) error {
	if p.weights == nil {
		return fmt.Errorf("%w: perceptron has no weights", ErrNotTrained)
	}
	_, cols := p.weights.Dims()
	state := perceptronState{
		Classes:  p.classes,
		Features: cols,
		Weights:  append([]float64(nil), p.weights.RawMatrix().Data...),
	}
	return writeGob(path, perceptronFile, state)
}

// Load restores weights written by Save.
func (p *PerceptronClassifier) Load(path string) error {
	var state perceptronState
	if err := readGob(path, perceptronFile, &state); err != nil {
		return err
	}
	p.classes = state.Classes
	p.classIndex = make(map[int]int, len(state.Classes))
	for i, class := range state.Classes {
		p.classIndex[class] = i
	}
	p.weights = mat.NewDense(len(state.Classes), state.Features, state.Weights)
	p.totals = nil
	p.stamps = nil
	return nil
}
