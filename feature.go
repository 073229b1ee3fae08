package structured

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Kind distinguishes the value domains a feature extractor can
// produce.
type Kind int

const (
	Categorical Kind = iota
	Numeric
)

// Extractor turns parts into named numeric subfeatures. Implementations
// live with the domain code; this package only relies on the contract.
type Extractor interface {
	Name() string
	Kind() Kind
	// Train gives the extractor its own pass over the training parts
	// (e.g. to collect a vocabulary) before subfeature names are
	// enumerated.
	Train(parts []any) error
	// SubfeatureNames enumerates every distinct subfeature name the
	// extractor can produce over the given parts.
	SubfeatureNames(parts []any) []string
	// Extract maps a part (or observation context) to subfeature
	// values. Zero values may be omitted.
	Extract(part any) map[string]float64
}

// CategoricalValuer is implemented by categorical extractors that can
// report their raw value string for a part. Conjoining requires it.
type CategoricalValuer interface {
	Value(part any) string
}

// CategoricalExtractor adapts a value function into a categorical
// Extractor whose subfeatures are "name=value" indicators.
type CategoricalExtractor struct {
	name  string
	value func(part any) string
}

func NewCategoricalExtractor(name string, value func(part any) string) *CategoricalExtractor {
	return &CategoricalExtractor{name: name, value: value}
}

func (e *CategoricalExtractor) Name() string { return e.name }

func (e *CategoricalExtractor) Kind() Kind { return Categorical }

func (e *CategoricalExtractor) Train(parts []any) error { return nil }

func (e *CategoricalExtractor) Value(part any) string { return e.value(part) }

func (e *CategoricalExtractor) SubfeatureNames(parts []any) []string {
	seen := make(map[string]bool)
	var names []string
	for _, part := range parts {
		name := e.name + "=" + e.value(part)
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

func (e *CategoricalExtractor) Extract(part any) map[string]float64 {
	return map[string]float64{e.name + "=" + e.value(part): 1}
}

// conjunctionSeparator joins component names and values in conjoined
// features, and splits composite selected-feature names.
const conjunctionSeparator = ":"

// ConjoinedExtractor combines categorical extractors into one
// extractor whose subfeature names are the cartesian product of its
// components' names.
type ConjoinedExtractor struct {
	name       string
	components []Extractor
	valuers    []CategoricalValuer
}

// NewConjoinedExtractor rejects any component that is not categorical.
func NewConjoinedExtractor(name string, components []Extractor) (*ConjoinedExtractor, error) {
	valuers := make([]CategoricalValuer, len(components))
	for i, c := range components {
		if c.Kind() != Categorical {
			return nil, fmt.Errorf("%w: attempted to conjoin %q in %q", ErrNotCategorical, c.Name(), name)
		}
		valuer, ok := c.(CategoricalValuer)
		if !ok {
			return nil, fmt.Errorf("%w: %q does not expose its categorical value", ErrNotCategorical, c.Name())
		}
		valuers[i] = valuer
	}
	return &ConjoinedExtractor{name: name, components: components, valuers: valuers}, nil
}

func (e *ConjoinedExtractor) Name() string { return e.name }

func (e *ConjoinedExtractor) Kind() Kind { return Categorical }

func (e *ConjoinedExtractor) Train(parts []any) error {
	for _, c := range e.components {
		if err := c.Train(parts); err != nil {
			return err
		}
	}
	return nil
}

func (e *ConjoinedExtractor) SubfeatureNames(parts []any) []string {
	componentNames := make([][]string, len(e.components))
	for i, c := range e.components {
		componentNames[i] = c.SubfeatureNames(parts)
	}
	product := []string{""}
	for i, names := range componentNames {
		next := make([]string, 0, len(product)*len(names))
		for _, prefix := range product {
			for _, name := range names {
				if i == 0 {
					next = append(next, name)
				} else {
					next = append(next, prefix+conjunctionSeparator+name)
				}
			}
		}
		product = next
	}
	return product
}

func (e *ConjoinedExtractor) Extract(part any) map[string]float64 {
	elements := make([]string, len(e.components))
	for i, c := range e.components {
		elements[i] = c.Name() + "=" + e.valuers[i].Value(part)
	}
	return map[string]float64{strings.Join(elements, conjunctionSeparator): 1}
}

// Registry maps extractor names to instances so selected-feature lists
// can be resolved once, at configuration time, into a fixed extractor
// list.
type Registry struct {
	extractors map[string]Extractor
}

func NewRegistry(extractors ...Extractor) *Registry {
	byName := make(map[string]Extractor, len(extractors))
	for _, e := range extractors {
		byName[e.Name()] = e
	}
	return &Registry{extractors: byName}
}

// Resolve maps selected feature names to extractors, building conjoined
// extractors for composite names of the form "a:b". All unresolvable
// names are reported together as configuration errors.
func (r *Registry) Resolve(selected []string) ([]Extractor, error) {
	var resolved []Extractor
	var errs *multierror.Error
	for _, name := range selected {
		componentNames := strings.Split(name, conjunctionSeparator)
		if len(componentNames) == 1 {
			extractor, ok := r.extractors[name]
			if !ok {
				errs = multierror.Append(errs, fmt.Errorf("%w: %q", ErrUnknownFeature, name))
				continue
			}
			resolved = append(resolved, extractor)
			continue
		}

		components := make([]Extractor, 0, len(componentNames))
		missing := false
		for _, componentName := range componentNames {
			extractor, ok := r.extractors[componentName]
			if !ok {
				errs = multierror.Append(errs,
					fmt.Errorf("%w: %q in conjoined feature %q", ErrUnknownFeature, componentName, name))
				missing = true
				continue
			}
			components = append(components, extractor)
		}
		if missing {
			continue
		}
		conjoined, err := NewConjoinedExtractor(name, components)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		resolved = append(resolved, conjoined)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return resolved, nil
}

// FeatureNameDictionary is the bidirectional mapping from subfeature
// name to dense index, built once during training and read-only at
// test time. Indices are contiguous, in first-seen order.
type FeatureNameDictionary struct {
	ids   map[string]int
	names []string
}

func NewFeatureNameDictionary() *FeatureNameDictionary {
	return &FeatureNameDictionary{ids: make(map[string]int)}
}

// Insert registers a name, returning its index; names already present
// keep their original index.
func (d *FeatureNameDictionary) Insert(name string) int {
	if id, ok := d.ids[name]; ok {
		return id
	}
	id := len(d.names)
	d.ids[name] = id
	d.names = append(d.names, name)
	return id
}

// ID returns the index for a name, if registered.
func (d *FeatureNameDictionary) ID(name string) (int, bool) {
	id, ok := d.ids[name]
	return id, ok
}

// Name returns the name at an index.
func (d *FeatureNameDictionary) Name(id int) string { return d.names[id] }

// Names returns the registered names in index order.
func (d *FeatureNameDictionary) Names() []string {
	return append([]string(nil), d.names...)
}

func (d *FeatureNameDictionary) Len() int { return len(d.names) }

// Clear empties the dictionary for retraining.
func (d *FeatureNameDictionary) Clear() {
	d.ids = make(map[string]int)
	d.names = d.names[:0]
}
