package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

var errRaggedTensor = errors.New("tensor: ragged nested array")

// Tensor is a dense row-major numeric array.
// Values holds product(Shape) elements; a zero-length Shape is a scalar.
type Tensor struct {
	Shape  []int
	Values []float64
}

// NewTensor validates that shape and values agree and that every value is finite.
func NewTensor(shape []int, values []float64) (Tensor, error) {
	n := 1
	for i, d := range shape {
		if d <= 0 {
			return Tensor{}, fmt.Errorf("tensor: dimension %d must be positive, got %d", i, d)
		}
		n *= d
	}
	if n != len(values) {
		return Tensor{}, fmt.Errorf("tensor: shape %v needs %d values, got %d", shape, n, len(values))
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Tensor{}, fmt.Errorf("tensor: value %d must be finite, got %f", i, v)
		}
	}
	return Tensor{Shape: shape, Values: values}, nil
}

// MarshalJSON renders the tensor as a plain nested array, e.g. [[1,2],[3,4]].
func (t Tensor) MarshalJSON() ([]byte, error) {
	return t.AppendJSON(nil), nil
}

// AppendJSON appends the nested-array form of t to dst.
func (t Tensor) AppendJSON(dst []byte) []byte {
	if len(t.Shape) == 0 {
		if len(t.Values) == 0 {
			return append(dst, "null"...)
		}
		return strconv.AppendFloat(dst, t.Values[0], 'f', -1, 64)
	}
	return t.appendDim(dst, 0, 0)
}

func (t Tensor) appendDim(dst []byte, dim, offset int) []byte {
	stride := 1
	for _, d := range t.Shape[dim+1:] {
		stride *= d
	}
	last := dim == len(t.Shape)-1
	dst = append(dst, '[')
	for i := 0; i < t.Shape[dim]; i++ {
		if i > 0 {
			dst = append(dst, ',')
		}
		if last {
			dst = strconv.AppendFloat(dst, t.Values[offset+i], 'f', -1, 64)
		} else {
			dst = t.appendDim(dst, dim+1, offset+i*stride)
		}
	}
	return append(dst, ']')
}

// UnmarshalJSON parses a rectangular nested numeric array.
func (t *Tensor) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	var shape []int
	var values []float64
	leaf := -1
	var walk func(v any, depth int) error
	walk = func(v any, depth int) error {
		switch x := v.(type) {
		case float64:
			if leaf == -1 {
				leaf = depth
			} else if leaf != depth {
				return errRaggedTensor
			}
			values = append(values, x)
			return nil
		case []any:
			if leaf != -1 && depth >= leaf {
				return errRaggedTensor
			}
			if depth == len(shape) {
				shape = append(shape, len(x))
			} else if shape[depth] != len(x) {
				return errRaggedTensor
			}
			for _, e := range x {
				if err := walk(e, depth+1); err != nil {
					return err
				}
			}
			return nil
		default:
			return fmt.Errorf("tensor: unexpected element of type %T", v)
		}
	}
	if err := walk(v, 0); err != nil {
		return err
	}
	if len(values) == 0 {
		return errors.New("tensor: no values")
	}
	t.Shape, t.Values = shape, values
	return nil
}

// Label is a sample category: an integer class index, or a class name when Name is set.
type Label struct {
	Index int
	Name  string
}

// IndexLabel returns an integer label.
func IndexLabel(i int) Label { return Label{Index: i} }

// NamedLabel returns a string label.
func NamedLabel(name string) Label { return Label{Name: name} }

func (l Label) String() string {
	if l.Name != "" {
		return l.Name
	}
	return strconv.Itoa(l.Index)
}

// MarshalJSON writes a JSON string for named labels and a JSON number otherwise.
func (l Label) MarshalJSON() ([]byte, error) {
	if l.Name != "" {
		return json.Marshal(l.Name)
	}
	return strconv.AppendInt(nil, int64(l.Index), 10), nil
}

// UnmarshalJSON accepts an integer or a string; null is rejected.
func (l *Label) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return errors.New("label must not be null")
	}
	if len(b) > 0 && b[0] == '"' {
		var name string
		if err := json.Unmarshal(b, &name); err != nil {
			return err
		}
		*l = NamedLabel(name)
		return nil
	}
	var idx int
	if err := json.Unmarshal(b, &idx); err != nil {
		return fmt.Errorf("label must be an integer or a string: %w", err)
	}
	*l = IndexLabel(idx)
	return nil
}

// Sample is one labeled record. Samples are never mutated after loading.
type Sample struct {
	Data  Tensor
	Label Label
}

// SampleLoader produces the training and held-out partitions found at path.
type SampleLoader interface {
	Load(path string) (train, heldOut []Sample, err error)
}

// Pool is the immutable, indexable set of samples a run draws from.
type Pool struct {
	samples []Sample
}

// NewPool concatenates the training and held-out partitions.
// Returns ErrEmptyPool if both are empty.
func NewPool(train, heldOut []Sample) (*Pool, error) {
	if len(train)+len(heldOut) == 0 {
		return nil, ErrEmptyPool
	}
	samples := make([]Sample, 0, len(train)+len(heldOut))
	samples = append(samples, train...)
	samples = append(samples, heldOut...)
	return &Pool{samples: samples}, nil
}

// LoadPool builds a Pool from whatever loader finds at path.
func LoadPool(loader SampleLoader, path string) (*Pool, error) {
	train, heldOut, err := loader.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading samples from %q: %w", path, err)
	}
	return NewPool(train, heldOut)
}

// Len returns the number of samples in the pool.
func (p *Pool) Len() int { return len(p.samples) }

// At returns the i-th sample. The returned value shares its data with the pool.
func (p *Pool) At(i int) Sample { return p.samples[i] }
