// Package model defines the classifier contract and the tensors passed to it.
package model

import (
	"context"
	"errors"
	"fmt"
)

// ErrShapeMismatch is returned when an input tensor does not have the shape a
// classifier expects.
var ErrShapeMismatch = errors.New("tensor shape mismatch")

// Tensor is a dense float32 tensor stored in row-major order.
type Tensor struct {
	Shape []int
	Data  []float32
}

// NewTensor allocates a zeroed tensor of the given shape.
func NewTensor(shape ...int) Tensor {
	return Tensor{Shape: append([]int(nil), shape...), Data: make([]float32, numElements(shape))}
}

// Len returns the number of elements implied by the shape.
func (t Tensor) Len() int {
	return numElements(t.Shape)
}

// Validate checks that Data matches Shape and, when want is non-empty, that
// Shape equals want.
func (t Tensor) Validate(want ...int) error {
	if len(t.Data) != t.Len() {
		return fmt.Errorf("%w: %d values for shape %v", ErrShapeMismatch, len(t.Data), t.Shape)
	}
	if len(want) == 0 {
		return nil
	}
	if len(want) != len(t.Shape) {
		return fmt.Errorf("%w: got %v, want %v", ErrShapeMismatch, t.Shape, want)
	}
	for i := range want {
		if want[i] != t.Shape[i] {
			return fmt.Errorf("%w: got %v, want %v", ErrShapeMismatch, t.Shape, want)
		}
	}
	return nil
}

// Classifier runs a forward pass over a single-example batch and returns the
// model's scalar output.
//
// Implementations are loaded once and must be safe for concurrent use.
type Classifier interface {
	Predict(ctx context.Context, input Tensor) (float32, error)
}

// Identifier is implemented by classifiers that can name the weights they
// serve. Cached scores are keyed by it.
type Identifier interface {
	ModelID() string
}

// ID returns c's model id, or "" when c does not implement Identifier.
func ID(c Classifier) string {
	if id, ok := c.(Identifier); ok {
		return id.ModelID()
	}
	return ""
}

func numElements(shape []int) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, dim := range shape {
		n *= dim
	}
	return n
}
