package model

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

// Dense is a single fully connected layer with a sigmoid activation, read
// from a JSON artifact of the form
//
//	{"input_shape": [100, 100, 1], "weights": [...], "bias": -0.3}
//
// The weights are flattened in the same row-major order as the input tensor.
type Dense struct {
	inputShape []int
	weights    []float32
	bias       float32
	id         string
}

type denseArtifact struct {
	InputShape []int     `json:"input_shape"`
	Weights    []float32 `json:"weights"`
	Bias       float32   `json:"bias"`
}

// LoadDense reads a Dense model from path.
func LoadDense(path string) (*Dense, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact: %w", err)
	}

	var artifact denseArtifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		return nil, fmt.Errorf("decode model artifact %s: %w", path, err)
	}
	return NewDense(artifact.InputShape, artifact.Weights, artifact.Bias)
}

// NewDense builds a Dense model; len(weights) must equal the product of inputShape.
func NewDense(inputShape []int, weights []float32, bias float32) (*Dense, error) {
	if len(inputShape) == 0 {
		return nil, errors.New("model input shape is empty")
	}
	for _, dim := range inputShape {
		if dim <= 0 {
			return nil, fmt.Errorf("invalid model input shape %v", inputShape)
		}
	}
	if n := numElements(inputShape); n != len(weights) {
		return nil, fmt.Errorf("%w: %d weights for input shape %v", ErrShapeMismatch, len(weights), inputShape)
	}

	return &Dense{
		inputShape: append([]int(nil), inputShape...),
		weights:    append([]float32(nil), weights...),
		bias:       bias,
		id:         denseID(inputShape, weights, bias),
	}, nil
}

// ModelID identifies the parameters: two Dense models share an id only when
// shape, weights and bias are identical.
func (d *Dense) ModelID() string {
	return d.id
}

func denseID(inputShape []int, weights []float32, bias float32) string {
	h := sha256.New()
	for _, dim := range inputShape {
		_ = binary.Write(h, binary.LittleEndian, int64(dim))
	}
	_ = binary.Write(h, binary.LittleEndian, weights)
	_ = binary.Write(h, binary.LittleEndian, bias)
	return "dense:" + hex.EncodeToString(h.Sum(nil))[:16]
}

// InputShape returns the expected per-example shape, without the batch dimension.
func (d *Dense) InputShape() []int {
	return append([]int(nil), d.inputShape...)
}

// Predict expects a tensor shaped [1, inputShape...].
func (d *Dense) Predict(ctx context.Context, input Tensor) (float32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := input.Validate(append([]int{1}, d.inputShape...)...); err != nil {
		return 0, err
	}

	sum := float64(d.bias)
	for i, w := range d.weights {
		sum += float64(w) * float64(input.Data[i])
	}
	return float32(1 / (1 + math.Exp(-sum))), nil
}
