package model

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDensePredictAppliesSigmoid(t *testing.T) {
	m, err := NewDense([]int{2, 1}, []float32{1, -1}, 0)
	require.NoError(t, err)

	input := NewTensor(1, 2, 1)
	input.Data[0], input.Data[1] = 0.5, 0.5

	score, err := m.Predict(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), score)

	input.Data[0] = 1
	score, err = m.Predict(context.Background(), input)
	require.NoError(t, err)
	assert.InDelta(t, 0.6225, score, 1e-4)
}

func TestDensePredictRejectsWrongShape(t *testing.T) {
	m, err := NewDense([]int{2, 2, 1}, make([]float32, 4), 0)
	require.NoError(t, err)

	_, err = m.Predict(context.Background(), NewTensor(1, 3, 3, 1))
	assert.True(t, errors.Is(err, ErrShapeMismatch))

	_, err = m.Predict(context.Background(), NewTensor(2, 2, 2, 1))
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}

func TestNewDenseValidatesWeights(t *testing.T) {
	_, err := NewDense([]int{10, 10, 1}, make([]float32, 99), 0)
	assert.True(t, errors.Is(err, ErrShapeMismatch))

	_, err = NewDense(nil, nil, 0)
	assert.Error(t, err)

	_, err = NewDense([]int{0, 1}, nil, 0)
	assert.Error(t, err)
}

func TestLoadDense(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"input_shape":[1,2,1],"weights":[0.25,0.75],"bias":0.1}`), 0o600))

	m, err := LoadDense(path)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 1}, m.InputShape())

	_, err = LoadDense(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`not json`), 0o600))
	_, err = LoadDense(bad)
	assert.Error(t, err)
}

func TestTensorValidate(t *testing.T) {
	tensor := NewTensor(1, 100, 100, 1)
	assert.Equal(t, 10000, tensor.Len())
	assert.NoError(t, tensor.Validate(1, 100, 100, 1))
	assert.Error(t, tensor.Validate(1, 100, 100))

	broken := Tensor{Shape: []int{2, 2}, Data: make([]float32, 3)}
	assert.Error(t, broken.Validate())
}

func TestDenseModelIDTracksParameters(t *testing.T) {
	a, err := NewDense([]int{2, 1}, []float32{1, -1}, 0)
	require.NoError(t, err)
	same, err := NewDense([]int{2, 1}, []float32{1, -1}, 0)
	require.NoError(t, err)
	otherBias, err := NewDense([]int{2, 1}, []float32{1, -1}, 0.25)
	require.NoError(t, err)
	otherWeights, err := NewDense([]int{2, 1}, []float32{1, -2}, 0)
	require.NoError(t, err)

	assert.Equal(t, a.ModelID(), same.ModelID())
	assert.NotEqual(t, a.ModelID(), otherBias.ModelID())
	assert.NotEqual(t, a.ModelID(), otherWeights.ModelID())
	assert.Equal(t, a.ModelID(), ID(a))
	assert.Empty(t, ID(nil))
}
