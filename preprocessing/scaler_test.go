package preprocessing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/latent/pkg/errors"
)

func TestStandardScalerFitTransform(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1, 10,
		2, 10,
		3, 10,
		4, 10,
	})
	s := NewStandardScalerDefault()
	out, err := s.FitTransform(X)
	require.NoError(t, err)

	assert.Equal(t, []float64{2.5, 10}, s.Mean)
	assert.InDelta(t, math.Sqrt(1.25), s.Scale[0], 1e-12)
	assert.Equal(t, 1.0, s.Scale[1], "constant feature keeps unit scale")

	var sum float64
	for i := 0; i < 4; i++ {
		sum += out.At(i, 0)
		assert.Equal(t, 0.0, out.At(i, 1))
	}
	assert.InDelta(t, 0, sum, 1e-12)

	back, err := s.InverseTransform(out)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(X, back, 1e-12))
}

func TestStandardScalerCenterOnly(t *testing.T) {
	X := mat.NewDense(2, 2, []float64{0, 2, 4, 6})
	s := NewStandardScaler(true, false)
	out, err := s.FitTransform(X)
	require.NoError(t, err)
	assert.Nil(t, s.Scale)
	assert.True(t, mat.Equal(out, mat.NewDense(2, 2, []float64{-2, -2, 2, 2})))
	assert.Contains(t, s.String(), "n_features=2")
}

func TestStandardScalerErrors(t *testing.T) {
	s := NewStandardScalerDefault()
	_, err := s.Transform(mat.NewDense(1, 1, nil))
	assert.True(t, errors.Is(err, errors.ErrNotFitted))
	_, err = s.InverseTransform(mat.NewDense(1, 1, nil))
	assert.True(t, errors.Is(err, errors.ErrNotFitted))

	err = s.Fit(mat.NewDense(2, 2, []float64{1, math.NaN(), 3, 4}))
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
	assert.False(t, s.IsFitted())

	require.NoError(t, s.Fit(mat.NewDense(2, 2, []float64{1, 2, 3, 4})))
	_, err = s.Transform(mat.NewDense(2, 3, nil))
	assert.True(t, errors.Is(err, errors.ErrDimensionMismatch))
}

func TestNewStandardScalerFromStats(t *testing.T) {
	s, err := NewStandardScalerFromStats([]float64{1, 1}, []float64{2, 4})
	require.NoError(t, err)
	out, err := s.Transform(mat.NewDense(1, 2, []float64{3, 5}))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1}, mat.Row(nil, 0, out))

	_, err = NewStandardScalerFromStats([]float64{1, 1}, []float64{2})
	assert.True(t, errors.Is(err, errors.ErrDimensionMismatch))
	_, err = NewStandardScalerFromStats(nil, nil)
	assert.True(t, errors.Is(err, errors.ErrEmptyData))
}

func TestStandardizeLargeInputMatchesSequential(t *testing.T) {
	rows := 1000
	data := make([]float64, rows*3)
	for i := range data {
		data[i] = float64(i % 17)
	}
	X := mat.NewDense(rows, 3, data)
	mean := []float64{1, 2, 3}
	scale := []float64{2, 2, 2}

	out := Standardize(X, mean, scale)
	for i := 0; i < rows; i++ {
		for j := 0; j < 3; j++ {
			assert.Equal(t, (X.At(i, j)-mean[j])/scale[j], out.At(i, j))
		}
	}
	assert.True(t, mat.EqualApprox(X, Destandardize(out, mean, scale), 1e-12))
}
