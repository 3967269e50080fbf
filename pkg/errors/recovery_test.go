package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestSafeExecuteRecoversPanic(t *testing.T) {
	err := SafeExecute("PCA.Fit", func() error {
		panic("eigendecomposition exploded")
	})
	require.Error(t, err)

	var perr *PanicError
	require.True(t, As(err, &perr))
	assert.Equal(t, "PCA.Fit", perr.Operation)
	assert.Equal(t, "eigendecomposition exploded", perr.Value)
	assert.NotEmpty(t, perr.Stack)
	assert.Equal(t, "latent: panic in PCA.Fit: eigendecomposition exploded", err.Error())
	assert.True(t, Is(err, ErrNumericFailure))
	assert.False(t, Is(err, ErrInvalidConfig))
}

func TestSafeExecutePassesThrough(t *testing.T) {
	assert.NoError(t, SafeExecute("noop", func() error { return nil }))

	want := NewValidationError("tol", "must be positive", -1.0)
	err := SafeExecute("Autoencoder.Fit", func() error { return want })
	assert.Same(t, want, err)
}

func TestRecoverUnwrapsGonumPanic(t *testing.T) {
	err := SafeExecute("Transform", func() error {
		var out mat.Dense
		out.Mul(mat.NewDense(2, 3, nil), mat.NewDense(2, 3, nil))
		return nil
	})
	require.Error(t, err)
	assert.True(t, Is(err, mat.ErrShape))
	assert.True(t, Is(err, ErrNumericFailure))
}

func TestRecoverKeepsExistingError(t *testing.T) {
	original := fmt.Errorf("partial update")
	fn := func() (err error) {
		defer Recover(&err, "QuantumAutoencoder.Fit")
		err = original
		panic("circuit diverged")
	}

	err := fn()
	require.Error(t, err)
	var perr *PanicError
	require.True(t, As(err, &perr))
	assert.Equal(t, "circuit diverged", perr.Value)
	assert.Contains(t, fmt.Sprintf("%+v", err), "partial update")
}

func TestRecoverConcurrent(t *testing.T) {
	const n = 16
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			errs <- SafeExecute("worker", func() error {
				if i%2 == 0 {
					panic(i)
				}
				return nil
			})
		}(i)
	}
	var panics int
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			assert.True(t, Is(err, ErrNumericFailure))
			panics++
		}
	}
	assert.Equal(t, n/2, panics)
}
