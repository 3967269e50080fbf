package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/latent/core/model"
	"github.com/YuminosukeSato/latent/decomposition"
	"github.com/YuminosukeSato/latent/pkg/errors"
)

func fittedPCA(t *testing.T, k int) *decomposition.PCA {
	t.Helper()
	X := mat.NewDense(10, 3, nil)
	for i := 0; i < 10; i++ {
		X.Set(i, 0, float64(i))
		X.Set(i, 1, float64(i*i%7))
		X.Set(i, 2, float64((3*i)%5)-2)
	}
	pca, err := decomposition.NewPCA(model.NewConfig(k, model.Params{decomposition.ParamScale: model.Bool(true)}))
	require.NoError(t, err)
	require.NoError(t, pca.Fit(X))
	return pca
}

// runStoreContract exercises the behaviour every Store must share.
func runStoreContract(t *testing.T, s Store) {
	ctx := context.Background()
	pca := fittedPCA(t, 2)
	want, _ := pca.TrainedState()

	require.NoError(t, SaveEstimator(ctx, s, "pca-v1", pca))
	got, err := s.Load(ctx, "pca-v1")
	require.NoError(t, err)
	assert.True(t, want.Equal(got, 0))

	// 上書き
	replacement, _ := fittedPCA(t, 1).TrainedState()
	require.NoError(t, s.Save(ctx, "pca-v1", replacement))
	got, err = s.Load(ctx, "pca-v1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.LatentDim())

	require.NoError(t, s.Save(ctx, "another.state", want))
	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"another.state", "pca-v1"}, keys)

	require.NoError(t, s.Delete(ctx, "pca-v1"))
	_, err = s.Load(ctx, "pca-v1")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
	assert.True(t, errors.Is(s.Delete(ctx, "pca-v1"), ErrNotFound))

	for _, bad := range []string{"", "../escape", "a/b", ".hidden"} {
		assert.True(t, errors.Is(s.Save(ctx, bad, want), errors.ErrInvalidConfig), "key %q", bad)
		_, err := s.Load(ctx, bad)
		assert.True(t, errors.Is(err, errors.ErrInvalidConfig), "key %q", bad)
	}

	unfitted, err := decomposition.NewPCA(model.NewConfig(1, nil))
	require.NoError(t, err)
	assert.True(t, errors.Is(SaveEstimator(ctx, s, "unfitted", unfitted), errors.ErrNotFitted))
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "states"))
	require.NoError(t, err)
	runStoreContract(t, s)
}

func TestFileStoreRejectsCorruptState(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "broken.json"), []byte("{not json"), 0o600))
	_, err = s.Load(ctx, "broken")
	assert.Error(t, err)

	// 構造の不変条件を満たさない状態
	invalid := `{"components": [[1, 2, 3]], "explained_variance_ratio": [0.5], "mean": [0, 0]}`
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "invalid.json"), []byte(invalid), 0o600))
	_, err = s.Load(ctx, "invalid")
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig), "got %v", err)
}

func TestFileStoreLoadedStateTransforms(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	pca := fittedPCA(t, 2)
	require.NoError(t, SaveEstimator(ctx, s, "pca", pca))

	loaded, err := s.Load(ctx, "pca")
	require.NoError(t, err)
	original, _ := pca.TrainedState()
	assert.Equal(t, original.Scale, loaded.Scale)
	whiten, ok := loaded.ModelParameters[decomposition.ParamWhiten].AsBool()
	assert.True(t, ok)
	assert.False(t, whiten)
	assert.NoError(t, loaded.Validate(true))
}

func TestFileStoreCancelledContext(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state, _ := fittedPCA(t, 1).TrainedState()
	assert.ErrorIs(t, s.Save(ctx, "k", state), context.Canceled)
	_, err = s.Load(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("LATENT_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("LATENT_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	s, err := NewPostgresStore(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.pool.Exec(ctx, "TRUNCATE trained_states")
	require.NoError(t, err)
	runStoreContract(t, s)
}
