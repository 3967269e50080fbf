// Package store は TrainedState の永続化を担う外部コラボレータです。
//
// TrainedState は JSON（model.WriteStateJSON の形式）で保存され、読み込み時に
// 構造の不変条件が検証されます。FileStore はディレクトリ内のファイル、
// PostgresStore は trained_states テーブルの jsonb 列に保存します。
package store

import (
	"context"
	"regexp"

	"github.com/YuminosukeSato/latent/core/model"
	"github.com/YuminosukeSato/latent/pkg/errors"
)

// ErrNotFound is returned when no state is stored under a key.
var ErrNotFound = errors.New("trained state not found")

// Store persists trained states under string keys.
type Store interface {
	// Save stores state under key, replacing any previous state.
	Save(ctx context.Context, key string, state *model.TrainedState) error
	// Load returns the state stored under key or an error matching ErrNotFound.
	Load(ctx context.Context, key string) (*model.TrainedState, error)
	// Delete removes the state stored under key.
	Delete(ctx context.Context, key string) error
	// Keys lists the stored keys in sorted order.
	Keys(ctx context.Context) ([]string, error)
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateKey checks that key is usable by every Store implementation.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return errors.NewValidationError("key", "must match "+keyPattern.String(), key)
	}
	return nil
}

// SaveEstimator stores the current state of est under key.
func SaveEstimator(ctx context.Context, s Store, key string, est model.Estimator) error {
	state, ok := est.TrainedState()
	if !ok {
		return errors.NewNotFittedError(est.Name(), "SaveEstimator")
	}
	return s.Save(ctx, key, state)
}
