package store

import (
	"bytes"
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/YuminosukeSato/latent/core/model"
	"github.com/YuminosukeSato/latent/pkg/errors"
)

const (
	createTableSQL = `CREATE TABLE IF NOT EXISTS trained_states (
	key        text PRIMARY KEY,
	state      jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
)`
	upsertSQL = `INSERT INTO trained_states (key, state, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`
	selectSQL = `SELECT state FROM trained_states WHERE key = $1`
	deleteSQL = `DELETE FROM trained_states WHERE key = $1`
	keysSQL   = `SELECT key FROM trained_states ORDER BY key`
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore keeps states in the trained_states table as jsonb.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and creates the table if it is missing.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to postgres")
	}
	s := NewPostgresStoreFromPool(pool)
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreFromPool uses an existing pool. The schema is not touched.
func NewPostgresStoreFromPool(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the trained_states table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createTableSQL); err != nil {
		return errors.Wrap(err, "creating trained_states table")
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() { s.pool.Close() }

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, key string, state *model.TrainedState) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := model.WriteStateJSON(&buf, state); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, upsertSQL, key, buf.String()); err != nil {
		return errors.Wrapf(err, "storing state %s", key)
	}
	return nil
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context, key string) (*model.TrainedState, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	var raw []byte
	if err := s.pool.QueryRow(ctx, selectSQL, key).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrapf(ErrNotFound, "key %s", key)
		}
		return nil, errors.Wrapf(err, "loading state %s", key)
	}
	return model.ReadStateJSON(bytes.NewReader(raw))
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, deleteSQL, key)
	if err != nil {
		return errors.Wrapf(err, "deleting state %s", key)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(ErrNotFound, "key %s", key)
	}
	return nil
}

// Keys implements Store.
func (s *PostgresStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, keysSQL)
	if err != nil {
		return nil, errors.Wrap(err, "listing states")
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrap(err, "listing states")
	}
	return keys, nil
}
