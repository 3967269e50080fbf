package store

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/YuminosukeSato/latent/core/model"
	"github.com/YuminosukeSato/latent/pkg/errors"
)

const fileExt = ".json"

var _ Store = (*FileStore)(nil)

// FileStore keeps one JSON file per key in a directory.
// Save writes to a temporary file and renames it, so readers never see a partial file.
type FileStore struct {
	dir string
}

// NewFileStore returns a store rooted at dir, creating the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating store directory %s", dir)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the root directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+fileExt)
}

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, key string, state *model.TrainedState) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "."+key+"-*.tmp")
	if err != nil {
		return errors.Wrap(err, "creating temporary state file")
	}
	defer os.Remove(tmp.Name())

	if err := model.WriteStateJSON(tmp, state); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "closing temporary state file")
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		return errors.Wrapf(err, "storing state %s", key)
	}
	return nil
}

// Load implements Store.
func (s *FileStore) Load(ctx context.Context, key string) (*model.TrainedState, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "key %s", key)
		}
		return nil, errors.Wrapf(err, "opening state %s", key)
	}
	defer f.Close()
	return model.ReadStateJSON(f)
}

// Delete implements Store.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.path(key)); err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(ErrNotFound, "key %s", key)
		}
		return errors.Wrapf(err, "deleting state %s", key)
	}
	return nil
}

// Keys implements Store.
func (s *FileStore) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrap(err, "listing store directory")
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		key := strings.TrimSuffix(name, fileExt)
		if ValidateKey(key) == nil {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
