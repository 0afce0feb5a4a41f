package badger

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/ragpilot/core"
	"github.com/poiesic/ragpilot/storage"
)

// RunRepository implements storage.RunRepository for BadgerDB.
type RunRepository struct {
	backend *Backend
}

var _ storage.RunRepository = (*RunRepository)(nil)

// NewRunRepository creates a run journal on backend.
func NewRunRepository(backend *Backend) storage.RunRepository {
	return &RunRepository{backend: backend}
}

// Close is a no-op; the backend is closed by its owner.
func (r *RunRepository) Close() error {
	return nil
}

// AddRun stores run and its index entries. Replacing a run drops the index
// entries of the previous version.
func (r *RunRepository) AddRun(ctx context.Context, run *core.PipelineRun) error {
	if r.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	if run == nil || run.StartedAt.IsZero() {
		return fmt.Errorf("%w: missing start time", storage.ErrInvalidRun)
	}
	value, err := storage.MarshalRun(run)
	if err != nil {
		return err
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeRunKey(run.ID)

		old, err := r.readRun(tx, key)
		if err != nil {
			return err
		}
		if old != nil {
			if err := tx.Delete(makeRunTimeKey(old.StartedAt, old.ID)); err != nil {
				return err
			}
			if err := tx.Delete(makeRunProjectKey(old.ProjectID, old.StartedAt, old.ID)); err != nil {
				return err
			}
		}

		if err := tx.Set(key, value); err != nil {
			return err
		}
		if err := tx.Set(makeRunTimeKey(run.StartedAt, run.ID), []byte(run.ID)); err != nil {
			return err
		}
		if err := tx.Set(makeRunProjectKey(run.ProjectID, run.StartedAt, run.ID), []byte(run.ID)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetRun retrieves a run by ID.
func (r *RunRepository) GetRun(ctx context.Context, id string) (*core.PipelineRun, error) {
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	var run *core.PipelineRun
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		run, err = r.readRun(tx, makeRunKey(id))
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, storage.ErrNotFound
	}
	return run, nil
}

// ListRuns returns runs most recently started first.
func (r *RunRepository) ListRuns(ctx context.Context, projectID core.ProjectID, limit int) ([]*core.PipelineRun, error) {
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	prefix := []byte(runTimePrefix + ":")
	if !projectID.IsZero() {
		prefix = makePartialRunProjectKey(projectID)
	}

	var results []*core.PipelineRun
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		// Use reverse iterator to get most recent runs first
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(prefixEnd(prefix)); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := iter.Item()
			if !bytes.HasPrefix(item.Key(), prefix) {
				break
			}

			id, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			run, err := r.readRun(tx, makeRunKey(string(id)))
			if err != nil {
				return err
			}
			if run == nil {
				// Dangling index entry
				r.backend.logger.Warn("run index points to missing run", "id", string(id))
				continue
			}
			results = append(results, run)
			if limit > 0 && len(results) >= limit {
				break
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// readRun returns nil without error when key does not exist.
func (r *RunRepository) readRun(tx *badger.Txn, key []byte) (*core.PipelineRun, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var run *core.PipelineRun
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		run, unmarshalErr = storage.UnmarshalRun(val)
		return unmarshalErr
	})
	return run, err
}

// PruneRuns deletes runs started before cutoff and returns how many were removed.
func (r *RunRepository) PruneRuns(ctx context.Context, cutoff time.Time) (int, error) {
	if r.backend.IsClosed() {
		return 0, storage.ErrStorageClosed
	}

	var stale []*core.PipelineRun
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(runTimePrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		end := makeRunTimeKey(cutoff, "")
		for iter.Rewind(); iter.Valid(); iter.Next() {
			item := iter.Item()
			if bytes.Compare(item.Key(), end) >= 0 {
				break
			}
			id, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			run, err := r.readRun(tx, makeRunKey(string(id)))
			if err != nil {
				return err
			}
			if run != nil {
				stale = append(stale, run)
			}
		}
		return nil
	}, false)
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	err = r.backend.WithTx(func(tx *badger.Txn) error {
		for _, run := range stale {
			for _, key := range [][]byte{
				makeRunKey(run.ID),
				makeRunTimeKey(run.StartedAt, run.ID),
				makeRunProjectKey(run.ProjectID, run.StartedAt, run.ID),
			} {
				if err := tx.Delete(key); err != nil {
					return err
				}
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return 0, err
	}
	return len(stale), nil
}
