// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/ragpilot/core"
	"github.com/poiesic/ragpilot/storage"
)

// StateRepository implements storage.StateRepository for BadgerDB.
type StateRepository struct {
	backend *Backend
}

var _ storage.StateRepository = (*StateRepository)(nil)

func NewStateRepository(backend *Backend) storage.StateRepository {
	return &StateRepository{
		backend: backend,
	}
}

func (r *StateRepository) SaveSelection(ctx context.Context, selection *core.Selection) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if selection == nil || selection.ProjectID.IsZero() {
			if err := tx.Delete([]byte(selectionKey)); err != nil {
				return err
			}
			return tx.Commit()
		}

		selection.UpdatedAt = time.Now().UTC()
		if err := tx.Set([]byte(selectionKey), storage.MarshalSelection(selection)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

func (r *StateRepository) LoadSelection(ctx context.Context) (*core.Selection, error) {
	var selection *core.Selection
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(selectionKey))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}

		return item.Value(func(val []byte) error {
			var unmarshalErr error
			selection, unmarshalErr = storage.UnmarshalSelection(val)
			return unmarshalErr
		})
	}, false)

	return selection, err
}
