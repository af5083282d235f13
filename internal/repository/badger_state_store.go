package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"PerpHelm/internal/domain/models"
)

const governorStateKey = "governor/state"

// BadgerStateStore persists governor state in an embedded badger db so
// cooldowns and the active plan survive a restart.
type BadgerStateStore struct {
	db *badger.DB
}

func NewBadgerStateStore(path string, inMemory bool) (*BadgerStateStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	return &BadgerStateStore{db: db}, nil
}

// LoadGovernorState returns the persisted snapshot, or nil when none
// has been written yet.
func (s *BadgerStateStore) LoadGovernorState(_ context.Context) (*models.GovernorState, error) {
	var state *models.GovernorState
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(governorStateKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			state = &models.GovernorState{}
			return json.Unmarshal(val, state)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load governor state: %w", err)
	}
	return state, nil
}

func (s *BadgerStateStore) SaveGovernorState(_ context.Context, state *models.GovernorState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal governor state: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(governorStateKey), data)
	})
	if err != nil {
		return fmt.Errorf("save governor state: %w", err)
	}
	return nil
}

func (s *BadgerStateStore) Close() error {
	return s.db.Close()
}
