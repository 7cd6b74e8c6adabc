// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package honeytrap

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Key prefixes for BadgerDB storage.
const (
	trapKeyPrefix        = "trap:"
	trapCaseKeyPrefix    = "trap_case:"
	triggerKeyPrefix     = "trigger:"
	triggerTrapKeyPrefix = "trigger_trap:"
)

// ErrTrapNotFound is returned when a trap ID does not exist.
var ErrTrapNotFound = errors.New("trap not found")

// BadgerStore persists traps and their triggers in BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore wraps an open BadgerDB handle.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// SaveTrap stores a trap and its case index entry.
func (s *BadgerStore) SaveTrap(trap *Trap) error {
	data, err := json.Marshal(trap)
	if err != nil {
		return fmt.Errorf("marshal trap: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(trapKeyPrefix+trap.ID), data); err != nil {
			return fmt.Errorf("set trap: %w", err)
		}
		caseKey := []byte(trapCaseKeyPrefix + trap.CaseID + ":" + trap.ID)
		if err := txn.Set(caseKey, []byte(trap.ID)); err != nil {
			return fmt.Errorf("set case index: %w", err)
		}
		return nil
	})
}

// GetTrap retrieves a trap by ID.
func (s *BadgerStore) GetTrap(id string) (*Trap, error) {
	var trap Trap
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(trapKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrTrapNotFound
		}
		if err != nil {
			return fmt.Errorf("get trap: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &trap)
		})
	})
	if err != nil {
		return nil, err
	}
	return &trap, nil
}

// ListTraps returns every stored trap, optionally filtered to one case.
func (s *BadgerStore) ListTraps(caseID string) ([]Trap, error) {
	var traps []Trap
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(trapKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var trap Trap
				if err := json.Unmarshal(val, &trap); err != nil {
					return err
				}
				if caseID == "" || trap.CaseID == caseID {
					traps = append(traps, trap)
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("decode trap: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return traps, nil
}

// DeleteTrap removes a trap and its index entry. Triggers are kept for
// the audit trail.
func (s *BadgerStore) DeleteTrap(id string) error {
	trap, err := s.GetTrap(id)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(trapKeyPrefix + id)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete trap: %w", err)
		}
		caseKey := []byte(trapCaseKeyPrefix + trap.CaseID + ":" + id)
		if err := txn.Delete(caseKey); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete case index: %w", err)
		}
		return nil
	})
}

// SaveTrigger records a trap activation and indexes it under its trap.
func (s *BadgerStore) SaveTrigger(trigger *Trigger) error {
	data, err := json.Marshal(trigger)
	if err != nil {
		return fmt.Errorf("marshal trigger: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(triggerKeyPrefix+trigger.ID), data); err != nil {
			return fmt.Errorf("set trigger: %w", err)
		}
		trapKey := []byte(triggerTrapKeyPrefix + trigger.TrapID + ":" + trigger.ID)
		if err := txn.Set(trapKey, []byte(trigger.ID)); err != nil {
			return fmt.Errorf("set trap index: %w", err)
		}
		return nil
	})
}

// ListTriggers returns recorded activations, optionally filtered to one
// trap.
func (s *BadgerStore) ListTriggers(trapID string) ([]Trigger, error) {
	var triggers []Trigger
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(triggerKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var trigger Trigger
				if err := json.Unmarshal(val, &trigger); err != nil {
					return err
				}
				if trapID == "" || trigger.TrapID == trapID {
					triggers = append(triggers, trigger)
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("decode trigger: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return triggers, nil
}
