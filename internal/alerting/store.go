// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package alerting

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const alertKeyPrefix = "alert:"

// ErrAlertNotFound is returned when an alert ID does not exist.
var ErrAlertNotFound = errors.New("alert not found")

// BadgerStore persists alerts in BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore wraps an open BadgerDB handle.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Save stores an alert, overwriting any previous version.
func (s *BadgerStore) Save(alert *Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(alertKeyPrefix+alert.ID), data)
	})
}

// Get retrieves an alert by ID.
func (s *BadgerStore) Get(id string) (*Alert, error) {
	var alert Alert
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(alertKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrAlertNotFound
		}
		if err != nil {
			return fmt.Errorf("get alert: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &alert)
		})
	})
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

// List returns stored alerts matching the filter, newest first.
func (s *BadgerStore) List(filter ListFilter) ([]Alert, error) {
	var alerts []Alert
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(alertKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var alert Alert
				if err := json.Unmarshal(val, &alert); err != nil {
					return err
				}
				if matchesFilter(&alert, filter) {
					alerts = append(alerts, alert)
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("decode alert: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
	})
	if filter.Limit > 0 && len(alerts) > filter.Limit {
		alerts = alerts[:filter.Limit]
	}
	return alerts, nil
}

func matchesFilter(alert *Alert, filter ListFilter) bool {
	if filter.Status != "" && alert.Status != filter.Status {
		return false
	}
	if filter.Type != "" && alert.Type != filter.Type {
		return false
	}
	if filter.Fingerprint != "" && alert.Fingerprint != filter.Fingerprint {
		return false
	}
	if filter.CaseID != "" && alert.CaseID != filter.CaseID {
		return false
	}
	if !filter.Since.IsZero() && alert.CreatedAt.Before(filter.Since) {
		return false
	}
	return true
}
