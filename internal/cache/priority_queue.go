// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package cache

import (
	"sync"
)

// pqEntry is an entry in the priority queue.
type pqEntry[T any] struct {
	Key      string
	Value    T
	Priority int
	seq      uint64 // insertion order, FIFO tiebreak within a priority
	index    int
}

// PriorityQueue is a thread-safe max-priority queue with FIFO ordering
// within each priority tier. Push and Pop are O(log n).
//
// The alert manager uses it as the processing queue: critical alerts are
// drained first, and alerts of equal priority keep arrival order. Multiple
// event pipelines may push concurrently; a single drain loop pops.
type PriorityQueue[T any] struct {
	mu     sync.Mutex
	heap   []*pqEntry[T]
	byKey  map[string]*pqEntry[T]
	nexSeq uint64
	maxLen int // 0 = unlimited
}

// NewPriorityQueue creates a priority queue with optional maximum length.
func NewPriorityQueue[T any](maxLen int) *PriorityQueue[T] {
	return &PriorityQueue[T]{
		heap:   make([]*pqEntry[T], 0),
		byKey:  make(map[string]*pqEntry[T]),
		maxLen: maxLen,
	}
}

// Push enqueues a value with the given priority (higher drains first).
// Pushing an existing key updates its value and priority in place.
// When the queue is at capacity, the lowest-priority entry is dropped;
// the dropped value and true are returned.
func (q *PriorityQueue[T]) Push(key string, value T, priority int) (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T

	if existing, exists := q.byKey[key]; exists {
		existing.Value = value
		existing.Priority = priority
		q.fix(existing.index)
		return zero, false
	}

	entry := &pqEntry[T]{
		Key:      key,
		Value:    value,
		Priority: priority,
		seq:      q.nexSeq,
		index:    len(q.heap),
	}
	q.nexSeq++

	q.heap = append(q.heap, entry)
	q.byKey[key] = entry
	q.bubbleUp(entry.index)

	if q.maxLen > 0 && len(q.heap) > q.maxLen {
		dropped := q.dropLowest()
		if dropped != nil {
			return dropped.Value, true
		}
	}
	return zero, false
}

// Pop removes and returns the highest-priority entry.
// Returns false if the queue is empty.
func (q *PriorityQueue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.heap) == 0 {
		return zero, false
	}

	top := q.removeAt(0)
	return top.Value, true
}

// Peek returns the highest-priority value without removing it.
func (q *PriorityQueue[T]) Peek() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.heap) == 0 {
		return zero, false
	}
	return q.heap[0].Value, true
}

// Remove removes an entry by key. Returns false if not present.
func (q *PriorityQueue[T]) Remove(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, exists := q.byKey[key]
	if !exists {
		return false
	}
	q.removeAt(entry.index)
	return true
}

// Contains reports whether a key is queued.
func (q *PriorityQueue[T]) Contains(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, exists := q.byKey[key]
	return exists
}

// Len returns the number of queued entries.
func (q *PriorityQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// Internal heap operations, lock held.

// less orders entries: higher priority first, then earlier insertion.
func (q *PriorityQueue[T]) less(i, j int) bool {
	if q.heap[i].Priority != q.heap[j].Priority {
		return q.heap[i].Priority > q.heap[j].Priority
	}
	return q.heap[i].seq < q.heap[j].seq
}

func (q *PriorityQueue[T]) swap(i, j int) {
	q.heap[i], q.heap[j] = q.heap[j], q.heap[i]
	q.heap[i].index = i
	q.heap[j].index = j
}

func (q *PriorityQueue[T]) bubbleUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !q.less(i, parent) {
			break
		}
		q.swap(i, parent)
		i = parent
	}
}

func (q *PriorityQueue[T]) bubbleDown(i int) {
	n := len(q.heap)
	for {
		left, right := 2*i+1, 2*i+2
		smallest := i
		if left < n && q.less(left, smallest) {
			smallest = left
		}
		if right < n && q.less(right, smallest) {
			smallest = right
		}
		if smallest == i {
			return
		}
		q.swap(i, smallest)
		i = smallest
	}
}

func (q *PriorityQueue[T]) fix(i int) {
	q.bubbleUp(i)
	q.bubbleDown(i)
}

func (q *PriorityQueue[T]) removeAt(i int) *pqEntry[T] {
	entry := q.heap[i]
	last := len(q.heap) - 1

	q.swap(i, last)
	q.heap = q.heap[:last]
	delete(q.byKey, entry.Key)

	if i < last {
		q.fix(i)
	}
	return entry
}

// dropLowest removes the entry that would drain last. Lowest-priority
// entries are leaves of the max-heap, so a linear scan is required.
func (q *PriorityQueue[T]) dropLowest() *pqEntry[T] {
	if len(q.heap) == 0 {
		return nil
	}

	lowest := 0
	for i := 1; i < len(q.heap); i++ {
		if !q.less(i, lowest) {
			lowest = i
		}
	}
	return q.removeAt(lowest)
}
