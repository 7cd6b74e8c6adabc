// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package detection

import (
	"context"
	"sync"
)

// Pool bounds concurrent detector executions across all in-flight events.
// A burst of events shares the same worker budget instead of multiplying
// goroutines by detector count.
type Pool struct {
	sem chan struct{}
}

// NewPool creates a pool of the given width.
func NewPool(width int) *Pool {
	if width <= 0 {
		width = 10
	}
	return &Pool{sem: make(chan struct{}, width)}
}

// Width returns the pool capacity.
func (p *Pool) Width() int { return cap(p.sem) }

// Go acquires a slot and runs fn on its own goroutine, releasing the slot
// when fn returns. Blocks until a slot frees or ctx is done; a context
// error means fn never ran.
func (p *Pool) Go(ctx context.Context, wg *sync.WaitGroup, fn func()) error {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	wg.Add(1)
	go func() {
		defer func() {
			<-p.sem
			wg.Done()
		}()
		fn()
	}()
	return nil
}
