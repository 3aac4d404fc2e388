// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package editor collects pending section edits and saves them one by one.
package editor

import (
	"context"
	"slices"
	"sync"
)

// Saver persists one pending change.
type Saver[T any] func(ctx context.Context, id string, v T) error

// Result is the outcome of flushing one entry.
type Result struct {
	ID  string
	Err error
}

type dirtyEntry[T any] struct {
	value T
	gen   uint64
}

// DirtySet tracks which sections have unsaved changes. Marking an id twice
// keeps only the latest value and the position of the first mark.
type DirtySet[T any] struct {
	mu      sync.Mutex
	order   []string
	pending map[string]dirtyEntry[T]
	gen     uint64
}

// NewDirtySet creates an empty set.
func NewDirtySet[T any]() *DirtySet[T] {
	return &DirtySet[T]{pending: make(map[string]dirtyEntry[T])}
}

// Mark records v as the unsaved value of id.
func (d *DirtySet[T]) Mark(id string, v T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.pending[id]; !ok {
		d.order = append(d.order, id)
	}
	d.gen++
	d.pending[id] = dirtyEntry[T]{value: v, gen: d.gen}
}

// IDs returns the dirty ids in the order they were first marked.
func (d *DirtySet[T]) IDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.order)
}

// Flush saves every dirty entry in mark order. Saved entries leave the set;
// failed ones stay dirty, as do entries marked again while their save ran.
// Flush stops early when ctx is done and leaves the rest dirty.
func (d *DirtySet[T]) Flush(ctx context.Context, save Saver[T]) []Result {
	d.mu.Lock()
	ids := slices.Clone(d.order)
	snapshot := make(map[string]dirtyEntry[T], len(d.pending))
	for k, v := range d.pending {
		snapshot[k] = v
	}
	d.mu.Unlock()

	results := make([]Result, 0, len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		entry := snapshot[id]
		err := save(ctx, id, entry.value)
		results = append(results, Result{ID: id, Err: err})
		if err == nil {
			d.clear(id, entry.gen)
		}
	}
	return results
}

// clear removes id if it still holds the value of generation gen.
func (d *DirtySet[T]) clear(id string, gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.pending[id]; !ok || e.gen != gen {
		return
	}
	delete(d.pending, id)
	if i := slices.Index(d.order, id); i >= 0 {
		d.order = slices.Delete(d.order, i, i+1)
	}
}
