// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package webhook

import (
	"context"
	"sync"
	"time"
)

// DebounceConfig holds debouncer configuration.
type DebounceConfig struct {
	// Interval is the quiet period after the last event for a key.
	Interval time.Duration
	// MaxWait caps how long an event may be held back.
	MaxWait time.Duration
}

// DefaultDebounceConfig returns default debounce configuration.
func DefaultDebounceConfig() DebounceConfig {
	return DebounceConfig{
		Interval: 1 * time.Second,
		MaxWait:  5 * time.Second,
	}
}

type pendingEvent struct {
	event     *Event
	timer     *time.Timer
	firstSeen time.Time
}

// Debouncer coalesces events about the same section, so a burst of reverts
// on one section produces a single delivery with the latest data. Events
// without a section key pass straight through.
type Debouncer struct {
	dispatcher *Dispatcher
	config     DebounceConfig
	pending    map[string]*pendingEvent
	mu         sync.Mutex
	wg         sync.WaitGroup
	stopped    bool
}

// NewDebouncer creates a new event debouncer.
func NewDebouncer(dispatcher *Dispatcher, config DebounceConfig) *Debouncer {
	if config.MaxWait < config.Interval {
		config.MaxWait = config.Interval
	}
	return &Debouncer{
		dispatcher: dispatcher,
		config:     config,
		pending:    make(map[string]*pendingEvent),
	}
}

// eventKey identifies the entity an event is about, or "" when the event
// must not be coalesced.
func eventKey(event *Event) string {
	var sectionID string
	switch data := event.Data.(type) {
	case map[string]string:
		sectionID = data["section_id"]
	case map[string]any:
		sectionID, _ = data["section_id"].(string)
	}
	if sectionID == "" {
		return ""
	}
	return event.Type + ":" + sectionID
}

// Dispatch queues an event for debounced delivery. A pending event with the
// same key is replaced and its timer reset.
func (d *Debouncer) Dispatch(ctx context.Context, event *Event) error {
	key := eventKey(event)
	if key == "" {
		return d.dispatcher.Dispatch(ctx, event)
	}

	now := time.Now()
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return ErrStopped
	}

	if existing, ok := d.pending[key]; ok {
		existing.event = event
		if now.Sub(existing.firstSeen) >= d.config.MaxWait {
			d.dispatchLocked(key)
			return nil
		}
		existing.timer.Reset(d.config.Interval)
		d.dispatcher.logger.Debug("debounced event updated",
			"key", key,
			"wait_time", now.Sub(existing.firstSeen))
		return nil
	}

	pe := &pendingEvent{event: event, firstSeen: now}
	pe.timer = time.AfterFunc(d.config.Interval, func() {
		d.mu.Lock()
		d.dispatchLocked(key)
		d.mu.Unlock()
	})
	d.pending[key] = pe
	d.dispatcher.logger.Debug("debounced event queued", "key", key)
	return nil
}

// dispatchLocked hands a pending event to the dispatcher. Must be called
// with lock held.
func (d *Debouncer) dispatchLocked(key string) {
	pe, ok := d.pending[key]
	if !ok {
		return
	}
	pe.timer.Stop()
	delete(d.pending, key)

	d.wg.Add(1)
	go func(event *Event) {
		defer d.wg.Done()
		if err := d.dispatcher.enqueue(event); err != nil {
			d.dispatcher.logger.Error("failed to dispatch debounced event",
				"error", err,
				"event_type", event.Type)
		}
	}(pe.event)
}

// Flush immediately dispatches all pending events.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key := range d.pending {
		d.dispatchLocked(key)
	}
}

// Stop flushes all pending events and waits until they are queued.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	for key := range d.pending {
		d.dispatchLocked(key)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// PendingCount returns the number of pending events.
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
