// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/olegiv/pagecraft/internal/logging"
	"github.com/olegiv/pagecraft/internal/store"
)

// SignaturePrefix precedes the hex digest in the signature header.
const SignaturePrefix = "sha256="

// ErrStopped is returned when an event arrives after Stop.
var ErrStopped = errors.New("webhook dispatcher stopped")

// Endpoint is a delivery target.
type Endpoint struct {
	URL    string
	Secret string
}

// Recorder persists delivery failures to the event log.
type Recorder interface {
	CreateEvent(ctx context.Context, arg store.CreateEventParams) error
}

// Config holds dispatcher configuration.
type Config struct {
	Workers        int
	QueueSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
	// AllowPrivateNetworks skips the SSRF checks. Local development only.
	AllowPrivateNetworks bool
	// Debounce coalesces events for the same section. A zero Interval
	// disables it.
	Debounce DebounceConfig
}

// DefaultConfig returns default dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		Workers:        3,
		QueueSize:      100,
		MaxAttempts:    5,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     2 * time.Minute,
		Timeout:        10 * time.Second,
		Debounce:       DefaultDebounceConfig(),
	}
}

// QueuedDelivery is one event waiting for one endpoint.
type QueuedDelivery struct {
	Event    string
	EventID  string
	Payload  []byte
	Endpoint Endpoint
}

// Dispatcher fans workflow events out to the configured endpoints on a pool
// of workers, retrying failed deliveries with exponential backoff.
type Dispatcher struct {
	endpoints []Endpoint
	recorder  Recorder
	logger    *slog.Logger
	cfg       Config
	client    *http.Client
	debouncer *Debouncer

	queue chan *QueuedDelivery
	done  chan struct{}
	wg    sync.WaitGroup

	mu        sync.RWMutex
	started   bool
	accepting bool
	queueOpen bool
}

// NewDispatcher validates the endpoints and creates a dispatcher. recorder
// may be nil.
func NewDispatcher(endpoints []Endpoint, recorder Recorder, logger *slog.Logger, cfg Config) (*Dispatcher, error) {
	defaults := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaults.InitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	checkCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, ep := range endpoints {
		if err := checkEndpoint(checkCtx, net.DefaultResolver, ep.URL, cfg.AllowPrivateNetworks); err != nil {
			return nil, fmt.Errorf("webhook endpoint %s: %w", ep.URL, err)
		}
	}

	d := &Dispatcher{
		endpoints: endpoints,
		recorder:  recorder,
		logger:    logger,
		cfg:       cfg,
		client:    newHTTPClient(cfg),
		queue:     make(chan *QueuedDelivery, cfg.QueueSize),
		done:      make(chan struct{}),
	}
	if cfg.Debounce.Interval > 0 {
		d.debouncer = NewDebouncer(d, cfg.Debounce)
	}
	return d, nil
}

func newHTTPClient(cfg Config) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	if cfg.AllowPrivateNetworks {
		transport.DialContext = dialer.DialContext
	} else {
		transport.DialContext = guardedDial(dialer, net.DefaultResolver)
	}
	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Start starts the delivery workers. A stopped dispatcher cannot be
// restarted.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.accepting = true
	d.queueOpen = true
	d.mu.Unlock()

	d.logger.Info("starting webhook dispatcher", "workers", d.cfg.Workers, "endpoints", len(d.endpoints))
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
}

// Stop stops accepting events, flushes debounced ones and waits until the
// queue is drained. Deliveries drained after Stop get a single attempt.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.accepting {
		d.mu.Unlock()
		return
	}
	d.accepting = false
	d.mu.Unlock()

	d.logger.Info("stopping webhook dispatcher")
	if d.debouncer != nil {
		d.debouncer.Stop()
	}
	close(d.done)

	d.mu.Lock()
	d.queueOpen = false
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("webhook dispatcher stopped")
}

// Notify queues a workflow event for delivery. Errors are logged.
func (d *Dispatcher) Notify(ctx context.Context, event string, data any) {
	evt := NewEvent(event, data)
	if d.debouncer != nil {
		if err := d.debouncer.Dispatch(ctx, evt); err != nil {
			d.logger.Warn("failed to queue webhook event", "event_type", event, "error", err)
		}
		return
	}
	if err := d.Dispatch(ctx, evt); err != nil {
		d.logger.Warn("failed to queue webhook event", "event_type", event, "error", err)
	}
}

// Dispatch queues an event for every endpoint.
func (d *Dispatcher) Dispatch(_ context.Context, event *Event) error {
	d.mu.RLock()
	accepting := d.accepting
	d.mu.RUnlock()
	if !accepting {
		d.logger.Warn("dispatcher not running, cannot dispatch event", "event_type", event.Type)
		return ErrStopped
	}
	return d.enqueue(event)
}

// enqueue bypasses the accepting check so the debouncer can flush during
// Stop.
func (d *Dispatcher) enqueue(event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event %s: %w", event.Type, err)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.queueOpen {
		return ErrStopped
	}

	for _, ep := range d.endpoints {
		qd := &QueuedDelivery{
			Event:    event.Type,
			EventID:  event.ID,
			Payload:  payload,
			Endpoint: ep,
		}
		select {
		case d.queue <- qd:
			d.logger.Debug("delivery queued", "event_type", event.Type, "event_id", event.ID, "url", ep.URL)
		default:
			d.logger.Warn("delivery queue full, dropping delivery", "event_type", event.Type, "url", ep.URL, logging.Recorded())
			d.record(context.Background(), store.EventLevelWarning, "webhook delivery dropped", map[string]any{
				"event": event.Type, "event_id": event.ID, "url": ep.URL, "reason": "queue full",
			})
		}
	}
	return nil
}

// QueueLength returns the number of deliveries waiting for a worker.
func (d *Dispatcher) QueueLength() int {
	return len(d.queue)
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	d.logger.Debug("webhook worker started", "worker_id", id)

	for qd := range d.queue {
		d.processDelivery(ctx, qd)
	}
	d.logger.Debug("webhook worker stopping", "worker_id", id)
}

// record writes a webhook event to the event log.
func (d *Dispatcher) record(ctx context.Context, level, message string, metadata map[string]any) {
	if d.recorder == nil {
		return
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		encoded = []byte("{}")
	}
	if err := d.recorder.CreateEvent(ctx, store.CreateEventParams{
		Level:     level,
		Category:  store.EventCategoryWebhook,
		Message:   message,
		Metadata:  string(encoded),
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		d.logger.Warn("failed to record webhook event", "message", message, "error", err)
	}
}

// GenerateSignature generates an HMAC-SHA256 signature for the payload.
func GenerateSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature verifies an HMAC-SHA256 signature, with or without the
// sha256= prefix.
func VerifySignature(payload []byte, signature, secret string) bool {
	signature = strings.TrimPrefix(signature, SignaturePrefix)
	expectedSig := GenerateSignature(payload, secret)
	return hmac.Equal([]byte(signature), []byte(expectedSig))
}
