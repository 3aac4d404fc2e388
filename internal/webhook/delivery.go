// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/olegiv/pagecraft/internal/logging"
	"github.com/olegiv/pagecraft/internal/store"
)

// Delivery constants
const (
	MaxResponseLen = 10 * 1024 // Maximum response body kept for logging (10KB)
	UserAgent      = "Pagecraft-Webhook/1.0"
)

// Request headers set on every delivery.
const (
	HeaderSignature = "X-Pagecraft-Signature"
	HeaderEvent     = "X-Pagecraft-Event"
	HeaderDelivery  = "X-Pagecraft-Delivery"
)

// DeliveryResult represents the result of a delivery attempt.
type DeliveryResult struct {
	Success      bool
	StatusCode   int
	ResponseBody string
	Error        error
	ShouldRetry  bool
}

// processDelivery attempts a delivery until it succeeds, fails permanently
// or runs out of attempts.
func (d *Dispatcher) processDelivery(ctx context.Context, qd *QueuedDelivery) {
	var result DeliveryResult
	attempt := 1
	for ; ; attempt++ {
		result = d.attemptDelivery(ctx, qd)
		if result.Success {
			d.logger.Info("webhook delivered",
				"event_type", qd.Event,
				"event_id", qd.EventID,
				"url", qd.Endpoint.URL,
				"status_code", result.StatusCode,
				"attempts", attempt)
			return
		}
		if !result.ShouldRetry || attempt >= d.cfg.MaxAttempts {
			break
		}

		backoff := calculateBackoff(attempt, d.cfg.InitialBackoff, d.cfg.MaxBackoff)
		d.logger.Info("webhook delivery scheduled for retry",
			"event_type", qd.Event,
			"url", qd.Endpoint.URL,
			"attempt", attempt,
			"backoff", backoff.String(),
			"error", result.Error)
		if !d.wait(ctx, backoff) {
			break
		}
	}

	errMsg := ""
	if result.Error != nil {
		errMsg = result.Error.Error()
	}
	d.logger.Warn("webhook delivery failed",
		"event_type", qd.Event,
		"event_id", qd.EventID,
		"url", qd.Endpoint.URL,
		"attempts", attempt,
		"reason", errMsg,
		logging.Recorded())
	d.record(context.WithoutCancel(ctx), store.EventLevelError, "webhook delivery failed", map[string]any{
		"event":       qd.Event,
		"event_id":    qd.EventID,
		"url":         qd.Endpoint.URL,
		"attempts":    attempt,
		"status_code": result.StatusCode,
		"error":       errMsg,
	})
}

// wait sleeps for the backoff. It returns false when the dispatcher is
// stopping or ctx is done.
func (d *Dispatcher) wait(ctx context.Context, backoff time.Duration) bool {
	timer := time.NewTimer(backoff)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-d.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// attemptDelivery performs the actual HTTP POST request.
func (d *Dispatcher) attemptDelivery(ctx context.Context, qd *QueuedDelivery) DeliveryResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, qd.Endpoint.URL, bytes.NewReader(qd.Payload))
	if err != nil {
		return DeliveryResult{
			Error:       fmt.Errorf("failed to create request: %w", err),
			ShouldRetry: false,
		}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set(HeaderEvent, qd.Event)
	req.Header.Set(HeaderDelivery, qd.EventID)
	if qd.Endpoint.Secret != "" {
		req.Header.Set(HeaderSignature, SignaturePrefix+GenerateSignature(qd.Payload, qd.Endpoint.Secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return DeliveryResult{
			Error:       fmt.Errorf("request failed: %w", err),
			ShouldRetry: true,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseLen))
	responseBody := string(body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return DeliveryResult{
			Success:      true,
			StatusCode:   resp.StatusCode,
			ResponseBody: responseBody,
		}
	}

	// Client errors are permanent except 408 and 429; redirects are not
	// followed and count as client errors.
	shouldRetry := resp.StatusCode >= 500 ||
		resp.StatusCode == http.StatusRequestTimeout ||
		resp.StatusCode == http.StatusTooManyRequests
	return DeliveryResult{
		StatusCode:   resp.StatusCode,
		ResponseBody: responseBody,
		Error:        fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		ShouldRetry:  shouldRetry,
	}
}

// calculateBackoff returns initial * 2^(attempt-1), capped at maxBackoff.
func calculateBackoff(attempt int, initial, maxBackoff time.Duration) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	backoff := time.Duration(float64(initial) * math.Pow(2, float64(attempt-1)))
	if backoff > maxBackoff || backoff <= 0 {
		backoff = maxBackoff
	}
	return backoff
}
