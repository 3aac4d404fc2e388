// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Cache tags. Read-side entries are stored under TagKey of one of these.
const (
	TagSections = "sections"
	TagVersions = "versions"
)

// AllTags lists every tag known to the gateway.
var AllTags = []string{TagSections, TagVersions}

// TagKey returns the raw cache key of an entry belonging to tag. Readers use
// Gateway.Key, which adds the tag generation.
func TagKey(tag, key string) string {
	return "tag:" + tag + ":" + key
}

func tagPrefix(tag string) string {
	return "tag:" + tag + ":"
}

// PathKey returns the raw cache key of a rendered public route. Readers use
// Gateway.RouteKey, which adds the generations of the bound tags.
func PathKey(route string) string {
	return "path:" + route
}

func routePrefix(route string) string {
	return PathKey(route) + "@"
}

// Invalidation describes one gateway run.
type Invalidation struct {
	Reason    string    `json:"reason"`
	Tags      []string  `json:"tags"`
	Paths     []string  `json:"paths"`
	At        time.Time `json:"at"`
	Escalated bool      `json:"escalated"`
}

// Gateway is the only component that removes entries from the cache. Every
// mutation that changes what the public site shows calls Revalidate once it
// has committed.
//
// Each tag has a generation that Revalidate bumps before deleting. Read-side
// keys embed it, so a value loaded before a revalidation is stored under a
// key that no later reader asks for.
type Gateway struct {
	cache  Cacher
	logger *slog.Logger

	mu     sync.RWMutex
	routes map[string][]string // tag -> public routes rendered from it
	gens   map[string]uint64
	last   *Invalidation

	runs        atomic.Int64
	escalations atomic.Int64
}

// NewGateway creates a gateway over cache. The public home page is bound to
// the sections tag.
func NewGateway(cache Cacher, logger *slog.Logger) *Gateway {
	return &Gateway{
		cache:  cache,
		logger: logger,
		routes: map[string][]string{
			TagSections: {"/"},
		},
		gens: make(map[string]uint64),
	}
}

// Cache returns the backend the gateway invalidates.
func (g *Gateway) Cache() Cacher {
	return g.cache
}

// Generation returns the current generation of tag.
func (g *Gateway) Generation(tag string) uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.gens[tag]
}

// Key returns the cache key of an entry of tag in the current generation.
// Capture it before loading the value it will hold.
func (g *Gateway) Key(tag, key string) string {
	return TagKey(tag, "g"+strconv.FormatUint(g.Generation(tag), 10)+":"+key)
}

// RouteKey returns the cache key of a rendered route in the current
// generations of the tags bound to it.
func (g *Gateway) RouteKey(route string) string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var tags []string
	for tag, routes := range g.routes {
		if slices.Contains(routes, route) {
			tags = append(tags, tag)
		}
	}
	slices.Sort(tags)

	var b strings.Builder
	b.WriteString(routePrefix(route))
	for i, tag := range tags {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(tag)
		b.WriteByte('.')
		b.WriteString(strconv.FormatUint(g.gens[tag], 10))
	}
	return b.String()
}

// BindRoute registers a public route whose rendering depends on tag.
func (g *Gateway) BindRoute(tag, route string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !slices.Contains(g.routes[tag], route) {
		g.routes[tag] = append(g.routes[tag], route)
	}
}

// Revalidate drops every entry of the given tags and the rendered routes
// bound to them. Without tags, all known tags are dropped. If a targeted
// delete fails, the whole cache is cleared; an error is returned only when
// that fails too.
func (g *Gateway) Revalidate(ctx context.Context, reason string, tags ...string) error {
	if len(tags) == 0 {
		tags = AllTags
	}

	g.mu.Lock()
	var paths []string
	for _, tag := range tags {
		g.gens[tag]++
		for _, route := range g.routes[tag] {
			if !slices.Contains(paths, route) {
				paths = append(paths, route)
			}
		}
	}
	g.mu.Unlock()

	inv := &Invalidation{
		Reason: reason,
		Tags:   slices.Clone(tags),
		Paths:  paths,
		At:     time.Now(),
	}
	g.runs.Add(1)

	var errs []error
	for _, tag := range tags {
		if err := g.cache.DeleteByPrefix(ctx, tagPrefix(tag)); err != nil {
			errs = append(errs, fmt.Errorf("tag %s: %w", tag, err))
		}
	}
	for _, route := range paths {
		if err := g.cache.DeleteByPrefix(ctx, routePrefix(route)); err != nil {
			errs = append(errs, fmt.Errorf("path %s: %w", route, err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		inv.Escalated = true
		g.escalations.Add(1)
		g.logger.Warn("targeted cache invalidation failed, clearing cache",
			"category", "cache", "reason", reason, "error", err)
		if clearErr := g.cache.Clear(ctx); clearErr != nil {
			g.record(inv)
			return fmt.Errorf("revalidate after %s: %w", reason, errors.Join(err, clearErr))
		}
	}

	g.record(inv)
	g.logger.Info("cache revalidated", "reason", reason, "tags", tags, "paths", paths)
	return nil
}

func (g *Gateway) record(inv *Invalidation) {
	g.mu.Lock()
	g.last = inv
	g.mu.Unlock()
}

// GatewayStats summarizes gateway activity.
type GatewayStats struct {
	Runs        int64         `json:"runs"`
	Escalations int64         `json:"escalations"`
	Last        *Invalidation `json:"last,omitempty"`
}

// Stats returns gateway counters and the most recent invalidation.
func (g *Gateway) Stats() GatewayStats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return GatewayStats{
		Runs:        g.runs.Load(),
		Escalations: g.escalations.Load(),
		Last:        g.last,
	}
}
