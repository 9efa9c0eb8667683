// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
poster_cache.go - In-memory poster cache

Recommendation and continue-watching runs write the same posters for many
users. Images are kept in an LRU keyed by URL (doubly-linked list plus map,
O(1) get/add/evict) with a TTL. Concurrent misses for one URL share a single
download through singleflight.

Downloads larger than maxBytes, non-200 responses and bodies that do not
decode as JPEG, PNG or WebP are rejected and never cached.
*/

//nolint:staticcheck // File documentation, not package doc
package library

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"net/http"
	"sync"
	"time"

	_ "golang.org/x/image/webp" // register decoder
	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/marquee/internal/metrics"
)

const (
	defaultPosterCacheSize = 512
	defaultPosterMaxBytes  = 5 << 20
	defaultPosterTTL       = 24 * time.Hour
)

var (
	// ErrPosterTooLarge is returned when a download exceeds the size limit.
	ErrPosterTooLarge = errors.New("poster exceeds size limit")

	// ErrPosterInvalid is returned when the body is not a supported image.
	ErrPosterInvalid = errors.New("poster is not a supported image")
)

type posterEntry struct {
	key       string
	data      []byte
	prev      *posterEntry
	next      *posterEntry
	expiresAt time.Time
}

// PosterCache fetches and caches poster images.
type PosterCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	maxBytes int64
	items    map[string]*posterEntry
	head     *posterEntry
	tail     *posterEntry

	client *http.Client
	group  singleflight.Group
	now    func() time.Time
}

// NewPosterCache creates a cache holding up to capacity images of at most
// maxBytes each. Zero values take defaults.
func NewPosterCache(capacity int, maxBytes int64, client *http.Client) *PosterCache {
	if capacity <= 0 {
		capacity = defaultPosterCacheSize
	}
	if maxBytes <= 0 {
		maxBytes = defaultPosterMaxBytes
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	c := &PosterCache{
		capacity: capacity,
		ttl:      defaultPosterTTL,
		maxBytes: maxBytes,
		items:    make(map[string]*posterEntry, capacity),
		head:     &posterEntry{},
		tail:     &posterEntry{},
		client:   client,
		now:      time.Now,
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// Fetch returns the image at url, downloading it on a miss.
func (c *PosterCache) Fetch(ctx context.Context, url string) ([]byte, error) {
	if data, ok := c.get(url); ok {
		metrics.RecordPosterCache("hit")
		return data, nil
	}

	v, err, _ := c.group.Do(url, func() (any, error) {
		if data, ok := c.get(url); ok {
			return data, nil
		}
		data, err := c.download(ctx, url)
		if err != nil {
			return nil, err
		}
		c.add(url, data)
		return data, nil
	})
	if err != nil {
		metrics.RecordPosterCache("error")
		return nil, err
	}
	metrics.RecordPosterCache("miss")
	return v.([]byte), nil
}

// Len returns the number of cached images.
func (c *PosterCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *PosterCache) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create poster request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch poster: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch poster: status %d", resp.StatusCode)
	}
	if resp.ContentLength > c.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrPosterTooLarge, resp.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read poster: %w", err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrPosterTooLarge, c.maxBytes)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPosterInvalid, err)
	}
	return data, nil
}

func (c *PosterCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.removeEntry(entry)
		return nil, false
	}
	c.moveToFront(entry)
	return entry.data, true
}

func (c *PosterCache) add(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(c.ttl)
	if entry, ok := c.items[key]; ok {
		entry.data = data
		entry.expiresAt = expiresAt
		c.moveToFront(entry)
		return
	}

	entry := &posterEntry{key: key, data: data, expiresAt: expiresAt}
	c.addToFront(entry)
	c.items[key] = entry
	for len(c.items) > c.capacity {
		c.removeEntry(c.tail.prev)
	}
	metrics.PosterCacheEntries.Set(float64(len(c.items)))
}

// List helpers; callers hold mu.

func (c *PosterCache) addToFront(entry *posterEntry) {
	entry.prev = c.head
	entry.next = c.head.next
	c.head.next.prev = entry
	c.head.next = entry
}

func (c *PosterCache) moveToFront(entry *posterEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	c.addToFront(entry)
}

func (c *PosterCache) removeEntry(entry *posterEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	delete(c.items, entry.key)
}
