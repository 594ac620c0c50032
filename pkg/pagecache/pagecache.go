// Package pagecache keeps rendered pages and layer scripts in memory so
// repeated requests within the TTL skip the database and template work.
// One goroutine owns the map; callers talk to it over channels.
package pagecache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("cache disabled")
	ErrStopped  = errors.New("cache stopped")
	errNoLoader = errors.New("no loader")
)

// Loader produces the bytes for a key on a miss.
type Loader func(context.Context) ([]byte, error)

type request struct {
	ctx    context.Context
	key    string
	loader Loader
	purge  bool
	count  bool
	reply  chan response
}

type response struct {
	data []byte
	n    int
	err  error
}

type entry struct {
	data    []byte
	expires time.Time
}

// Cache is a TTL cache. A nil *Cache is valid and always reports ErrDisabled.
type Cache struct {
	ttl      time.Duration
	requests chan request
	quit     chan struct{}
	now      func() time.Time
}

// Option customises a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New starts the owner goroutine. It returns nil when ttl <= 0.
func New(ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		return nil
	}
	c := &Cache{
		ttl:      ttl,
		requests: make(chan request),
		quit:     make(chan struct{}),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.loop()
	return c
}

// Close stops the goroutine. Safe to call more than once.
func (c *Cache) Close() {
	if c == nil {
		return
	}
	select {
	case <-c.quit:
		return
	default:
	}
	close(c.quit)
}

// Get returns the cached bytes for key or calls loader to produce them.
// Failed loads are not cached. The returned slice is a private copy.
func (c *Cache) Get(ctx context.Context, key string, loader Loader) ([]byte, error) {
	resp, err := c.send(ctx, request{key: key, loader: loader})
	if err != nil {
		return nil, err
	}
	if resp.err != nil {
		return nil, resp.err
	}
	if resp.data == nil {
		return nil, nil
	}
	out := make([]byte, len(resp.data))
	copy(out, resp.data)
	return out, nil
}

// Purge drops every entry, e.g. after the layer config was reloaded.
func (c *Cache) Purge(ctx context.Context) error {
	_, err := c.send(ctx, request{purge: true})
	return err
}

// size reports how many entries the store holds, expired ones included.
func (c *Cache) size(ctx context.Context) (int, error) {
	resp, err := c.send(ctx, request{count: true})
	return resp.n, err
}

func (c *Cache) send(ctx context.Context, req request) (response, error) {
	if c == nil {
		return response{}, ErrDisabled
	}
	if err := ctx.Err(); err != nil {
		return response{}, err
	}
	select {
	case <-c.quit:
		return response{}, ErrStopped
	default:
	}
	req.ctx = ctx
	req.reply = make(chan response, 1)
	select {
	case <-ctx.Done():
		return response{}, ctx.Err()
	case <-c.quit:
		return response{}, ErrStopped
	case c.requests <- req:
	}
	select {
	case <-ctx.Done():
		return response{}, ctx.Err()
	case <-c.quit:
		return response{}, ErrStopped
	case resp := <-req.reply:
		return resp, nil
	}
}

// loop serialises all access so a plain map needs no locking. Loaders run
// on this goroutine, which also collapses concurrent misses for one key.
// Expired entries are swept at most once per TTL, so keys that are never
// asked for again do not pile up.
func (c *Cache) loop() {
	store := make(map[string]entry)
	var nextSweep time.Time
	for {
		select {
		case <-c.quit:
			return
		case req := <-c.requests:
			if req.purge {
				clear(store)
				req.reply <- response{}
				continue
			}
			now := c.now()
			if !now.Before(nextSweep) {
				for k, e := range store {
					if !now.Before(e.expires) {
						delete(store, k)
					}
				}
				nextSweep = now.Add(c.ttl)
			}
			if req.count {
				req.reply <- response{n: len(store)}
				continue
			}
			if e, ok := store[req.key]; ok && now.Before(e.expires) {
				req.reply <- response{data: e.data}
				continue
			}
			if req.loader == nil {
				req.reply <- response{err: errNoLoader}
				continue
			}
			data, err := req.loader(req.ctx)
			switch {
			case err != nil:
				delete(store, req.key)
			case data != nil:
				buf := make([]byte, len(data))
				copy(buf, data)
				store[req.key] = entry{data: buf, expires: now.Add(c.ttl)}
			}
			req.reply <- response{data: data, err: err}
		}
	}
}
