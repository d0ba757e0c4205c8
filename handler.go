package memcached

import (
	"errors"

	"github.com/skipor/memcached/cache"
	"github.com/skipor/memcached/pool"
)

// ErrPoolSaturated is returned when the worker pool's queue is full and a
// command could not be submitted for execution.
var ErrPoolSaturated = errors.New("command queue is full")

// Handler bridges the connection loop to the cache. Every cache access is
// submitted as a closure to the worker pool and awaited, so request
// handling runs on pool goroutines rather than the connection's own
// goroutine. Handler does no locking of its own, relying entirely on the
// Storage and Pool it wraps.
type Handler struct {
	storage cache.Storage
	pool    *pool.Pool
}

// NewHandler constructs a Handler over storage, dispatching through p.
func NewHandler(storage cache.Storage, p *pool.Pool) *Handler {
	return &Handler{storage: storage, pool: p}
}

func (h *Handler) submit(task func()) error {
	done := make(chan struct{})
	ok := h.pool.Execute(func() {
		defer close(done)
		task()
	})
	if !ok {
		return ErrPoolSaturated
	}
	<-done
	return nil
}

// Get looks up key, running the lookup on a pool worker.
func (h *Handler) Get(key string) (value string, found bool, err error) {
	err = h.submit(func() {
		value, found = h.storage.Get(key)
	})
	return value, found, err
}

// Set unconditionally stores key/value (insert-or-overwrite).
func (h *Handler) Set(key, value string) (stored bool, err error) {
	err = h.submit(func() {
		stored = h.storage.Put(key, value)
	})
	return stored, err
}

// Delete removes key, reporting whether it was present.
func (h *Handler) Delete(key string) (deleted bool, err error) {
	err = h.submit(func() {
		deleted = h.storage.Delete(key)
	})
	return deleted, err
}
