// Package redisholder owns the shared redis client and swaps it for a fresh
// one when the health loop detects a broken connection.
package redisholder

import (
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

type Holder struct {
	v atomic.Value // redis.UniversalClient
}

func NewHolder(initial redis.UniversalClient) *Holder {
	h := &Holder{}
	h.v.Store(initial)
	return h
}

// Get returns the current client. Callers must not cache it across operations.
func (h *Holder) Get() redis.UniversalClient {
	c, _ := h.v.Load().(redis.UniversalClient)
	return c
}

func (h *Holder) swap(newc redis.UniversalClient) (old redis.UniversalClient) {
	old, _ = h.v.Load().(redis.UniversalClient)
	h.v.Store(newc)
	return old
}

func (h *Holder) Close() error {
	if c := h.Get(); c != nil {
		return c.Close()
	}
	return nil
}
