package cache

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/skipor/memcached/log"
)

// Striped fans a total byte budget out over n independent, individually
// locked Engines, routing each key to exactly one stripe by a stable hash.
// Distinct stripes never contend; there is no cross-stripe atomicity or
// iteration.
type Striped struct {
	stripes []stripe
	n       uint64
}

type stripe struct {
	mu     sync.Mutex
	engine *Engine
}

// NewStriped builds n stripes, each budgeted totalMaxBytes/n. Both
// arguments must be positive, and the per-stripe share must round to at
// least one byte.
func NewStriped(totalMaxBytes int64, n int, l log.Logger) *Striped {
	if n <= 0 {
		panic("cache: n-stripes must be positive")
	}
	if totalMaxBytes <= 0 {
		panic("cache: total-max-bytes must be positive")
	}
	perStripe := totalMaxBytes / int64(n)
	if perStripe <= 0 {
		panic("cache: per-stripe budget must be positive")
	}
	s := &Striped{
		stripes: make([]stripe, n),
		n:       uint64(n),
	}
	for i := range s.stripes {
		s.stripes[i].engine = NewEngine(perStripe, l)
	}
	return s
}

func (s *Striped) stripeFor(key string) *stripe {
	h := xxhash.Sum64String(key)
	return &s.stripes[h%s.n]
}

// Put implements Storage.
func (s *Striped) Put(key, value string) bool {
	st := s.stripeFor(key)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.engine.Put(key, value)
}

// PutIfAbsent implements Storage.
func (s *Striped) PutIfAbsent(key, value string) bool {
	st := s.stripeFor(key)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.engine.PutIfAbsent(key, value)
}

// Set implements Storage.
func (s *Striped) Set(key, value string) bool {
	st := s.stripeFor(key)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.engine.Set(key, value)
}

// Delete implements Storage.
func (s *Striped) Delete(key string) bool {
	st := s.stripeFor(key)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.engine.Delete(key)
}

// Get implements Storage.
func (s *Striped) Get(key string) (string, bool) {
	st := s.stripeFor(key)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.engine.Get(key)
}

// StripeStats reports one stripe's occupancy, for diagnostics.
type StripeStats struct {
	Current int64
	Max     int64
	Entries int
}

// Stats returns per-stripe occupancy snapshots, in stripe order.
func (s *Striped) Stats() []StripeStats {
	out := make([]StripeStats, len(s.stripes))
	for i := range s.stripes {
		st := &s.stripes[i]
		st.mu.Lock()
		out[i] = StripeStats{
			Current: st.engine.Current(),
			Max:     st.engine.max,
			Entries: st.engine.Len(),
		}
		st.mu.Unlock()
	}
	return out
}
