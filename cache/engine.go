package cache

import (
	"fmt"

	"github.com/skipor/memcached/log"
)

// nilIdx marks an absent arena slot (no predecessor/successor/head/tail).
const nilIdx = -1

// node is one arena slot. A live node is linked into the recency list
// between head (coldest) and tail (hottest); a free node carries zero
// values and sits on Engine.free for reuse.
type node struct {
	key   string
	value string
	prev  int
	next  int
}

func (n *node) cost() int64 { return int64(len(n.key) + len(n.value)) }

// Engine is a single-threaded, bounded-by-bytes LRU cache. All of its
// invariants (current <= max, index size == list length, no duplicate
// keys) assume serialized access — callers that need concurrency should
// go through Striped instead.
//
// The recency list is represented as a vector-backed arena of nodes with
// stable integer indices (head/tail/prev/next) rather than the teacher's
// pointer-chasing sentinel nodes: this keeps the "intrusive list with a
// borrowed index" shape from the source design while making move-to-tail
// three integer writes and destruction a non-recursive slice walk.
type Engine struct {
	max     int64
	current int64

	nodes []node
	free  []int
	index map[string]int
	head  int
	tail  int

	log log.Logger
}

// NewEngine constructs an Engine with the given byte budget. l may be nil,
// in which case a discard logger is used.
func NewEngine(maxBytes int64, l log.Logger) *Engine {
	if maxBytes <= 0 {
		panic("cache: max bytes must be positive")
	}
	if l == nil {
		l = log.Discard()
	}
	return &Engine{
		max:   maxBytes,
		index: make(map[string]int),
		head:  nilIdx,
		tail:  nilIdx,
		log:   l,
	}
}

// Put implements Storage.
func (e *Engine) Put(key, value string) bool {
	needed := int64(len(key) + len(value))
	if needed > e.max {
		e.log.Debugf("cache: put %q rejected, %d bytes exceeds budget %d", key, needed, e.max)
		return false
	}
	if idx, ok := e.index[key]; ok {
		e.updateNode(idx, value)
		return true
	}
	e.evictFor(needed)
	e.insertTail(key, value)
	return true
}

// PutIfAbsent implements Storage.
func (e *Engine) PutIfAbsent(key, value string) bool {
	needed := int64(len(key) + len(value))
	if needed > e.max {
		return false
	}
	if _, ok := e.index[key]; ok {
		return false
	}
	e.evictFor(needed)
	e.insertTail(key, value)
	return true
}

// Set implements Storage.
func (e *Engine) Set(key, value string) bool {
	needed := int64(len(key) + len(value))
	if needed > e.max {
		return false
	}
	idx, ok := e.index[key]
	if !ok {
		return false
	}
	e.updateNode(idx, value)
	return true
}

// Delete implements Storage.
func (e *Engine) Delete(key string) bool {
	idx, ok := e.index[key]
	if !ok {
		return false
	}
	e.removeNode(idx)
	return true
}

// Get implements Storage.
func (e *Engine) Get(key string) (string, bool) {
	idx, ok := e.index[key]
	if !ok {
		return "", false
	}
	e.moveToTail(idx)
	return e.nodes[idx].value, true
}

// Len returns the number of live entries.
func (e *Engine) Len() int { return len(e.index) }

// Current returns the current byte count.
func (e *Engine) Current() int64 { return e.current }

// updateNode moves idx to the tail (so eviction can never target it), then
// grows/shrinks current by the value-length delta, evicting cold entries
// first if the new value needs more room.
func (e *Engine) updateNode(idx int, value string) {
	e.moveToTail(idx)
	n := &e.nodes[idx]
	delta := int64(len(value)) - int64(len(n.value))
	if delta > 0 {
		e.evictFor(delta)
	}
	e.current += delta
	n.value = value
}

// evictFor drops cold (head) entries until needed additional bytes fit
// under the budget. Preconditions established by callers (needed <= max,
// and — for updates — the protected node already moved to tail) guarantee
// this terminates without emptying the list out from under the caller.
func (e *Engine) evictFor(needed int64) {
	for e.current+needed > e.max {
		if e.head == nilIdx {
			panic(fmt.Sprintf("cache: eviction ran out of nodes needing %d more bytes under budget %d", needed, e.max))
		}
		e.evictHead()
	}
}

func (e *Engine) evictHead() {
	idx := e.head
	key := e.nodes[idx].key
	e.log.Debugf("cache: evicting %q", key)
	e.removeNode(idx)
	_ = key
}

// insertTail allocates a fresh node for key/value and appends it as the
// new hottest entry.
func (e *Engine) insertTail(key, value string) {
	idx := e.alloc()
	e.nodes[idx].key = key
	e.nodes[idx].value = value
	e.appendTail(idx)
	e.index[key] = idx
	e.current += e.nodes[idx].cost()
}

// removeNode unlinks idx from the list (head, tail, or middle), removes
// it from the index, subtracts its cost, and frees the slot.
func (e *Engine) removeNode(idx int) {
	n := e.nodes[idx]
	e.current -= n.cost()
	e.unlink(idx)
	delete(e.index, n.key)
	e.freeSlot(idx)
}

func (e *Engine) unlink(idx int) {
	n := e.nodes[idx]
	if n.prev != nilIdx {
		e.nodes[n.prev].next = n.next
	} else {
		e.head = n.next
	}
	if n.next != nilIdx {
		e.nodes[n.next].prev = n.prev
	} else {
		e.tail = n.prev
	}
}

func (e *Engine) appendTail(idx int) {
	n := &e.nodes[idx]
	n.prev = e.tail
	n.next = nilIdx
	if e.tail != nilIdx {
		e.nodes[e.tail].next = idx
	} else {
		e.head = idx
	}
	e.tail = idx
}

// moveToTail is a no-op if idx is already hottest; otherwise it is an
// unlink followed by an append, i.e. three integer writes on the
// surrounding nodes plus idx's own prev/next.
func (e *Engine) moveToTail(idx int) {
	if idx == e.tail {
		return
	}
	e.unlink(idx)
	e.appendTail(idx)
}

func (e *Engine) alloc() int {
	if n := len(e.free); n > 0 {
		idx := e.free[n-1]
		e.free = e.free[:n-1]
		return idx
	}
	e.nodes = append(e.nodes, node{})
	return len(e.nodes) - 1
}

func (e *Engine) freeSlot(idx int) {
	e.nodes[idx] = node{}
	e.free = append(e.free, idx)
}

// Reset empties the cache, walking the list head-first rather than via
// recursive destruction — the arena representation can't blow the host
// stack the way the source's unique_ptr chain could, but the head-first
// walk is kept as the direct descendant of that defensive structure.
func (e *Engine) Reset() {
	for e.head != nilIdx {
		e.evictHead()
	}
	e.nodes = e.nodes[:0]
	e.free = e.free[:0]
	e.index = make(map[string]int)
	e.current = 0
}
