// Package coroutine implements a cooperative, single-threaded scheduler of
// user routines addressed by opaque handles.
//
// The original engine this is modeled on (see DESIGN.md) multiplexed
// routines onto one host thread by using setjmp/longjmp to save and
// restore CPU registers and memcpy to save and restore the live portion
// of the host stack. That technique has no portable Go equivalent — Go
// stacks are relocatable and managed by the runtime — so this engine
// keeps only the *contract* (opaque handles, cooperative yield/sched/
// block/unblock, alive/blocked intrusive lists, at most one routine
// "current" at a time) and implements it with one parked goroutine per
// user routine, handed control via unbuffered channel rendezvous.
package coroutine

import (
	"sync"

	"github.com/skipor/memcached/log"
)

// Handle is an opaque reference to a routine. The zero Handle means
// "none" (the same role the original's null pointer played).
type Handle struct{ r *routine }

// IsZero reports whether h refers to no routine.
func (h Handle) IsZero() bool { return h.r == nil }

// routine is one scheduled unit of work. alive and blocked share this
// struct's prev/next fields — a routine is on exactly one of the two
// lists at a time, selected by r.blocked.
type routine struct {
	id      uint64
	resume  chan struct{}
	blocked bool
	prev    *routine
	next    *routine
}

// Engine is a cooperative scheduler. It must never be entered
// concurrently from more than one host goroutine — callers serialize
// access the same way the original required a single host thread.
type Engine struct {
	mu                     sync.Mutex
	aliveHead, blockedHead *routine
	current                *routine
	idle                   *routine
	nextID                 uint64
	log                    log.Logger
}

// NewEngine constructs an Engine. l may be nil for a discard logger.
func NewEngine(l log.Logger) *Engine {
	if l == nil {
		l = log.Discard()
	}
	idle := &routine{resume: make(chan struct{})}
	return &Engine{
		idle:    idle,
		current: idle,
		log:     l,
	}
}

// Start creates a new routine that will run entry(self) once scheduled to
// for the first time. The routine starts alive and not current; call
// Sched or Yield to actually run it.
func (e *Engine) Start(entry func(self Handle)) Handle {
	e.mu.Lock()
	e.nextID++
	r := &routine{id: e.nextID, resume: make(chan struct{})}
	pushFront(&e.aliveHead, r)
	e.mu.Unlock()

	h := Handle{r}
	go func() {
		<-r.resume
		entry(h)
		e.finish(r)
	}()
	return h
}

// finish runs when entry returns normally. A returning routine behaves
// like an implicit final Yield: it hands control to whichever routine is
// now alive-head, or back to idle if none remain, instead of the
// specific goroutine that last scheduled into it (which may have long
// since moved on to someone else).
func (e *Engine) finish(r *routine) {
	e.mu.Lock()
	e.unlistLocked(r)
	next := e.aliveHead
	if next == nil {
		next = e.idle
	}
	e.current = next
	e.log.Debugf("coroutine: routine %d finished, handing off", r.id)
	e.mu.Unlock()
	next.resume <- struct{}{}
}

// Sched switches control to h. A zero Handle means "yield" exactly as in
// the original (sched(nullptr) calling yield()). Scheduling to the
// current routine, or to a blocked one, is a no-op.
func (e *Engine) Sched(h Handle) {
	if h.IsZero() {
		e.Yield()
		return
	}
	e.schedTo(h.r)
}

// Yield switches to the next alive routine after current, wrapping around
// to the head of the alive list, if any.
func (e *Engine) Yield() {
	e.mu.Lock()
	var cand *routine
	if e.current == e.idle || e.current.blocked {
		cand = e.aliveHead
	} else {
		cand = e.current.next
		if cand == nil {
			cand = e.aliveHead
		}
		if cand == e.current {
			cand = nil
		}
	}
	e.mu.Unlock()
	if cand == nil {
		return
	}
	e.schedTo(cand)
}

// schedTo performs the actual handoff: it wakes target and parks the
// calling goroutine until someone schedules back to it. Exactly one
// routine's goroutine is ever unparked at a time, preserving "at most one
// routine is current".
func (e *Engine) schedTo(target *routine) {
	e.mu.Lock()
	if target == e.current || target.blocked {
		e.mu.Unlock()
		return
	}
	caller := e.current
	e.current = target
	e.mu.Unlock()

	target.resume <- struct{}{}
	<-caller.resume
}

// Block moves a routine from alive to blocked. A nil or self handle
// blocks the caller and immediately yields control to idle, the way the
// original routed self-block through sched(idle_ctx) so the scheduler
// regains control. Blocking another routine only moves it to the blocked
// list; it stays parked and is never scheduled again until Unblock.
func (e *Engine) Block(h Handle) {
	e.mu.Lock()
	target := h.r
	if target == nil || target == e.current {
		target = e.current
		e.unlistLocked(target)
		pushFront(&e.blockedHead, target)
		target.blocked = true
		e.mu.Unlock()
		e.schedTo(e.idle)
		return
	}
	e.unlistLocked(target)
	pushFront(&e.blockedHead, target)
	target.blocked = true
	e.mu.Unlock()
}

// Unblock moves a routine from blocked back to alive. It does not itself
// schedule anything.
func (e *Engine) Unblock(h Handle) {
	if h.r == nil {
		return
	}
	e.mu.Lock()
	target := h.r
	e.unlistLocked(target)
	pushFront(&e.aliveHead, target)
	target.blocked = false
	e.mu.Unlock()
}

// Current returns the handle of the routine currently running, or the
// zero Handle if idle is in control.
func (e *Engine) Current() Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == e.idle {
		return Handle{}
	}
	return Handle{e.current}
}

func (e *Engine) unlistLocked(r *routine) {
	if r.blocked {
		removeFromList(&e.blockedHead, r)
	} else {
		removeFromList(&e.aliveHead, r)
	}
}

func removeFromList(head **routine, r *routine) {
	if *head == r {
		*head = r.next
	}
	if r.prev != nil {
		r.prev.next = r.next
	}
	if r.next != nil {
		r.next.prev = r.prev
	}
	r.prev, r.next = nil, nil
}

func pushFront(head **routine, r *routine) {
	r.prev = nil
	r.next = *head
	if *head != nil {
		(*head).prev = r
	}
	*head = r
}
