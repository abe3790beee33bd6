// Package expiry declares the expiry-timer collaborator (§6) and ships a
// min-heap-backed reference implementation: one goroutine, one timer reset
// to the next of arbitrary per-target deadlines.
package expiry

import (
	"container/heap"
	"sync"
	"time"
)

// Expired is delivered on Expirer.Events() when a target's deadline
// passes without being cancelled via Del.
type Expired struct {
	Target string
	Expiry time.Time
}

// Expirer is the expiry-timer collaborator declared in §6.
type Expirer interface {
	Set(target string, expiry time.Time)
	Del(target string)
	Events() <-chan Expired
	Close()
}

type heapEntry struct {
	target string
	expiry time.Time
	index  int
}

type entryHeap []*heapEntry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].expiry.Before(h[j].expiry) }
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *entryHeap) Push(x interface{}) {
	e := x.(*heapEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// TimerWheel is the reference Expirer: a single goroutine driving a
// min-heap of deadlines, woken by a timer reset to the soonest one.
type TimerWheel struct {
	mu      sync.Mutex
	byTarget map[string]*heapEntry
	h       entryHeap

	wake   chan struct{}
	events chan Expired
	done   chan struct{}
}

// NewTimerWheel starts the expirer's background goroutine.
func NewTimerWheel() *TimerWheel {
	w := &TimerWheel{
		byTarget: make(map[string]*heapEntry),
		wake:     make(chan struct{}, 1),
		events:   make(chan Expired, 64),
		done:     make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *TimerWheel) Set(target string, expiry time.Time) {
	w.mu.Lock()
	if existing, ok := w.byTarget[target]; ok {
		existing.expiry = expiry
		heap.Fix(&w.h, existing.index)
	} else {
		e := &heapEntry{target: target, expiry: expiry}
		heap.Push(&w.h, e)
		w.byTarget[target] = e
	}
	w.mu.Unlock()
	w.nudge()
}

func (w *TimerWheel) Del(target string) {
	w.mu.Lock()
	if e, ok := w.byTarget[target]; ok {
		heap.Remove(&w.h, e.index)
		delete(w.byTarget, target)
	}
	w.mu.Unlock()
	w.nudge()
}

func (w *TimerWheel) Events() <-chan Expired { return w.events }

// Close stops the background goroutine. Safe to call once.
func (w *TimerWheel) Close() { close(w.done) }

func (w *TimerWheel) nudge() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *TimerWheel) run() {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		w.mu.Lock()
		var next time.Time
		if len(w.h) > 0 {
			next = w.h[0].expiry
		}
		w.mu.Unlock()

		var wait time.Duration
		if next.IsZero() {
			wait = time.Hour
		} else {
			wait = time.Until(next)
			if wait < 0 {
				wait = 0
			}
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-w.done:
			return
		case <-w.wake:
			continue
		case <-timer.C:
			w.fireExpired()
		}
	}
}

func (w *TimerWheel) fireExpired() {
	now := time.Now()
	var fired []Expired

	w.mu.Lock()
	for len(w.h) > 0 && !w.h[0].expiry.After(now) {
		e := heap.Pop(&w.h).(*heapEntry)
		delete(w.byTarget, e.target)
		fired = append(fired, Expired{Target: e.target, Expiry: e.expiry})
	}
	w.mu.Unlock()

	for _, f := range fired {
		select {
		case w.events <- f:
		default:
		}
	}
}
