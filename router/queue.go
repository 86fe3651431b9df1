package router

import (
	"sync"
	"sync/atomic"
)

const DefaultQueueSize = 100

// Queue is a fixed capacity FIFO whose Put and Get never block. When full it
// drops the incoming item, or the oldest one in drop-oldest mode.
type Queue[T any] struct {
	items      chan T
	dropOldest bool
	put        sync.Mutex
	dropped    atomic.Uint64
}

func NewQueue[T any](size int, dropOldest bool) *Queue[T] {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue[T]{
		items:      make(chan T, size),
		dropOldest: dropOldest,
	}
}

// Put reports whether v was queued.
func (q *Queue[T]) Put(v T) bool {
	if !q.dropOldest {
		select {
		case q.items <- v:
			return true
		default:
			q.dropped.Add(1)
			return false
		}
	}

	q.put.Lock()
	defer q.put.Unlock()
	for {
		select {
		case q.items <- v:
			return true
		default:
		}
		select {
		case <-q.items:
			q.dropped.Add(1)
		default:
		}
	}
}

func (q *Queue[T]) Get() (v T, ok bool) {
	select {
	case v = <-q.items:
		return v, true
	default:
		return v, false
	}
}

// Clear drops everything queued without counting it.
func (q *Queue[T]) Clear() {
	for {
		if _, ok := q.Get(); !ok {
			return
		}
	}
}

func (q *Queue[T]) Len() int { return len(q.items) }
func (q *Queue[T]) Cap() int { return cap(q.items) }

// Dropped counts the items lost to overflow so far.
func (q *Queue[T]) Dropped() uint64 { return q.dropped.Load() }
