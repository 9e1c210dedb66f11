// Package events implements the Handler Contract (spec §4.E): a strongly
// typed event listener plus the ring-buffer queue that REDESIGN FLAGS
// requires callbacks to enqueue into, so that a handler can never re-enter
// the engine mid-command. Events are drained into the handler only after
// the matching engine call that produced them has returned.
package events

import "sync/atomic"

const (
	ringSize = 1 << 12 // 4096 events; far more than one command can emit
	ringMask = ringSize - 1
	cacheLine = 64
)

// RingBuffer is the teacher's (ejyy-femto_go) single-producer/single-consumer
// lock-free ring buffer, generalized from OutputEvent to any T. Kept as a
// busy-wait SPSC queue: within one request the engine is the sole producer
// and Queue.Drain (called once the engine call returns, on the same
// goroutine) is the sole consumer, so there is never a wait beyond "the
// handful of events this command just emitted haven't been written yet".
type RingBuffer[T any] struct {
	buffer []T

	_pad1    [cacheLine - 8]byte
	writePos uint64
	_pad2    [cacheLine - 8]byte
	readPos  uint64
	_pad3    [cacheLine - 8]byte
}

// NewRingBuffer allocates a ring buffer with room for ringSize elements.
func NewRingBuffer[T any]() *RingBuffer[T] {
	return &RingBuffer[T]{buffer: make([]T, ringSize)}
}

// Push adds one element, busy-waiting if the buffer is full. Only safe for
// a single producer.
func (r *RingBuffer[T]) Push(v T) {
	for {
		write := atomic.LoadUint64(&r.writePos)
		read := atomic.LoadUint64(&r.readPos)
		if write-read < ringSize {
			r.buffer[write&ringMask] = v
			atomic.StoreUint64(&r.writePos, write+1)
			return
		}
	}
}

// TryRead extracts up to len(out) elements without blocking. Returns the
// number of elements actually read, which may be zero.
func (r *RingBuffer[T]) TryRead(out []T) int {
	write := atomic.LoadUint64(&r.writePos)
	read := atomic.LoadUint64(&r.readPos)
	available := write - read
	if available == 0 {
		return 0
	}
	count := available
	if uint64(len(out)) < count {
		count = uint64(len(out))
	}
	for i := uint64(0); i < count; i++ {
		out[i] = r.buffer[(read+i)&ringMask]
	}
	atomic.StoreUint64(&r.readPos, read+count)
	return int(count)
}

// Len reports the number of unread elements currently queued.
func (r *RingBuffer[T]) Len() int {
	write := atomic.LoadUint64(&r.writePos)
	read := atomic.LoadUint64(&r.readPos)
	return int(write - read)
}
