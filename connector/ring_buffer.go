package connector

import (
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

type slot[T any] struct {
	dataReady atomic.Bool
	data      T
}

// RingBuffer implements a [Connector] on top of a fixed-capacity,
// mostly lock-free ring. Producers and consumers spin on CAS updates of
// a packed head/tail word and only fall back to a condition variable
// when the ring is full or empty.
type RingBuffer[T any] struct {
	// headTail packs head into the top 32 bits and tail into the bottom
	// 32 bits, so both can be read with a single atomic load.
	headTail atomic.Uint64

	// padding between the hot atomics to avoid false sharing
	_ cpu.CacheLinePad

	closed atomic.Bool

	_ cpu.CacheLinePad

	isFull atomic.Bool

	_ cpu.CacheLinePad

	isEmpty atomic.Bool

	_ cpu.CacheLinePad

	capacity uint32
	capMask  uint32

	mux      *sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	buffer []slot[T]
}

// NewRingBuffer creates a new [RingBuffer]. The capacity is rounded up
// to the next power of two.
func NewRingBuffer[T any](capacity uint32) *RingBuffer[T] {
	capacity--
	capacity |= capacity >> 1
	capacity |= capacity >> 2
	capacity |= capacity >> 4
	capacity |= capacity >> 8
	capacity |= capacity >> 16
	capacity++

	mux := &sync.Mutex{}

	return &RingBuffer[T]{
		capacity: capacity,
		capMask:  capacity - 1,

		buffer: make([]slot[T], capacity),

		mux:      mux,
		notEmpty: sync.NewCond(mux),
		notFull:  sync.NewCond(mux),
	}
}

func pack(head, tail uint32) uint64 {
	return uint64(head)<<32 | uint64(tail)
}

func unpack(headTail uint64) (head, tail uint32) {
	return uint32(headTail >> 32), uint32(headTail)
}

func (rb *RingBuffer[T]) push(item T) bool {
	for {
		headTail := rb.headTail.Load()
		head, tail := unpack(headTail)

		if head-tail >= rb.capacity {
			return false
		}

		slot := &rb.buffer[head&rb.capMask]

		// A still-set dataReady flag means the consumer that claimed
		// this slot has not copied the item out yet.
		if slot.dataReady.Load() {
			runtime.Gosched()
			continue
		}

		if !rb.headTail.CompareAndSwap(headTail, pack(head+1, tail)) {
			runtime.Gosched()
			continue
		}

		slot.data = item
		slot.dataReady.Store(true)

		return true
	}
}

func (rb *RingBuffer[T]) pop() (T, bool) {
	for {
		headTail := rb.headTail.Load()
		head, tail := unpack(headTail)

		if head == tail {
			return *new(T), false
		}

		slot := &rb.buffer[tail&rb.capMask]

		if !slot.dataReady.Load() {
			// The producer claimed the slot but has not written it yet.
			runtime.Gosched()
			continue
		}

		if !rb.headTail.CompareAndSwap(headTail, pack(head, tail+1)) {
			runtime.Gosched()
			continue
		}

		item := slot.data
		slot.dataReady.Store(false)

		return item, true
	}
}

// Write adds an item to the [RingBuffer], blocking while the ring is full.
//
// Returns [ErrClosed] if the [RingBuffer] is closed.
func (rb *RingBuffer[T]) Write(item T) error {
	if rb.closed.Load() {
		return ErrClosed
	}

	for !rb.push(item) {
		// Yield once and retry before parking on the condition variable.
		runtime.Gosched()
		if rb.push(item) {
			break
		}

		rb.mux.Lock()

		rb.isFull.Store(true)

		if rb.closed.Load() {
			rb.mux.Unlock()
			return ErrClosed
		}

		rb.notFull.Wait()
		rb.mux.Unlock()
	}

	if rb.isEmpty.Load() {
		rb.mux.Lock()
		rb.notEmpty.Broadcast()
		rb.isEmpty.Store(false)
		rb.mux.Unlock()
	}

	return nil
}

// Read retrieves an item from the [RingBuffer], blocking while the ring
// is empty.
//
// Returns [ErrClosed] if the [RingBuffer] is closed.
func (rb *RingBuffer[T]) Read() (T, error) {
	var item T

	for {
		tmpItem, ok := rb.pop()
		if ok {
			item = tmpItem
			break
		}

		runtime.Gosched()

		tmpItem, ok = rb.pop()
		if ok {
			item = tmpItem
			break
		}

		rb.mux.Lock()

		rb.isEmpty.Store(true)

		if rb.closed.Load() {
			rb.mux.Unlock()
			return item, ErrClosed
		}

		rb.notEmpty.Wait()
		rb.mux.Unlock()
	}

	if rb.isFull.Load() {
		rb.mux.Lock()
		rb.notFull.Broadcast()
		rb.isFull.Store(false)
		rb.mux.Unlock()
	}

	return item, nil
}

// Close marks the [RingBuffer] as closed and wakes every blocked caller.
func (rb *RingBuffer[T]) Close() {
	if !rb.closed.CompareAndSwap(false, true) {
		return
	}

	rb.mux.Lock()
	rb.notEmpty.Broadcast()
	rb.notFull.Broadcast()
	rb.mux.Unlock()
}
