package ring

import (
	"context"
	"fmt"
	"sync"
)

// MaxCapacity bounds the slot array allocated by New.
const MaxCapacity = 1 << 30

// Sequence identifies a slot claim. Sequences start at zero and are never masked
// outside of slot indexing.
type Sequence int64

// Buffer is a fixed-capacity ring of T slots.
// Lock expectations: producers must be serialized by the caller so that claim
// order equals publish order. There is exactly one reader.
type Buffer[T any] struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond

	slots []T
	mask  Sequence

	claimed   Sequence // next sequence handed to a producer
	published Sequence // every sequence below is readable
	read      Sequence // every sequence below was released by the reader
	closed    bool
}

// New creates a ring whose capacity is rounded up to the next power of two.
func New[T any](capacity int) (*Buffer[T], error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	if capacity > MaxCapacity {
		return nil, fmt.Errorf("%w: %d exceeds %d", ErrInvalidCapacity, capacity, MaxCapacity)
	}

	size := 1
	for size < capacity {
		size <<= 1
	}

	b := &Buffer[T]{
		slots: make([]T, size),
		mask:  Sequence(size - 1),
	}
	b.notFull = sync.NewCond(&b.mu)
	b.notEmpty = sync.NewCond(&b.mu)
	return b, nil
}

// Capacity returns the number of slots.
func (b *Buffer[T]) Capacity() int {
	return len(b.slots)
}

// ClaimNext reserves the next slot, blocking while the ring is full.
// It returns ErrClosed if the ring is or becomes closed, and ctx.Err() if the
// context ends before a slot frees up.
func (b *Buffer[T]) ClaimNext(ctx context.Context) (Sequence, error) {
	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		b.notFull.Broadcast()
		b.mu.Unlock()
	})
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()

	for !b.closed && b.full() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		b.notFull.Wait()
	}
	if b.closed {
		return 0, ErrClosed
	}

	seq := b.claimed
	b.claimed++
	return seq, nil
}

// TryClaimNext is the non-blocking form of ClaimNext.
func (b *Buffer[T]) TryClaimNext() (Sequence, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}
	if b.full() {
		return 0, ErrWouldBlock
	}

	seq := b.claimed
	b.claimed++
	return seq, nil
}

// Publish stores v in the slot claimed as seq and makes it visible to the reader.
// Sequences must be published in the order they were claimed. A claim obtained
// before Close may still be published after it.
func (b *Buffer[T]) Publish(seq Sequence, v T) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if seq != b.published || seq >= b.claimed {
		return fmt.Errorf("%w: publish %d, next %d, claimed %d", ErrSequence, seq, b.published, b.claimed)
	}

	b.slots[seq&b.mask] = v
	b.published++
	b.notEmpty.Signal()
	return nil
}

// WaitFor blocks until seq is published and returns the published bound
// (exclusive), letting the reader consume [seq, bound) without further waits.
// Once the ring is closed and every claimed sequence below seq has been
// released, it returns ErrClosed.
func (b *Buffer[T]) WaitFor(seq Sequence) (Sequence, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.published <= seq {
		if b.closed && b.published == b.claimed {
			return seq, ErrClosed
		}
		b.notEmpty.Wait()
	}
	return b.published, nil
}

// Read returns the event stored at seq. Reader only.
func (b *Buffer[T]) Read(seq Sequence) (T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	if seq >= b.published {
		return zero, fmt.Errorf("%w: %d", ErrUnpublished, seq)
	}
	if seq < b.read {
		return zero, fmt.Errorf("%w: %d already released", ErrSequence, seq)
	}
	return b.slots[seq&b.mask], nil
}

// Release hands the slot at seq back to producers. Reader only; sequences are
// released in order.
func (b *Buffer[T]) Release(seq Sequence) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if seq != b.read || seq >= b.published {
		return fmt.Errorf("%w: release %d, next %d", ErrSequence, seq, b.read)
	}

	var zero T
	b.slots[seq&b.mask] = zero
	b.read++
	b.notFull.Signal()
	return nil
}

// Close marks the ring complete and wakes every waiter. Safe to call repeatedly.
func (b *Buffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	b.notFull.Broadcast()
	b.notEmpty.Broadcast()
}

// Closed reports whether Close was called.
func (b *Buffer[T]) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Remaining returns the number of slots a producer can claim without blocking.
func (b *Buffer[T]) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.slots) - int(b.claimed-b.read)
}

// Backlog returns the number of published events not yet released.
func (b *Buffer[T]) Backlog() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int(b.published - b.read)
}

// Published returns the published bound (exclusive).
func (b *Buffer[T]) Published() Sequence {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.published
}

// ReadSequence returns the next sequence the reader expects.
func (b *Buffer[T]) ReadSequence() Sequence {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.read
}

// full must be called with mu held.
func (b *Buffer[T]) full() bool {
	return b.claimed-b.read >= Sequence(len(b.slots))
}
