package ring

import "errors"

var (
	// ErrInvalidCapacity is returned by New for a non-positive capacity.
	ErrInvalidCapacity = errors.New("ring: capacity must be positive")

	// ErrClosed is returned to producers once the ring was closed, and to the
	// reader once the ring is closed and fully drained.
	ErrClosed = errors.New("ring: closed")

	// ErrWouldBlock is returned by TryClaimNext when the ring is full.
	ErrWouldBlock = errors.New("ring: would block")

	// ErrSequence is returned when a sequence is published or released out of order.
	ErrSequence = errors.New("ring: sequence out of order")

	// ErrUnpublished is returned when reading a sequence that is not yet published.
	ErrUnpublished = errors.New("ring: sequence not published")
)
