// Package ring implements the bounded sequence ring used by the event processor.
//
// Producers reserve a slot with ClaimNext and make it visible with Publish. The
// single reader waits for published sequences with WaitFor, reads them with Read
// and hands the slot back with Release. Sequences grow without bound and are only
// masked when indexing the slot array, so the capacity check is a plain
// subtraction:
//
//	claimed - read <= capacity
//
// A full ring blocks the producer instead of overwriting unread data. Close acts as
// the completion marker: producers are refused from then on while the reader keeps
// draining what was already published.
package ring
