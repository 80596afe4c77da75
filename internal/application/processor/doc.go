// Package processor implements the single-subscriber event processor.
//
// The processor owns a ring.Buffer of events and one consumption goroutine:
//   - Publish admits events from any number of goroutines, one claim at a time,
//     and blocks while the ring is full
//   - Subscribe binds the only subscriber, replacing the previous one
//   - the consumption goroutine delivers events in claim order and signals
//     OnComplete once Complete was called and the ring drained
//
// A subscriber failure is terminal: it is reported once through OnError and the
// processor refuses further events.
package processor
