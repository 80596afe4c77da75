// Package events provides delivery targets for the event publisher.
//
// Implementations:
//   - memory: in-process application context with registered listeners
//   - redis: Redis Streams (XADD) with length trimming
package events
