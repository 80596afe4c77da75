// Package lifecycle implements the event publisher exposed to the application.
//
// Publisher wraps a processor.Processor with a start/stop run state:
//   - Start binds the forwarding subscriber, which hands every event to a
//     ports.Deliverer, and recreates the processor after a stop or a failure
//   - Stop signals completion and returns without waiting for the drain
//   - PublishEvent admits events while running and blocks under backpressure
//
// The health monitor periodically reports backlog and run state.
package lifecycle
