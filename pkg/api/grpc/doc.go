// Package grpc exposes the standard gRPC health service. The serving status
// of both the server and the "eventring.Publisher" service follows whether
// the event publisher is running.
package grpc
