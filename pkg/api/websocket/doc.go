// Package websocket provides real-time event streaming via WebSocket.
//
// Clients can connect to /api/v1/events/ws to receive every event the
// publisher delivers to the application context.
package websocket
