// Package api implements the HTTP REST API and WebSocket server for autopair.
//
// This package provides:
//   - REST endpoints for the device list, saved flags and manual workflows
//   - Display topology read-out and, with the api display source, override
//   - Paged pairing history
//   - WebSocket hub relaying registry events in real time, with a state
//     snapshot on every subscribe
//   - Optional JWT bearer auth with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Architecture
//
// The server is a thin shell over device.Registry and pairing.Orchestrator.
// Reads come straight from the registry; pair, connect and unpair requests
// return 202 Accepted and run in the background, with progress visible
// through operation_status on the device and over the WebSocket.
//
// # Security
//
// When security.jwt.secret is empty every route is open, which is intended
// for loopback-only deployments. Otherwise protected routes require an HS256
// bearer token and WebSocket connections require a single-use ticket.
package api
