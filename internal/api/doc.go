// Package api implements the HTTP REST API and WebSocket server for the tour
// engine.
//
// This package provides:
//   - REST endpoints for the tour catalogue and for driving tour sessions
//   - WebSocket hub broadcasting session views and events
//   - Bearer-token verification with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - The embedded viewer shell under /viewer/
//
// # Architecture
//
// The hosting page forwards pointer, wheel and keyboard input to a session
// over HTTP. Each call returns the new view; the same view is pushed to
// WebSocket clients subscribed to "session.{id}", together with events such
// as scene changes and staging results.
//
// # Security
//
// Bearer tokens are issued by an external authentication backend and
// verified here with the shared HS256 secret. Catalogue writes and WebSocket
// tickets require a token; viewing sessions are anonymous. WebSocket
// connections use single-use tickets so tokens never appear in URLs.
//
// # Graceful Degradation
//
// MQTT, InfluxDB and the staging endpoint are optional. Without them the
// corresponding events, analytics and staging requests are simply absent.
package api
