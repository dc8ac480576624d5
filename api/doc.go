// Package api defines the wire types of the TicketFlow HTTP API.
//
// # API Overview
//
// TicketFlow exposes a small REST surface for driving support dialogues:
//   - POST /api/v1/turns — process one user turn in a session
//   - POST /api/v1/sessions/{key}/reset — discard a session's history
//   - Health monitoring, version, and Prometheus metrics
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
//
// All request and response bodies are JSON. Responses use the common
// envelope defined in api/handlers (success flag, data, error info).
package api
