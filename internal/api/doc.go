// Package api serves the optional admin HTTP endpoint.
//
// It is enabled by the admin.addr configuration key and exposes:
//
//	GET /api/health   liveness and whether the write pipeline still runs
//	GET /api/stats    request counters, pipeline and session state
//	GET /api/keys     per-key read/write counters, sorted by key
//	GET /ws           WebSocket stream of every event on the bus
//
// The API is read-only; data is only written through the TCP protocol.
package api
