// Package api implements the HTTP status API and WebSocket feed for Gray
// Logic Advisor.
//
// This package provides:
//   - Read-only endpoints for run status, actions, action history and
//     learning statistics
//   - POST /api/v1/run to request an immediate analysis run
//   - Prometheus exposition at /metrics
//   - A WebSocket hub that pushes every action change to subscribers of
//     the "action.changed" channel
//   - Middleware stack (request ID, logging, recovery, body size limit)
//
// Approval decisions are not taken over HTTP; they flow through the
// approval channel so that every decision is recorded with its context.
package api
