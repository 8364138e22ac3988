// Package api hosts the HTTP server, middleware, and REST handlers.
// Notable routes:
//   - POST /api/scrape runs every adapter once and reports per-source outcomes.
//   - GET /api/v1/feed (API key) pages through records with filters.
//   - GET /api/content lists records, optionally near userLat/userLng.
//   - GET /api/stats summarizes totals and categories.
//   - POST /api/v1/register issues an API key.
//   - GET /healthz, /readyz for probes and /metrics for Prometheus.
package api
