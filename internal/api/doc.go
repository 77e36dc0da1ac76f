// Package api hosts the read-only status server. Notable routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/progress for the event tally of the current process.
//   - GET /v1/items and /v1/items/{kind}/{key} for the item table.
//   - GET /v1/media and /v1/media/{digest} for verified media bytes.
package api
