// Package api hosts the operator HTTP endpoints that run alongside a scan:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/progress for the current run's counters.
package api
