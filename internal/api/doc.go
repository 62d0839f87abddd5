// Package api hosts the HTTP surface of the service. Routes:
//   - GET /healthz and /readyz for Kubernetes probes; /readyz carries the
//     bootstrap report.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/snapshots renders a page and stores it.
//   - GET /v1/snapshots lists recent snapshots, or sample data when degraded.
package api
