// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/scrape to trigger a catalog crawl.
//   - GET /v1/jobs and /v1/jobs/{job_id} for job inspection.
package api
