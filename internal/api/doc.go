// Package api hosts the HTTP server, middleware, and REST handlers for the product
// directory. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/products?category=&q= for the filtered product listing.
//   - GET /v1/categories for the category menu.
package api
