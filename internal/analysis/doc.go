// Package analysis holds the domain types for the analysis job service:
// job records and their lifecycle, the store/queue/runner contracts shared
// by the API layer and the worker pool, and the service-wide Prometheus
// collectors.
package analysis
