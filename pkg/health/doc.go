// Package health provides health check and readiness probe functionality.
// It enables monitoring of service health with support for:
//   - Liveness probes to detect if the service is running
//   - Readiness probes to detect if the service can handle requests
//   - Custom health checks for dependencies
//   - HTTP handlers for health endpoints
//   - An active-run gauge (Checker.SetDriverActivity) so pkg/server can
//     surface the flow driver's in-flight session count through /health,
//     degrading the service once that count passes a configured ceiling
//     without any individual Check failing
package health
