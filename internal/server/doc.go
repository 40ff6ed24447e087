// Package server exposes daemon status over HTTP.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support. [BasicRouter] registers
// method patterns on an [http.ServeMux]; the first [Middleware] added is the outermost.
//
// # Endpoints
//
// [NewRouter] serves:
//   - GET /healthz: binary availability, remote breaker state and the last scan (503 when a
//     required binary is missing)
//   - GET /metrics: Prometheus exposition
//   - GET /jobs: recent reconcile jobs, filtered by owner, playlist_id, status and limit
//   - GET /jobs/{id}: one job record
//
// # Lifecycle
//
// [Server] binds a listener and serves until its context is cancelled, then shuts down
// gracefully. It satisfies the supervisor's service contract.
package server
