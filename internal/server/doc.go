// Package server hosts the Fiber HTTP API that fronts the tiered asset cache.
// It wires request-id and access-log middleware, maps cache and upstream
// errors onto HTTP statuses, and exposes poster images, the genre table,
// movie lists merged with ratings, and the ratings store itself. Diagnostics
// routes live in the routes subpackage; keep exports narrow and accept
// explicit dependencies through AppOptions.
package server
