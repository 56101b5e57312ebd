/*
Package observability provides tools for monitoring the Grove engine.

It includes Prometheus-backed lifecycle hooks for counting generated
reactions and rate estimates and timing tree inductions, plus the HTTP
handler that exposes the process metrics endpoint.
*/
package observability
