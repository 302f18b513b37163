// Package server hosts the dispatch pipeline behind an HTTP listener.
//
// The server owns the outermost transport concerns: writing dispatch
// results to the wire, rendering 404 for unrouted requests and 500 for
// propagated errors, exposing the Prometheus and health endpoints, and
// graceful shutdown.
package server
