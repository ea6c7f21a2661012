// Package sinks contains Sink implementations for the engine event hub:
// structured logging, the in-memory journal, and Prometheus counters.
package sinks
