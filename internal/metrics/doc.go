// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Connection attempts and authentication failures per class
//   - Inbound message and dispatch rates
//   - Handler invocation and error counts
package metrics
