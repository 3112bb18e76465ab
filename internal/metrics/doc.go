// Package metrics defines the Prometheus instrumentation for the service.
// All recording helpers tolerate a nil *Metrics so components can run
// uninstrumented in tests and tools.
package metrics
