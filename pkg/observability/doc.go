/*
Package observability exposes the dispatch core to Prometheus.

Metrics are fed exclusively through domain.LifecycleHooks, so any source or
activity built with the hooks returned by Metrics.Hooks is measured without the
core importing Prometheus.
*/
package observability
