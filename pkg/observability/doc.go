/*
Package observability provides tools for monitoring and introspecting running
drivers.

It includes Prometheus collectors fed by lifecycle hooks, hooks that mirror
driver activity to a structured logger, an in-memory journal of recent
lifecycle events, and MergeHooks for fanning one driver's events out to
several consumers at once.
*/
package observability
