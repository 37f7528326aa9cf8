// Package journal persists run history in SQLite: one row per engine
// invocation plus an event stream of notable moments (targets found, submit
// attempts, rebirths). The CLI reads it for listing and aggregate stats; the
// engine only ever appends.
package journal
