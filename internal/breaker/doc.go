// Package breaker implements the shared circuit breaker that guards site
// navigation.
//
// Workers report every navigation outcome into one Breaker. A streak of
// failures opens the circuit, pausing the whole pack for a cooldown instead
// of letting each worker discover the outage on its own. After the cooldown
// a single half-open probe decides whether to close the circuit or re-open
// it. The breaker also owns the exponential backoff delay with jitter that
// paces retries while the site is struggling.
package breaker
