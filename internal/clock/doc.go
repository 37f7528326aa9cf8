// Package clock abstracts time for the hunt engine.
//
// The Corrected implementation samples Date headers from well-known HTTP
// servers and applies the median offset, so the attack window is evaluated
// against real-world time even when the local clock drifts. Manual provides
// a hand-driven clock for deterministic tests.
package clock
