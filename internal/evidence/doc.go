// Package evidence persists page captures: short-lived diagnostics for
// debugging failed cycles, and permanent proof of a booked appointment.
package evidence
