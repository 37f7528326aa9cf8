// Package session tracks the lifecycle of a worker's browser identity.
//
// Sessions age out fast on purpose: the target site profiles long-lived
// visitors, so every session carries ceilings on age, idle time, captcha
// attempts, and consecutive failures. Crossing any ceiling condemns the
// session and the worker rebuilds it from scratch. The package also computes
// the health score that downstream code uses to shrink navigation timeouts
// when a session is struggling.
package session
