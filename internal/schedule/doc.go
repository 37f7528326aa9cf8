// Package schedule anchors the hunt to the slot release window.
//
// The site releases new appointment slots at a fixed local hour. Schedule
// classifies any instant into exactly one pacing mode: patrol far from the
// window, warmup in the minutes before it, a pre-attack countdown in the
// final seconds, and attack while the window is open. Workers ask the
// schedule how long to sleep between actions so the whole pack breathes at
// the cadence the current mode demands.
package schedule
