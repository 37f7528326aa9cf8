// Package engine contains the hunting core: the per-worker claim state
// machine, the shared target board, and the coordinator that runs one scout
// and a pack of attackers against the booking site.
//
// A cycle moves through discovery, day claim, slot claim, and the booking
// form. Reaching the form is the point of no return: from there a worker
// either submits its way to success or fails and starts a fresh cycle; it
// never backs up into discovery with a half-claimed slot. The scout
// publishes found days on the board, attackers consume them, and the first
// confirmed booking cancels the run for everyone else.
package engine
