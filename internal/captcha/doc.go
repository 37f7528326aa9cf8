// Package captcha classifies and clears the challenge checkpoints guarding
// the booking flow. A Gate drives detection, solving (automated service or
// human relay), submission, and the verdict; outcomes distinguish a wrong
// guess, which is retried in place, from a poisoned session, which is not.
package captcha
