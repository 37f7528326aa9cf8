// Package services holds cross-cutting context helpers shared by the hunt
// engine and its integrations.
//
// Worker identity (name, role, run ID) travels through context so packages
// that never see the engine's worker struct, such as the captcha gate's
// manual relay and the page driver, can still attribute their log lines and
// prompts to the worker driving them.
package services
