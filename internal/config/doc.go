// Package config loads, normalizes, and validates Falsniper configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// TELEGRAM_BOT_TOKEN. The Config type centralizes every knob the engine and
// CLI need: applicant identity, the hunt target, attack-window timing, worker
// and breaker ceilings, and directory layout are all discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
