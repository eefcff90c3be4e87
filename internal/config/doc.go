// Package config loads, normalizes, and validates voxtape configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// VOXTAPE_API_TOKEN and VOXTAPE_NTFY_TOPIC. The Config type centralizes every
// knob the daemon and CLI need, from capture ceilings to the bridge debounce.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
