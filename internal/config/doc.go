// Package config loads, validates, and normalizes the TOML configuration
// for the han coordinator daemon and CLI.
//
// Configuration values are resolved in order: built-in defaults, then the
// config file (either an explicit --config path, ~/.config/han/config.toml,
// or a han.toml in the working directory). All path fields are expanded and
// made absolute before anything else sees them.
package config
