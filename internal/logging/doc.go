// Package logging assembles the structured slog loggers shared by the
// coordinator daemon, CLI, and client helpers.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes Attr aliases plus standardized field-key constants
// so every component tags log lines the same way. A no-op logger is
// provided for tests and wiring code that cannot fail.
package logging
