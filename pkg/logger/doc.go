// Package logger provides slog logger construction with environment-driven
// configuration and shared structured attribute helpers used across the
// notification service.
package logger
