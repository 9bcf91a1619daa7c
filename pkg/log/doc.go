// Package log provides structured logging for tasktrail components.
//
// Loggers are constructed with functional options and passed explicitly via
// dependency injection; there is no global logger. Output format (text or
// JSON) and destination are pluggable through the Formatter and Output
// interfaces.
package log
