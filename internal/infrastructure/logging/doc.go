// Package logging provides structured logging for the tour engine.
//
// It wraps log/slog so every record carries the service name and build
// version, with JSON output for production and text output for development.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("session opened", "session_id", id)
//
// Never log the staging API key or bearer tokens.
package logging
