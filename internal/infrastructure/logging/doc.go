// Package logging provides structured logging for the DaVinci bridge.
//
// It wraps log/slog so every component logs the same way:
//
//   - JSON output for production, text for development
//   - Default fields (service, version) on every entry
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	fpLogger := logger.Component("fireplace")
//	fpLogger.Info("connected", "address", "192.168.1.50:10001")
//
// Never log secrets, tokens, passwords, or API keys.
package logging
