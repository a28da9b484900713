// Package logging provides structured logging for the LiteTouch bridge.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Size-rotated log files via lumberjack, alone or alongside stdout
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "both"     # stdout, stderr, file, both
//	  file:
//	    path: "/var/log/litetouch/bridge.log"
//	    max_size: 50     # megabytes
//	    max_backups: 5
//	    max_age: 28      # days
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	defer logger.Close()
//	logger.Info("panel connected", "address", cfg.Panel.Address())
//
// *Logger satisfies litetouch.Logger, so it can be handed to the panel
// client and the bridge directly.
package logging
