// Package logging provides structured logging for the IoT Agent.
//
// It wraps log/slog so every component logs with the same format, level
// filtering and default fields (service, version).
//
// Logging is configured via the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Never log trust credentials, Keystone passwords or access tokens.
package logging
