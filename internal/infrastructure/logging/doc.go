// Package logging provides structured logging for autopair.
//
// It wraps log/slog so every record carries the same default fields
// (service, version) and honours the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("pair succeeded", "device_id", id, "attempts", n)
//
// Device addresses are fine to log. Never log the JWT secret, MQTT
// password or InfluxDB token.
package logging
