// Package logging provides structured logging with per-module log level
// configuration.
//
// The logging system uses Go's slog package with automatic output routing:
//   - Logs to the systemd journal when available (journald on the device)
//   - Logs to stdout for terminals, pipes, and files
//   - Logs to both when both are available
//
// Initialize the logging system once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"supervisor": "debug",
//			"beacon":     "warn",
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("supervisor")
//	logger.Info("encoder started", "pid", pid)
package logging
