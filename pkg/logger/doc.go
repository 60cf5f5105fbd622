// Package logger builds configured log/slog loggers for the billing service.
//
// Loggers are created once at startup and injected into services; no package
// in this repository logs through a global logger.
//
//	log := logger.NewFromConfig(cfg)
//	log.InfoContext(ctx, "event processed", slog.String("event_id", ev.ID))
package logger
