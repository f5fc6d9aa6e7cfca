// Package logger creates configured log/slog loggers.
//
// It provides a small factory over slog's JSON and text handlers with
// environment presets:
//
//	log := logger.New(logger.WithProduction("storekit"))
//	log.Info("connected", slog.String("driver", "paddle"))
//
// WithDevelopment switches to text output at debug level; WithAttr attaches
// static attributes to every record.
package logger
