// Package logger builds *slog.Logger instances for the notification core and
// its host binary.
//
// New takes functional options selecting the level, the output and one of three
// formats: json for aggregation, text for logfmt, and console which pipes each
// record through zerolog's ConsoleWriter for readable terminal output. Context
// values can be injected into every record with WithContextValue.
//
// Helper constructors in attr.go keep attribute names consistent across
// packages:
//
//	log.WarnContext(ctx, "persist failed",
//	    logger.StorageKey("notification_history"),
//	    logger.Error(err),
//	)
//
// Error returns an empty attribute for a nil error so callers can skip the nil
// check.
package logger
