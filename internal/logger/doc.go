// Package logger provides the leveled, thread-safe logger used by every
// component of the server.
//
// Each line carries a timestamp, the level and an optional component name
// ("writer", "applier", "session 127.0.0.1:53122", ...).
//
// # Basic Usage
//
//	logger.Info("", "listening on %s", addr)
//	logger.Warn("writer", "snapshot flush failed: %v", err)
//
// Components that log a lot bind their name once:
//
//	log := logger.For("applier")
//	log.Debug("merged %d intents", n)
//
// # Log Levels
//
// The minimum level comes from the log.level configuration key and is parsed
// with ParseLevel. Messages below it are dropped.
//
// # Thread Safety
//
// All logging operations are protected by a mutex and safe for concurrent use.
package logger
