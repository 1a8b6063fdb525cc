// Package log captures diagnostic events of the inventory client.
//
// It is separate from operational logging (slog). Event capture gives a
// machine-readable trace of requests, notifications and lifecycle changes
// that the m2m-log tool and the history recorder consume.
//
// # Basic Usage
//
//	// Console during development
//	cfg.EventLogger = log.NewSlogAdapter(slog.Default())
//
//	// Binary file
//	fl, _ := log.NewFileLogger("/var/log/m2m/client.mlog")
//
//	// Both
//	cfg.EventLogger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// # File Format
//
// Event files are a stream of CBOR-encoded Events (.mlog extension).
package log
