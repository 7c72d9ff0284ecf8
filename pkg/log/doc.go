// Package log is the structured logging abstraction used across ulogbridge.
//
// Components depend on the Logger interface only. The CLI wires a
// ZerologAdapter; tests use NoopLogger or a recording implementation.
//
//	logger := log.NewZerologAdapter(log.ZerologOptions{Debug: true})
//	logger.Info("session started", log.String("session", id))
//
// Fields are typed key/value pairs. The zerolog adapter maps each field to
// the matching zerolog event method so values keep their native encoding.
package log
