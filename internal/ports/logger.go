package ports

import "github.com/bft-labs/ulogbridge/pkg/log"

// Logger is the structured logger used by the application layer.
type Logger = log.Logger

// Field is a structured log field.
type Field = log.Field

// Field constructors re-exported so callers import a single package.
var (
	String   = log.String
	Int      = log.Int
	Uint16   = log.Uint16
	Uint64   = log.Uint64
	Float64  = log.Float64
	Bool     = log.Bool
	Duration = log.Duration
	Err      = log.Err
	Any      = log.Any
)
