package config

import "time"

// app constants
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"

	EnvPrefix = "LOGGATE"
)

// Version is stamped at build time via -ldflags.
var Version = "0.3.0"

// environment constants
const (
	EnvLocal = "local"
)

// server constants
const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 8765

	DefaultShutdownTimeout = 5 * time.Second
)

// docker source constants
const (
	DefaultHistoryTail = 200
)

// cloudwatch source constants
const (
	DefaultPollInterval    = 3 * time.Second
	DefaultQueryLimit      = 100
	DefaultLookback        = 5 * time.Minute
	DefaultHistoryLookback = time.Hour
)
