package tsdb

import "errors"

// Sentinel errors for time-series database operations.
var (
	ErrNotConnected     = errors.New("tsdb: not connected")
	ErrConnectionFailed = errors.New("tsdb: connection failed")
	ErrQueryFailed      = errors.New("tsdb: query failed")

	// ErrDisabled indicates TSDB integration is disabled in config.
	ErrDisabled = errors.New("tsdb: disabled in configuration")
)
