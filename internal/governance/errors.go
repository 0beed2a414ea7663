package governance

import "errors"

// Lookup errors.
var (
	ErrNotFound = errors.New("intent not found")
)

// Lifecycle errors.
var (
	ErrAlreadyRunning = errors.New("pipeline is already running")
	ErrShutdown       = errors.New("pipeline is shut down")
)

// Input errors.
var (
	ErrInvalidConfig = errors.New("invalid governance config")
	ErrInvalidSource = errors.New("invalid source")
	ErrNilRouter     = errors.New("router is required")
)
