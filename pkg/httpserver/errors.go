package httpserver

import "errors"

var (
	// ErrStart wraps listener and startup failures from Run.
	ErrStart = errors.New("http server failed to start")
	// ErrShutdown wraps failures during graceful shutdown.
	ErrShutdown = errors.New("http server did not shut down cleanly")
)
