package link

import "errors"

var (
	// ErrStarted indicates Start was called twice on one engine.
	ErrStarted = errors.New("already started")
	// ErrClosed indicates the inbound pipeline stopped producing.
	ErrClosed = errors.New("link closed")
)
