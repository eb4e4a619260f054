package scraper

import "errors"

var (
	// ErrAlreadyStarted is returned when Start is called twice on one Dispatcher.
	ErrAlreadyStarted = errors.New("dispatcher already started")

	// ErrShutdownTimeout is returned when workers are still active after
	// the shutdown rounds are used up.
	ErrShutdownTimeout = errors.New("shutdown timed out with active workers")
)
