package proxypool

import "errors"

var (
	// ErrPoolExhausted is returned by Checkout when no proxy is available.
	ErrPoolExhausted = errors.New("proxy pool exhausted")

	// ErrNotCheckedOut is returned when releasing a proxy the pool did not hand out.
	ErrNotCheckedOut = errors.New("proxy is not checked out")

	// ErrInvalidProxy is returned for unparseable proxy list entries.
	ErrInvalidProxy = errors.New("invalid proxy")
)
