package domain

import "errors"

var (
	// ErrForwardTimeout is returned when the upstream did not answer in time.
	ErrForwardTimeout = errors.New("upstream forward timed out")
	// ErrForwardTransport covers dial, write and read failures towards the upstream.
	ErrForwardTransport = errors.New("upstream transport error")
	// ErrEmptyUpstreamAnswer is returned when a redirect hop got a reply
	// without any usable address.
	ErrEmptyUpstreamAnswer = errors.New("upstream answer has no address")
)

// IsForwardFailure reports whether err is one of the forward failure kinds.
func IsForwardFailure(err error) bool {
	return errors.Is(err, ErrForwardTimeout) || errors.Is(err, ErrForwardTransport)
}
