package core

import "errors"

var (
	// ErrMalformedRequest marks a request line that could not be parsed.
	// The request is dropped and the session continues.
	ErrMalformedRequest = errors.New("malformed request")

	// ErrTransport marks a read or write failure on a client connection.
	// It ends the affected session only.
	ErrTransport = errors.New("transport failure")

	// ErrStorage marks a failure to load or save the ranking.
	// It is logged and never stops the server.
	ErrStorage = errors.New("storage failure")
)

// Kind returns a short label for logging an error by its class.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrMalformedRequest):
		return "malformed"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrStorage):
		return "storage"
	default:
		return "unknown"
	}
}
