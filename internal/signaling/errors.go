package signaling

import "errors"

var (
	// ErrAlreadyConnected is returned by Connect when the control channel is
	// already open or a connect attempt is still in flight.
	ErrAlreadyConnected = errors.New("signaling: already connected")
	// ErrInvalidURL is returned by Connect when the configured signaling URL
	// cannot be parsed.
	ErrInvalidURL = errors.New("signaling: invalid url")
	// ErrUnsupportedScheme is returned by Connect for URLs that are neither
	// ws:// nor wss://.
	ErrUnsupportedScheme = errors.New("signaling: unsupported url scheme")
	// ErrAborted is returned by Transport reads that were cancelled because the
	// transport was closed locally. The read loop treats it as a clean stop.
	ErrAborted = errors.New("signaling: operation aborted")
	// ErrClientStopped is returned when the client's event loop has exited and
	// can no longer run the requested operation.
	ErrClientStopped = errors.New("signaling: client stopped")

	errNoConnection = errors.New("no negotiated connection")
)
