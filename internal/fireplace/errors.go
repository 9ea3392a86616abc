package fireplace

import "errors"

// Domain errors for the fireplace package.
var (
	// ErrNotConnected is returned when a command is transmitted while no
	// session is open.
	ErrNotConnected = errors.New("fireplace: not connected")

	// ErrConnectionFailed is returned when dialling the fireplace fails.
	ErrConnectionFailed = errors.New("fireplace: connection failed")

	// ErrConnectionClosed is returned when the fireplace closes the session.
	ErrConnectionClosed = errors.New("fireplace: connection closed by remote")

	// ErrLineTooLong is returned when an inbound line exceeds the maximum
	// length without a terminator. The session is dropped to resync.
	ErrLineTooLong = errors.New("fireplace: line exceeds maximum length")

	// ErrMalformedValue is returned when a property value cannot be parsed.
	ErrMalformedValue = errors.New("fireplace: malformed value")

	// ErrUnknownProperty is returned for property names outside the
	// protocol vocabulary.
	ErrUnknownProperty = errors.New("fireplace: unknown property")

	// ErrAlreadyStarted is returned when Start is called twice without Stop.
	ErrAlreadyStarted = errors.New("fireplace: coordinator already started")

	// ErrInvalidConfig is returned when the coordinator configuration is
	// incomplete.
	ErrInvalidConfig = errors.New("fireplace: invalid configuration")
)
