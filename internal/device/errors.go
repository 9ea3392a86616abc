package device

import "errors"

// Sentinel errors for the device package. Check with errors.Is.
var (
	// ErrQueueFull is returned when the fireplace command queue dropped a
	// command.
	ErrQueueFull = errors.New("device: command queue full")

	// ErrInvalidBrightness is returned for brightness outside 0-255.
	ErrInvalidBrightness = errors.New("device: brightness must be 0-255")

	// ErrInvalidPercentage is returned for fan percentages outside 0-100.
	ErrInvalidPercentage = errors.New("device: percentage must be 0-100")

	// ErrInvalidColor is returned for LED channels outside 0-255.
	ErrInvalidColor = errors.New("device: color channels must be 0-255")

	ErrDeviceIDRequired = errors.New("device: device id is required")

	// ErrUnknownCommand is returned by Execute for names outside the
	// command vocabulary.
	ErrUnknownCommand = errors.New("device: unknown command")

	// ErrInvalidParameter is returned when a command parameter is missing
	// or has the wrong type.
	ErrInvalidParameter = errors.New("device: invalid parameter")
)
