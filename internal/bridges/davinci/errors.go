package davinci

import "errors"

// Domain errors for the DaVinci bridge package.
var (
	// ErrMQTTClientRequired is returned by NewBridge without an MQTT client.
	ErrMQTTClientRequired = errors.New("davinci: MQTT client is required")

	// ErrFireplaceRequired is returned by NewBridge without a fireplace.
	ErrFireplaceRequired = errors.New("davinci: fireplace is required")

	// ErrInvalidCommand is returned when a command payload cannot be decoded.
	ErrInvalidCommand = errors.New("davinci: invalid command message")

	// ErrUnknownDevice is returned for commands addressed to another device.
	ErrUnknownDevice = errors.New("davinci: unknown device")
)
