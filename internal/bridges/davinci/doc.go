// Package davinci bridges the fireplace coordinator onto the shared MQTT
// bus.
//
//	┌─────────────────┐          ┌─────────────────┐
//	│   Home system   │   MQTT   │ DaVinci Bridge  │   TCP :10001
//	│   (any client)  │◄────────►│   (this pkg)    │◄────────────► Fireplace
//	└─────────────────┘          └─────────────────┘
//
// # Responsibilities
//
//   - Receive commands on graylogic/command/davinci/{device}
//   - Run them through the device capabilities and acknowledge on
//     graylogic/ack/davinci/{device}
//   - Publish the retained state snapshot on graylogic/state/davinci/{device}
//     whenever it changes
//   - Publish retained health on graylogic/health/davinci
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
package davinci
