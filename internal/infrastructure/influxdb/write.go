package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// StateMeasurement is the measurement fireplace snapshots are written to.
const StateMeasurement = "fireplace_state"

// StatePoint builds the point for one device snapshot.
func StatePoint(deviceID string, fields map[string]any, ts time.Time) *write.Point {
	return write.NewPoint(
		StateMeasurement,
		map[string]string{"device_id": deviceID},
		fields,
		ts,
	)
}

// WriteDeviceState records a device snapshot. The write is batched and
// non-blocking; failures surface through SetOnError.
//
//	client.WriteDeviceState("fireplace", state.Fields())
func (c *Client) WriteDeviceState(deviceID string, fields map[string]any) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}
	c.writeAPI.WritePoint(StatePoint(deviceID, fields, time.Now()))
}

// WriteEvent records a connection or command event for a device, e.g.
// "connected", "disconnected" or "command_dropped".
func (c *Client) WriteEvent(deviceID, event string) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(
		"fireplace_events",
		map[string]string{"device_id": deviceID, "event": event},
		map[string]any{"count": 1},
		time.Now(),
	))
}
