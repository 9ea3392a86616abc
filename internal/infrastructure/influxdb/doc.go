// Package influxdb writes fireplace state history to InfluxDB v2.
//
// Each state change becomes one point in the fireplace_state measurement,
// tagged with the device ID. Connection events go to fireplace_events.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteDeviceState("fireplace", coordinator.State().Fields())
//
// Writes are batched per batch_size and flush_interval and never block
// the caller. Errors from the batch writer arrive via SetOnError.
package influxdb
