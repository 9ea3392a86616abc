// Package mqtt connects the bridge to the home automation MQTT bus.
//
// It manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and payload limits
//   - Subscriptions that survive reconnects
//   - A retained Last Will on the bridge health topic
//
// # Topics
//
//	graylogic/command/davinci/{device}   commands in
//	graylogic/ack/davinci/{device}       command acknowledgements
//	graylogic/state/davinci/{device}     retained state snapshots
//	graylogic/health/davinci             retained health + LWT
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishRetained(mqtt.Topics{}.State("fireplace"), payload)
package mqtt
