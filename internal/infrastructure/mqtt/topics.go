package mqtt

import "fmt"

// Topic layout on the shared bus: graylogic/{category}/{protocol}/{device}.
const (
	// TopicPrefix is the root of every topic the bridge uses.
	TopicPrefix = "graylogic"

	// Protocol is the protocol segment for fireplace topics.
	Protocol = "davinci"
)

// Topics provides builders for bridge MQTT topics.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.State("fireplace")
//	// Returns: "graylogic/state/davinci/fireplace"
type Topics struct{}

// State returns the retained state topic for a device.
func (Topics) State(deviceID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, Protocol, deviceID)
}

// Command returns the topic the bridge receives device commands on.
func (Topics) Command(deviceID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, Protocol, deviceID)
}

// Ack returns the topic for command acknowledgements.
func (Topics) Ack(deviceID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, Protocol, deviceID)
}

// Health returns the retained bridge health topic. It doubles as the LWT
// topic.
func (Topics) Health() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, Protocol)
}

// AllCommands matches commands for every device handled by the bridge.
func (Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, Protocol)
}

// DeviceFromTopic extracts the trailing device segment of a topic.
// It returns "" when the topic has no device segment.
func DeviceFromTopic(topic string) string {
	for i := len(topic) - 1; i >= 0; i-- {
		if topic[i] == '/' {
			return topic[i+1:]
		}
	}
	return ""
}
