package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every agent topic.
//
// Southbound measures use iotagent/{type}/{deviceId}/attrs and the agent's
// own presence is published to iotagent/system/status.
const TopicPrefix = "iotagent"

// attrsSuffix ends every device measure topic.
const attrsSuffix = "attrs"

// Topics provides builders and parsers for agent MQTT topics.
//
//	topics := mqtt.Topics{}
//	topic := topics.AllDeviceAttributes()
//	// Returns: "iotagent/+/+/attrs"
type Topics struct{}

// AllDeviceAttributes returns a pattern matching every device measure topic.
//
// Pattern: iotagent/+/+/attrs
func (Topics) AllDeviceAttributes() string {
	return fmt.Sprintf("%s/+/+/%s", TopicPrefix, attrsSuffix)
}

// SystemStatus returns the retained agent status topic.
//
// Example: iotagent/system/status
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// ParseDeviceAttributes extracts the device type and id from a measure topic.
// It reports false for any topic not shaped like iotagent/{type}/{id}/attrs.
func (Topics) ParseDeviceAttributes(topic string) (deviceType, deviceID string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix || parts[3] != attrsSuffix {
		return "", "", false
	}
	if parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}
