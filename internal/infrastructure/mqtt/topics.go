package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every autopair topic.
const TopicPrefix = "autopair"

// Topics builds autopair topic names.
//
//	autopair/system/status          retained online/offline (LWT)
//	autopair/device/{id}/state      retained per-device snapshot
//	autopair/event/{type}           registry and workflow events
//	autopair/command/{id}           inbound device commands
//	autopair/display/state          inbound {"external": bool}
type Topics struct{}

// SystemStatus is the retained online/offline topic.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// DeviceState is the retained state topic for one device.
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/state", TopicPrefix, deviceID)
}

// Event is the topic for one event type.
func (Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, eventType)
}

// Command is the inbound command topic for one device.
func (Topics) Command(deviceID string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, deviceID)
}

// AllCommands matches every device command topic.
func (Topics) AllCommands() string {
	return TopicPrefix + "/command/+"
}

// DisplayState is the default inbound display topology topic.
func (Topics) DisplayState() string {
	return TopicPrefix + "/display/state"
}

// CommandDeviceID extracts the device id from a command topic. ok is false
// for any other topic.
func (Topics) CommandDeviceID(topic string) (id string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefix+"/command/")
	if !found || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
