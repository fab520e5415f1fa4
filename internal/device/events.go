package device

import "time"

// EventType identifies what changed in the registry.
type EventType string

const (
	// EventStatusChanged is published when a device's OperationStatus changes.
	EventStatusChanged EventType = "status_changed"

	// EventDevicesRefreshed is published after a successful Refresh.
	EventDevicesRefreshed EventType = "devices_refreshed"

	// EventSavedToggled is published when a device's IsSaved flag flips.
	EventSavedToggled EventType = "saved_toggled"

	// EventDeviceRemoved is published when a record is deleted.
	EventDeviceRemoved EventType = "device_removed"
)

// Event describes one registry change. Device is set for single-device
// events, Devices for refreshes.
type Event struct {
	Type      EventType `json:"type"`
	DeviceID  string    `json:"device_id,omitempty"`
	Device    *Device   `json:"device,omitempty"`
	Devices   []Device  `json:"devices,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
