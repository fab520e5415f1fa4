package statusbridge

import (
	"time"

	"github.com/nerrad567/autopair-core/internal/device"
)

// Action is what a command asks for.
type Action string

const (
	ActionPair        Action = "pair"
	ActionConnect     Action = "connect"
	ActionUnpair      Action = "unpair"
	ActionToggleSaved Action = "toggle_saved"
	ActionRemove      Action = "remove"
)

// CommandMessage is received on autopair/command/{id}.
type CommandMessage struct {
	// ID correlates the command with its ack. Optional.
	ID     string `json:"id,omitempty"`
	Action Action `json:"action"`

	// Source names the sender, e.g. "home-assistant".
	Source string `json:"source,omitempty"`
}

// AckStatus is the result of a command.
type AckStatus string

const (
	// AckAccepted means a workflow was started in the background.
	AckAccepted AckStatus = "accepted"

	// AckCompleted means the command finished synchronously.
	AckCompleted AckStatus = "completed"

	AckFailed AckStatus = "failed"
)

// AckMessage is published on autopair/event/command_ack.
type AckMessage struct {
	CommandID string    `json:"command_id,omitempty"`
	DeviceID  string    `json:"device_id"`
	Action    Action    `json:"action"`
	Status    AckStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StateMessage is the retained per-device state.
type StateMessage struct {
	DeviceID        string                 `json:"device_id"`
	Name            string                 `json:"name"`
	IsSaved         bool                   `json:"is_saved"`
	IsConnected     bool                   `json:"is_connected"`
	OperationStatus device.OperationStatus `json:"operation_status"`
	LastSeen        time.Time              `json:"last_seen"`
}

func stateFromDevice(d device.Device) StateMessage {
	return StateMessage{
		DeviceID:        d.ID,
		Name:            d.Name,
		IsSaved:         d.IsSaved,
		IsConnected:     d.IsConnected,
		OperationStatus: d.OperationStatus,
		LastSeen:        d.LastSeen.UTC(),
	}
}
