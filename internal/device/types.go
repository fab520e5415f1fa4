package device

import (
	"slices"
	"time"
)

// OperationStatus is the workflow a device is currently going through.
type OperationStatus string

const (
	StatusIdle       OperationStatus = "idle"
	StatusPairing    OperationStatus = "pairing"
	StatusConnecting OperationStatus = "connecting"
	StatusUnpairing  OperationStatus = "unpairing"
)

// AllStatuses lists every valid OperationStatus.
var AllStatuses = []OperationStatus{StatusIdle, StatusPairing, StatusConnecting, StatusUnpairing}

// Valid reports whether s is a known status.
func (s OperationStatus) Valid() bool {
	return slices.Contains(AllStatuses, s)
}

// Busy reports whether a workflow is in progress.
func (s OperationStatus) Busy() bool {
	return s != StatusIdle && s != ""
}

// CanTransitionTo reports whether moving from s to next is allowed.
//
// Idle may move to any busy status and every busy status returns to idle.
// Busy statuses never move into each other. Staying put is always allowed.
func (s OperationStatus) CanTransitionTo(next OperationStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	switch {
	case s == next:
		return true
	case s == StatusIdle:
		return true
	case next == StatusIdle:
		return true
	}
	return false
}

// Device is one wireless peripheral.
//
// ID and Name come from the enumerator. IsSaved and LastSeen are persisted.
// IsConnected and OperationStatus are runtime only.
type Device struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	IsSaved         bool            `json:"isSaved"`
	LastSeen        time.Time       `json:"lastSeen"`
	IsConnected     bool            `json:"isConnected"`
	OperationStatus OperationStatus `json:"operationStatus"`
}

// record is the persisted shape of a Device in the all_devices key.
type record struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	IsSaved  bool      `json:"isSaved"`
	LastSeen time.Time `json:"lastSeen"`
}

func (d Device) record() record {
	return record{ID: d.ID, Name: d.Name, IsSaved: d.IsSaved, LastSeen: d.LastSeen}
}

func (r record) device() Device {
	return Device{ID: r.ID, Name: r.Name, IsSaved: r.IsSaved, LastSeen: r.LastSeen, OperationStatus: StatusIdle}
}
