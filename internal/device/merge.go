package device

import (
	"cmp"
	"slices"
	"time"

	"github.com/nerrad567/autopair-core/internal/bluetooth"
)

// Merge folds one enumeration into the existing records and returns the
// sorted result. existing is not modified.
//
// Observed devices update name, connection flag and LastSeen while keeping
// IsSaved and OperationStatus. Unknown devices are added as saved with
// LastSeen = now. Records that were not observed are kept unchanged.
func Merge(existing []Device, observed []bluetooth.PairedDevice, now time.Time) []Device {
	byID := make(map[string]int, len(existing))
	merged := make([]Device, len(existing), len(existing)+len(observed))
	copy(merged, existing)
	for i, d := range merged {
		byID[d.ID] = i
	}

	for _, p := range observed {
		if p.Address == "" {
			continue
		}
		name := p.Name
		if name == "" {
			name = bluetooth.UnknownName
		}

		if i, ok := byID[p.Address]; ok {
			merged[i].Name = name
			merged[i].IsConnected = p.Connected
			merged[i].LastSeen = now
			continue
		}

		byID[p.Address] = len(merged)
		merged = append(merged, Device{
			ID:              p.Address,
			Name:            name,
			IsSaved:         true,
			LastSeen:        now,
			IsConnected:     p.Connected,
			OperationStatus: StatusIdle,
		})
	}

	SortDevices(merged)
	return merged
}

// SortDevices orders devices connected first, then by LastSeen descending.
// Ties fall back to ID so the order is stable across refreshes.
func SortDevices(devices []Device) {
	slices.SortStableFunc(devices, func(a, b Device) int {
		if a.IsConnected != b.IsConnected {
			if a.IsConnected {
				return -1
			}
			return 1
		}
		if c := b.LastSeen.Compare(a.LastSeen); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
