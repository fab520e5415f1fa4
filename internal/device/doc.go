// Package device holds the registry of wireless peripherals autopair knows
// about.
//
// The Registry is the single owner of device records. It merges persisted
// state with live enumeration from a bluetooth.Enumerator and hands out
// copies to everyone else.
//
// # Architecture
//
//	bluetooth.Enumerator          Store (SQLite kv)
//	       │                            ▲
//	       ▼                            │ saved_device_ids
//	┌──────────────┐   Merge      ┌─────┴────────┐ all_devices
//	│  Reconciler  │─────────────▶│   Registry   │
//	│ ticker+notify│   Refresh    │ RWMutex, map │
//	└──────────────┘              └─────┬────────┘
//	                                    │ Subscribe()
//	                                    ▼
//	                       WebSocket hub, MQTT status bridge
//
// # Invariants
//
//   - Refresh never removes a record. Devices no longer enumerated keep
//     their last known values.
//   - IsSaved survives every refresh. Newly seen devices start saved.
//   - RemoveDevice only deletes a record the enumerator does not currently
//     report as paired.
//   - OperationStatus and IsConnected are never persisted.
//   - Nothing is written over persisted state that failed to load unless
//     the undecodable value was first copied to its key plus CorruptSuffix.
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use. Enumeration and store
// I/O happen outside the registry lock. Refreshes run one at a time, so
// merges apply in the order the enumerations were taken.
package device
