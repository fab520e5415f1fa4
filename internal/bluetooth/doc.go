// Package bluetooth enumerates paired peripherals and performs pair,
// connect and unpair operations against the host Bluetooth stack.
//
// Two implementations are provided:
//
//   - BlueZ talks to bluetoothd over the system D-Bus (Linux).
//   - Blueutil shells out to the blueutil CLI (macOS).
//
// Both satisfy Enumerator and Backend. Enumeration errors mean the source
// is unavailable, never that no devices exist; callers rely on that
// distinction to avoid wiping their inventory.
package bluetooth
