// Package influxdb records autopair operational metrics in InfluxDB v2.
//
// Measurements:
//   - pairing_operations: one point per finished pair/connect/unpair
//     (tags device_id, operation, result; fields attempts, duration_ms)
//   - device_inventory: registry totals after each refresh
//   - display_changes: external display connect/disconnect
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // metrics off
//	}
//	defer client.Close()
//
//	client.WritePairingOutcome("AA:BB", "pair", "success", 1, elapsed)
//
// Writes are non-blocking and batched (batch_size, flush_interval).
// Write failures arrive asynchronously through SetOnError.
package influxdb
