package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementPairingOperations = "pairing_operations"
	MeasurementDeviceInventory   = "device_inventory"
	MeasurementDisplayChanges    = "display_changes"
)

// WritePairingOutcome records one finished workflow step.
//
//	client.WritePairingOutcome("AA:BB", "pair", "success", 3, 2100*time.Millisecond)
func (c *Client) WritePairingOutcome(deviceID, operation, result string, attempts int, elapsed time.Duration) {
	c.WritePoint(MeasurementPairingOperations,
		map[string]string{
			"device_id": deviceID,
			"operation": operation,
			"result":    result,
		},
		map[string]any{
			"attempts":    attempts,
			"duration_ms": elapsed.Milliseconds(),
		})
}

// WriteInventory records registry totals.
func (c *Client) WriteInventory(total, saved, connected int) {
	c.WritePoint(MeasurementDeviceInventory, nil, map[string]any{
		"total":     total,
		"saved":     saved,
		"connected": connected,
	})
}

// WriteDisplayChange records an external display appearing or disappearing.
func (c *Client) WriteDisplayChange(external bool) {
	c.WritePoint(MeasurementDisplayChanges, nil, map[string]any{"external": external})
}

// WritePoint queues a point stamped with the current time. Dropped when
// the client is closed.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
