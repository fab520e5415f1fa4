package pairing

import (
	"time"

	"github.com/nerrad567/autopair-core/internal/infrastructure/influxdb"
)

// pointWriter is the part of influxdb.Client used for outcomes.
type pointWriter interface {
	WritePairingOutcome(deviceID, operation, result string, attempts int, elapsed time.Duration)
}

// InfluxRecorder writes results to the pairing_operations measurement.
type InfluxRecorder struct {
	w pointWriter
}

// NewInfluxRecorder returns a recorder writing through client.
func NewInfluxRecorder(client *influxdb.Client) *InfluxRecorder {
	return &InfluxRecorder{w: client}
}

// RecordResult implements Recorder. Writes are batched by the client.
func (r *InfluxRecorder) RecordResult(res Result) {
	result := "success"
	if !res.Success {
		result = "failure"
	}
	r.w.WritePairingOutcome(res.DeviceID, string(res.Operation), result, res.Attempts, res.Elapsed)
}

// Recorders fans each result out to every recorder in order.
type Recorders []Recorder

// RecordResult implements Recorder.
func (rs Recorders) RecordResult(res Result) {
	for _, r := range rs {
		r.RecordResult(res)
	}
}
