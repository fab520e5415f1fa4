package pairing

import (
	"testing"
	"time"

	"github.com/nerrad567/autopair-core/internal/bluetooth"
)

type fakePointWriter struct {
	deviceID, operation, result string
	attempts                    int
}

func (f *fakePointWriter) WritePairingOutcome(deviceID, operation, result string, attempts int, _ time.Duration) {
	f.deviceID, f.operation, f.result, f.attempts = deviceID, operation, result, attempts
}

func TestInfluxRecorder(t *testing.T) {
	tests := []struct {
		name    string
		success bool
		want    string
	}{
		{"success", true, "success"},
		{"failure", false, "failure"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &fakePointWriter{}
			r := &InfluxRecorder{w: w}
			r.RecordResult(Result{
				DeviceID:  "AA:BB",
				Operation: bluetooth.OpPair,
				Success:   tt.success,
				Attempts:  3,
			})

			if w.result != tt.want {
				t.Errorf("result = %q, want %q", w.result, tt.want)
			}
			if w.deviceID != "AA:BB" || w.operation != string(bluetooth.OpPair) || w.attempts != 3 {
				t.Errorf("point = %+v", w)
			}
		})
	}
}

func TestRecorders_FanOut(t *testing.T) {
	a, b := &recordingRecorder{}, &recordingRecorder{}
	rs := Recorders{a, b}

	rs.RecordResult(Result{DeviceID: "AA:BB", Success: true})
	rs.RecordResult(Result{DeviceID: "CC:DD"})

	for i, r := range []*recordingRecorder{a, b} {
		if len(r.results) != 2 {
			t.Fatalf("recorder %d got %d results, want 2", i, len(r.results))
		}
		if r.results[1].DeviceID != "CC:DD" {
			t.Errorf("recorder %d second result = %q, want CC:DD", i, r.results[1].DeviceID)
		}
	}

	// An empty set is a valid no-op.
	Recorders(nil).RecordResult(Result{})
}
