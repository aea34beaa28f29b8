package vad

import (
	"vad-server-go/internal/domain/vad/inter"
)

func init() {
	Register("mock", func(cfg inter.DetectorConfig) (inter.Detector, error) {
		return NewMockDetector(cfg.Threshold, nil), nil
	})
}

// MockDetector replays a scripted probability sequence. Once the script is
// exhausted it keeps returning the final value, so a short script can
// stand in for "speech forever" or "silence forever" tails. It exists for
// tests and for running the server without a model file.
type MockDetector struct {
	threshold float32
	script    []float32
	index     int
}

// NewMockDetector creates a detector replaying script against threshold.
// A nil or empty script reports permanent silence.
func NewMockDetector(threshold float32, script []float32) *MockDetector {
	return &MockDetector{
		threshold: threshold,
		script:    script,
	}
}

// ProcessFrame ignores the audio content and replays the script.
func (d *MockDetector) ProcessFrame(frame []float32) (inter.Result, error) {
	var prob float32
	if len(d.script) > 0 {
		i := d.index
		if i >= len(d.script) {
			i = len(d.script) - 1
		}
		prob = d.script[i]
		d.index++
	}
	return inter.Result{
		Probability: prob,
		Active:      prob >= d.threshold,
	}, nil
}

// Reset rewinds the script.
func (d *MockDetector) Reset() error {
	d.index = 0
	return nil
}

// Close is a no-op.
func (d *MockDetector) Close() error {
	return nil
}
