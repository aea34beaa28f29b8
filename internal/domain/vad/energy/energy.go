package energy

import (
	"math"

	"vad-server-go/internal/domain/vad"
	"vad-server-go/internal/domain/vad/inter"
)

// DefaultSensitivity separates a quiet room (RMS below ~0.01) from speech
// (typically above 0.05) on normalized samples.
const DefaultSensitivity = 0.02

func init() {
	vad.Register("energy", func(cfg inter.DetectorConfig) (inter.Detector, error) {
		return New(cfg), nil
	})
}

// Detector is the model-free fallback backend: per-frame RMS energy
// against a fixed sensitivity. It has no streaming state, which makes it
// handy on machines without an ONNX runtime.
type Detector struct {
	sensitivity float32
}

// New creates an energy detector. cfg.Threshold is interpreted in the RMS
// domain; zero selects DefaultSensitivity.
func New(cfg inter.DetectorConfig) *Detector {
	sensitivity := cfg.Threshold
	if sensitivity <= 0 {
		sensitivity = DefaultSensitivity
	}
	return &Detector{sensitivity: sensitivity}
}

// ProcessFrame reports the frame RMS as the speech probability.
func (d *Detector) ProcessFrame(frame []float32) (inter.Result, error) {
	var sumSquares float64
	for _, sample := range frame {
		sumSquares += float64(sample) * float64(sample)
	}

	var rms float32
	if len(frame) > 0 {
		rms = float32(math.Sqrt(sumSquares / float64(len(frame))))
	}
	if rms > 1 {
		rms = 1
	}

	return inter.Result{
		Probability: rms,
		Active:      rms >= d.sensitivity,
	}, nil
}

// Reset is a no-op; the detector is stateless across frames.
func (d *Detector) Reset() error {
	return nil
}

// Close is a no-op.
func (d *Detector) Close() error {
	return nil
}
