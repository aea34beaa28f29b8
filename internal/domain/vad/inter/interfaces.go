package inter

// Result is the detector output for a single frame.
type Result struct {
	Probability float32 `json:"probability"`
	Active      bool    `json:"active"`
}

// Detector scores fixed-size audio frames for speech. Implementations keep
// whatever streaming state they need between calls; callers guarantee that
// frames of one stream arrive strictly sequentially.
type Detector interface {
	// ProcessFrame scores one frame of normalized samples in [-1, 1].
	// The frame length must equal the configured frame size.
	ProcessFrame(frame []float32) (Result, error)

	// Reset clears hidden state so the detector can score a new stream.
	Reset() error

	// Close releases detector resources.
	Close() error
}

// DetectorConfig carries the settings shared by all detector backends.
type DetectorConfig struct {
	SampleRate   int     `json:"sample_rate"`
	FrameSamples int     `json:"frame_samples"`
	Threshold    float32 `json:"threshold"`
	ModelPath    string  `json:"model_path"`
}
