package config

const (
	// DefaultSampleRate is the only sample rate the bundled Silero models
	// are trained for at this frame size.
	DefaultSampleRate = 16000

	// DefaultFrameMs matches the 320-sample streaming window. 32 ms
	// (512 samples) is also accepted, see Validate.
	DefaultFrameMs = 20

	DefaultThreshold    = 0.5
	DefaultVoiceBeginMs = 250
	DefaultVoiceStopMs  = 600
	DefaultMaxSilenceMs = 15000
	DefaultMaxSegmentMs = 30000

	// DefaultPrerollCapacityBytes keeps one second of 16 kHz 16-bit audio
	// ahead of a detected onset.
	DefaultPrerollCapacityBytes = 32000
)

// Default returns a fully populated configuration with the stock tunables.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			IP:   "0.0.0.0",
			Port: 9002,
			Path: "/",
		},
		Log: LogConfig{
			Level: "info",
			Dir:   "logs",
			File:  "server.log",
		},
		Web: WebConfig{
			Enabled: true,
			Port:    8080,
		},
		Audio: AudioConfig{
			SampleRate: DefaultSampleRate,
			FrameMs:    DefaultFrameMs,
		},
		VAD: VADConfig{
			Backend:              "silero",
			ModelPath:            "models/silero_vad.onnx",
			Threshold:            DefaultThreshold,
			VoiceBeginMs:         DefaultVoiceBeginMs,
			VoiceStopMs:          DefaultVoiceStopMs,
			MaxSilenceMs:         DefaultMaxSilenceMs,
			MaxSegmentMs:         DefaultMaxSegmentMs,
			PrerollCapacityBytes: DefaultPrerollCapacityBytes,
		},
		Queue: QueueConfig{
			Workers:  4,
			Depth:    256,
			MaxDrops: 64,
		},
		Storage: StorageConfig{
			Enabled: false,
			DSN:     "data/segments.db",
		},
		Telemetry: Telemetry{
			Enabled: false,
		},
	}
}
