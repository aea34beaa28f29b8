package config

// Config is the single startup configuration object for the VAD server.
type Config struct {
	Server    ServerConfig  `yaml:"server" mapstructure:"server"`
	Log       LogConfig     `yaml:"log" mapstructure:"log"`
	Web       WebConfig     `yaml:"web" mapstructure:"web"`
	Audio     AudioConfig   `yaml:"audio" mapstructure:"audio"`
	VAD       VADConfig     `yaml:"vad" mapstructure:"vad"`
	Queue     QueueConfig   `yaml:"queue" mapstructure:"queue"`
	Storage   StorageConfig `yaml:"storage" mapstructure:"storage"`
	Telemetry Telemetry     `yaml:"telemetry" mapstructure:"telemetry"`
}

// ServerConfig configures the websocket transport endpoint.
type ServerConfig struct {
	IP   string `yaml:"ip" mapstructure:"ip"`
	Port int    `yaml:"port" mapstructure:"port"`
	Path string `yaml:"path" mapstructure:"path"`
}

type LogConfig struct {
	Level string `yaml:"log_level" mapstructure:"log_level"`
	Dir   string `yaml:"log_dir" mapstructure:"log_dir"`
	File  string `yaml:"log_file" mapstructure:"log_file"`
}

// WebConfig configures the HTTP status API.
type WebConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	Port    int  `yaml:"port" mapstructure:"port"`
}

// AudioConfig describes the only accepted input format. Clients must submit
// 16-bit little-endian mono PCM at SampleRate; no resampling is performed.
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate" mapstructure:"sample_rate"`
	FrameMs    int `yaml:"frame_ms" mapstructure:"frame_ms"`
}

// VADConfig holds the detector and state machine tunables.
type VADConfig struct {
	Backend              string  `yaml:"backend" mapstructure:"backend"`
	ModelPath            string  `yaml:"model_path" mapstructure:"model_path"`
	Threshold            float32 `yaml:"threshold" mapstructure:"threshold"`
	VoiceBeginMs         float32 `yaml:"voice_begin_ms" mapstructure:"voice_begin_ms"`
	VoiceStopMs          float32 `yaml:"voice_stop_ms" mapstructure:"voice_stop_ms"`
	MaxSilenceMs         float32 `yaml:"max_silence_ms" mapstructure:"max_silence_ms"`
	MaxSegmentMs         float32 `yaml:"max_segment_ms" mapstructure:"max_segment_ms"`
	PrerollCapacityBytes int     `yaml:"preroll_capacity_bytes" mapstructure:"preroll_capacity_bytes"`
}

// QueueConfig bounds the inbound audio work queue.
type QueueConfig struct {
	Workers  int `yaml:"workers" mapstructure:"workers"`
	Depth    int `yaml:"depth" mapstructure:"depth"`
	MaxDrops int `yaml:"max_drops" mapstructure:"max_drops"`
}

// StorageConfig toggles the sqlite segment journal.
type StorageConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	DSN     string `yaml:"dsn" mapstructure:"dsn"`
}

type Telemetry struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// FrameSamples returns the number of samples in one detector frame.
func (c *Config) FrameSamples() int {
	return c.Audio.SampleRate / 1000 * c.Audio.FrameMs
}

// FrameBytes returns the number of PCM bytes in one detector frame.
func (c *Config) FrameBytes() int {
	return c.FrameSamples() * 2
}
