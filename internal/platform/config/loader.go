package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is searched in the working directory when no explicit
// path is supplied.
const DefaultConfigFile = ".config.yaml"

// Loader reads the YAML configuration file, applies environment overrides
// and validates the result.
type Loader struct {
	path      string
	useDotEnv bool
	lookup    func(string) (string, bool)
}

// NewLoader creates a loader for the default config file location.
func NewLoader() *Loader {
	return &Loader{
		path:      DefaultConfigFile,
		useDotEnv: true,
		lookup:    os.LookupEnv,
	}
}

// WithPath overrides the configuration file path.
func (l *Loader) WithPath(path string) *Loader {
	if path != "" {
		l.path = path
	}
	return l
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithLookup overrides the environment source (useful for tests).
func (l *Loader) WithLookup(lookup func(string) (string, bool)) *Loader {
	if lookup != nil {
		l.lookup = lookup
	}
	return l
}

// Result captures the loaded configuration and its origin path.
type Result struct {
	Config *Config
	Path   string
}

// Load builds the effective configuration: defaults, then the YAML file if
// present, then environment overrides. A missing config file is not an
// error; the defaults plus environment are used.
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		_ = godotenv.Load()
	}

	cfg := Default()

	path := l.path
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		path = ""
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	l.applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return &Result{Config: cfg, Path: path}, nil
}

func (l *Loader) applyEnv(cfg *Config) {
	overrideInt(l.lookup, "VAD_SERVER_PORT", &cfg.Server.Port)
	overrideString(l.lookup, "VAD_SERVER_IP", &cfg.Server.IP)
	overrideString(l.lookup, "VAD_LOG_LEVEL", &cfg.Log.Level)
	overrideString(l.lookup, "VAD_MODEL_PATH", &cfg.VAD.ModelPath)
	overrideString(l.lookup, "VAD_BACKEND", &cfg.VAD.Backend)
	overrideFloat32(l.lookup, "VAD_THRESHOLD", &cfg.VAD.Threshold)
	overrideInt(l.lookup, "VAD_WEB_PORT", &cfg.Web.Port)
	overrideString(l.lookup, "VAD_STORAGE_DSN", &cfg.Storage.DSN)
}

// Validate rejects configurations the runtime cannot honour.
func Validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", cfg.Server.Port)
	}
	if cfg.Web.Enabled && (cfg.Web.Port <= 0 || cfg.Web.Port > 65535) {
		return fmt.Errorf("web port %d out of range", cfg.Web.Port)
	}
	if cfg.Audio.SampleRate != DefaultSampleRate {
		return fmt.Errorf("sample rate %d unsupported, the detector requires %d", cfg.Audio.SampleRate, DefaultSampleRate)
	}
	// The Silero streaming entry points are exported for 320- and
	// 512-sample windows; other frame durations would silently degrade
	// detection quality.
	if cfg.Audio.FrameMs != 20 && cfg.Audio.FrameMs != 32 {
		return fmt.Errorf("frame_ms %d unsupported, expected 20 or 32", cfg.Audio.FrameMs)
	}
	if cfg.VAD.Threshold <= 0 || cfg.VAD.Threshold >= 1 {
		return fmt.Errorf("threshold %v out of (0,1)", cfg.VAD.Threshold)
	}
	if cfg.VAD.VoiceBeginMs <= 0 || cfg.VAD.VoiceStopMs <= 0 {
		return fmt.Errorf("voice_begin_ms/voice_stop_ms must be positive")
	}
	if cfg.VAD.MaxSilenceMs < cfg.VAD.VoiceStopMs {
		return fmt.Errorf("max_silence_ms %v below voice_stop_ms %v", cfg.VAD.MaxSilenceMs, cfg.VAD.VoiceStopMs)
	}
	if cfg.VAD.PrerollCapacityBytes <= 0 || cfg.VAD.PrerollCapacityBytes%2 != 0 {
		return fmt.Errorf("preroll_capacity_bytes %d must be positive and even", cfg.VAD.PrerollCapacityBytes)
	}
	if cfg.Queue.Workers <= 0 {
		return fmt.Errorf("queue workers must be positive")
	}
	if cfg.Queue.Depth <= 0 {
		return fmt.Errorf("queue depth must be positive")
	}
	return nil
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if value, ok := lookup(key); ok && value != "" {
		*target = value
	}
}

func overrideInt(lookup func(string) (string, bool), key string, target *int) {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat32(lookup func(string) (string, bool), key string, target *float32) {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(value, 32); err == nil {
			*target = float32(parsed)
		}
	}
}
