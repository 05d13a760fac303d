// Package config provides the configuration structure for voiceclone.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"
)

// DefaultFileName is the config file picked up from the working directory
// when no explicit path is given.
const DefaultFileName = "voiceclone.toml"

// Engine kinds.
const (
	EngineKindHTTP    = "http"
	EngineKindCommand = "command"
)

const (
	defaultLogsDir         = "logs"
	defaultVoicesDir       = "voices"
	defaultVoiceSamplesDir = "voice_samples"
	defaultOutputDir       = "output"
	defaultWindowSeconds   = 20
	defaultMinSeconds      = 5
	defaultHeadroomDB      = 0.1
	defaultFilePrefix      = "segment_"
	defaultTargetRate      = 24000
	defaultQuality         = "high_quality"
	defaultOutputName      = "speech_output.wav"
	defaultMinOutputBytes  = 1024
	defaultTimeoutSeconds  = 600
	defaultEngineURL       = "http://127.0.0.1:8000"
	defaultHealthSeconds   = 10
	defaultNATSURL         = "nats://127.0.0.1:4222"
	defaultSubject         = "voiceclone.synthesis.requested"
	defaultAudioBucket     = "VOICECLONE_AUDIO"
)

// Validation errors.
var (
	ErrWindowNotPositive   = errors.New("segmenter window must be positive")
	ErrMinExceedsWindow    = errors.New("segmenter minimum length must be between 0 and the window")
	ErrSampleRateInvalid   = errors.New("synthesizer sample rate must be positive")
	ErrUnknownEngineKind   = errors.New("unknown engine kind")
	ErrEngineURLEmpty      = errors.New("engine url cannot be empty")
	ErrEngineCommandEmpty  = errors.New("engine command cannot be empty")
	ErrMinOutputBytesRange = errors.New("min_output_bytes must be non-negative")
	ErrHeadroomNegative    = errors.New("headroom_db must be non-negative")
)

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir     string `toml:"base_logs_dir"`
	VoicesDir       string `toml:"voices_dir"`
	VoiceSamplesDir string `toml:"voice_samples_dir"`
	OutputDir       string `toml:"output_dir"`
}

// SegmenterConfig controls how recordings are cut into reference samples.
type SegmenterConfig struct {
	WindowSeconds     float64  `toml:"window_seconds"`
	MinSegmentSeconds *float64 `toml:"min_segment_seconds"`
	HeadroomDB        *float64 `toml:"headroom_db"`
	SampleRate        int      `toml:"sample_rate"`
	FilePrefix        string   `toml:"file_prefix"`
}

// SynthesizerConfig controls the preset ladder run and output verification.
type SynthesizerConfig struct {
	SampleRate     int    `toml:"sample_rate"`
	DefaultQuality string `toml:"default_quality"`
	OutputName     string `toml:"output_name"`
	MinOutputBytes *int64 `toml:"min_output_bytes"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	NormalizeText  bool   `toml:"normalize_text"`
}

// EngineConfig describes how to reach the external text-to-speech engine.
type EngineConfig struct {
	Kind                 string   `toml:"kind"`
	URL                  string   `toml:"url"`
	Command              string   `toml:"command"`
	Args                 []string `toml:"args"`
	HealthTimeoutSeconds int      `toml:"health_timeout_seconds"`
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                    string `toml:"url"`
	SynthesisSubject       string `toml:"synthesis_subject"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
}

// Config is the root configuration structure.
type Config struct {
	Paths       PathsConfig       `toml:"paths"`
	Segmenter   SegmenterConfig   `toml:"segmenter"`
	Synthesizer SynthesizerConfig `toml:"synthesizer"`
	Engine      EngineConfig      `toml:"engine"`
	NATS        NATSConfig        `toml:"nats"`
}

// Default returns a configuration with every field set to its default.
func Default() *Config {
	var cfg Config

	cfg.ApplyDefaults()

	return &cfg
}

// Load loads the configuration for the worker service through the central configurator.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return finalize(&cfg)
}

// LoadFile reads a TOML file from disk.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config

	err = toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return finalize(&cfg)
}

// Resolve loads path when given, otherwise DefaultFileName if it exists in the
// working directory, otherwise the defaults.
func Resolve(path string) (*Config, error) {
	if path != "" {
		return LoadFile(path)
	}

	_, statErr := os.Stat(DefaultFileName)
	if statErr == nil {
		return LoadFile(DefaultFileName)
	}

	return Default(), nil
}

func finalize(cfg *Config) (*Config, error) {
	cfg.ApplyDefaults()

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, validateErr
	}

	return cfg, nil
}

// ApplyDefaults fills every zero-valued field with its default.
func (c *Config) ApplyDefaults() {
	setString(&c.Paths.BaseLogsDir, defaultLogsDir)
	setString(&c.Paths.VoicesDir, defaultVoicesDir)
	setString(&c.Paths.VoiceSamplesDir, defaultVoiceSamplesDir)
	setString(&c.Paths.OutputDir, defaultOutputDir)

	if c.Segmenter.WindowSeconds == 0 {
		c.Segmenter.WindowSeconds = defaultWindowSeconds
	}

	setDefault(&c.Segmenter.MinSegmentSeconds, defaultMinSeconds)
	setDefault(&c.Segmenter.HeadroomDB, defaultHeadroomDB)

	setString(&c.Segmenter.FilePrefix, defaultFilePrefix)

	if c.Synthesizer.SampleRate == 0 {
		c.Synthesizer.SampleRate = defaultTargetRate
	}

	setString(&c.Synthesizer.DefaultQuality, defaultQuality)
	setString(&c.Synthesizer.OutputName, defaultOutputName)

	setDefault(&c.Synthesizer.MinOutputBytes, defaultMinOutputBytes)

	if c.Synthesizer.TimeoutSeconds == 0 {
		c.Synthesizer.TimeoutSeconds = defaultTimeoutSeconds
	}

	setString(&c.Engine.Kind, EngineKindHTTP)

	if c.Engine.Kind == EngineKindHTTP {
		setString(&c.Engine.URL, defaultEngineURL)
	}

	if c.Engine.HealthTimeoutSeconds == 0 {
		c.Engine.HealthTimeoutSeconds = defaultHealthSeconds
	}

	setString(&c.NATS.URL, defaultNATSURL)
	setString(&c.NATS.SynthesisSubject, defaultSubject)
	setString(&c.NATS.AudioObjectStoreBucket, defaultAudioBucket)
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Segmenter.WindowSeconds <= 0 {
		return fmt.Errorf("%w: got %.2f", ErrWindowNotPositive, c.Segmenter.WindowSeconds)
	}

	minSeconds := valueOr(c.Segmenter.MinSegmentSeconds, defaultMinSeconds)
	if minSeconds < 0 || minSeconds > c.Segmenter.WindowSeconds {
		return fmt.Errorf("%w: got %.2f", ErrMinExceedsWindow, minSeconds)
	}

	if c.Segmenter.Headroom() < 0 {
		return fmt.Errorf("%w: got %.2f", ErrHeadroomNegative, c.Segmenter.Headroom())
	}

	if c.Synthesizer.SampleRate <= 0 {
		return fmt.Errorf("%w: got %d", ErrSampleRateInvalid, c.Synthesizer.SampleRate)
	}

	if c.Synthesizer.MinOutputSize() < 0 {
		return fmt.Errorf("%w: got %d", ErrMinOutputBytesRange, c.Synthesizer.MinOutputSize())
	}

	switch c.Engine.Kind {
	case EngineKindHTTP:
		if c.Engine.URL == "" {
			return ErrEngineURLEmpty
		}
	case EngineKindCommand:
		if c.Engine.Command == "" {
			return ErrEngineCommandEmpty
		}
	default:
		return fmt.Errorf("%w: '%s'", ErrUnknownEngineKind, c.Engine.Kind)
	}

	return nil
}

// Window returns the segment window length.
func (c *SegmenterConfig) Window() time.Duration {
	return secondsToDuration(c.WindowSeconds)
}

// MinLength returns the minimum kept segment length. An explicit 0 keeps
// every trailing piece.
func (c *SegmenterConfig) MinLength() time.Duration {
	return secondsToDuration(valueOr(c.MinSegmentSeconds, defaultMinSeconds))
}

// Headroom returns the peak normalization headroom in dB.
func (c *SegmenterConfig) Headroom() float64 {
	return valueOr(c.HeadroomDB, defaultHeadroomDB)
}

// MinOutputSize returns the smallest accepted output file in bytes. An
// explicit 0 disables the check.
func (c *SynthesizerConfig) MinOutputSize() int64 {
	return valueOr(c.MinOutputBytes, defaultMinOutputBytes)
}

// Timeout returns the per-job synthesis timeout.
func (c *SynthesizerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// HealthTimeout returns the timeout for engine health checks.
func (c *EngineConfig) HealthTimeout() time.Duration {
	return time.Duration(c.HealthTimeoutSeconds) * time.Second
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// setDefault fills a field left out of the file. Explicit zeros are kept.
func setDefault[T any](field **T, value T) {
	if *field == nil {
		*field = &value
	}
}

func valueOr[T any](field *T, fallback T) T {
	if field == nil {
		return fallback
	}

	return *field
}

func setString(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
