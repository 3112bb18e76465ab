package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Audio         AudioConfig         `yaml:"audio"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Reasoning     ReasoningConfig     `yaml:"reasoning"`
	Synthesis     SynthesisConfig     `yaml:"synthesis"`
	HomeAuto      HomeAutoConfig      `yaml:"homeauto"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig contains WebSocket and monitoring server configuration
type ServerConfig struct {
	BindAddress     string `yaml:"bind_address"`
	Port            int    `yaml:"port"`
	MonitoringPort  int    `yaml:"monitoring_port"`
	QueueCapacity   int    `yaml:"queue_capacity"`
	ReadLimit       int64  `yaml:"read_limit"`        // bytes per WebSocket message
	ShutdownTimeout int    `yaml:"shutdown_timeout"`  // seconds
}

// AudioConfig contains audio capture and session parameters
type AudioConfig struct {
	SampleRate           int     `yaml:"sample_rate"`
	Channels             int     `yaml:"channels"`
	BitDepth             int     `yaml:"bit_depth"`
	MinUtteranceDuration float64 `yaml:"min_utterance_duration"` // seconds
	SessionIdleTimeout   int     `yaml:"session_idle_timeout"`   // seconds
	SweepInterval        int     `yaml:"sweep_interval"`         // seconds
}

// TranscriptionConfig contains speech-to-text API configuration
type TranscriptionConfig struct {
	Endpoint      string  `yaml:"endpoint"`
	APIKey        string  `yaml:"api_key"`
	Timeout       int     `yaml:"timeout"` // seconds
	MaxConcurrent int     `yaml:"max_concurrent"`
	Language      string  `yaml:"language"`
	MinConfidence float64 `yaml:"min_confidence"` // 0 disables the check
}

// ReasoningConfig contains language-model backend configuration
type ReasoningConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Timeout  int    `yaml:"timeout"` // seconds
	Model    string `yaml:"model"`
}

// SynthesisConfig contains text-to-speech API configuration
type SynthesisConfig struct {
	Endpoint   string `yaml:"endpoint"`
	APIKey     string `yaml:"api_key"`
	Timeout    int    `yaml:"timeout"` // seconds
	Voice      string `yaml:"voice"`
	SampleRate int    `yaml:"sample_rate"`
}

// HomeAutoConfig contains home automation bridge configuration
type HomeAutoConfig struct {
	Endpoint string `yaml:"endpoint"`
	Token    string `yaml:"token"`
	Timeout  int    `yaml:"timeout"` // seconds
	Enabled  bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Default returns a configuration suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddress:     "0.0.0.0",
			Port:            8765,
			MonitoringPort:  9090,
			QueueCapacity:   64,
			ReadLimit:       1 << 20,
			ShutdownTimeout: 10,
		},
		Audio: AudioConfig{
			SampleRate:           16000,
			Channels:             1,
			BitDepth:             16,
			MinUtteranceDuration: 0.3,
			SessionIdleTimeout:   30,
			SweepInterval:        5,
		},
		Transcription: TranscriptionConfig{
			Endpoint:      "http://localhost:9000/transcribe",
			Timeout:       30,
			MaxConcurrent: 4,
			Language:      "fr",
			MinConfidence: 0.4,
		},
		Reasoning: ReasoningConfig{
			Endpoint: "http://localhost:9001/reason",
			Timeout:  60,
			Model:    "default",
		},
		Synthesis: SynthesisConfig{
			Endpoint:   "http://localhost:9002/synthesize",
			Timeout:    30,
			Voice:      "default",
			SampleRate: 16000,
		},
		HomeAuto: HomeAutoConfig{
			Endpoint: "http://localhost:8123/api",
			Timeout:  10,
			Enabled:  false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Reasoning.Validate(); err != nil {
		return fmt.Errorf("reasoning config: %w", err)
	}

	if err := c.Synthesis.Validate(); err != nil {
		return fmt.Errorf("synthesis config: %w", err)
	}

	if err := c.HomeAuto.Validate(); err != nil {
		return fmt.Errorf("homeauto config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.MonitoringPort < 0 || s.MonitoringPort > 65535 {
		return fmt.Errorf("monitoring_port must be between 0 and 65535, got %d", s.MonitoringPort)
	}

	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if s.QueueCapacity < 1 {
		return fmt.Errorf("queue_capacity must be at least 1, got %d", s.QueueCapacity)
	}

	if s.ReadLimit < 4096 {
		return fmt.Errorf("read_limit must be at least 4096 bytes, got %d", s.ReadLimit)
	}

	if s.ShutdownTimeout < 1 {
		return fmt.Errorf("shutdown_timeout must be at least 1 second, got %d", s.ShutdownTimeout)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	switch a.SampleRate {
	case 8000, 16000, 22050, 44100, 48000:
	default:
		return fmt.Errorf("sample_rate must be one of [8000, 16000, 22050, 44100, 48000], got %d", a.SampleRate)
	}

	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", a.Channels)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", a.BitDepth)
	}

	if a.MinUtteranceDuration <= 0 {
		return fmt.Errorf("min_utterance_duration must be positive, got %f", a.MinUtteranceDuration)
	}

	if a.SessionIdleTimeout < 1 {
		return fmt.Errorf("session_idle_timeout must be at least 1 second, got %d", a.SessionIdleTimeout)
	}

	if a.SweepInterval < 1 {
		return fmt.Errorf("sweep_interval must be at least 1 second, got %d", a.SweepInterval)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	if t.MinConfidence < 0 || t.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be between 0 and 1, got %g", t.MinConfidence)
	}

	return nil
}

// Validate validates reasoning configuration
func (r *ReasoningConfig) Validate() error {
	if r.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if r.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", r.Timeout)
	}

	return nil
}

// Validate validates synthesis configuration
func (s *SynthesisConfig) Validate() error {
	if s.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if s.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", s.Timeout)
	}

	if s.SampleRate < 8000 {
		return fmt.Errorf("sample_rate must be at least 8000 Hz, got %d", s.SampleRate)
	}

	return nil
}

// Validate validates home automation configuration
func (h *HomeAutoConfig) Validate() error {
	if h.Enabled {
		if h.Endpoint == "" {
			return fmt.Errorf("endpoint cannot be empty when homeauto is enabled")
		}

		if h.Token == "" {
			return fmt.Errorf("token cannot be empty when homeauto is enabled")
		}

		if h.Timeout < 1 {
			return fmt.Errorf("timeout must be at least 1 second, got %d", h.Timeout)
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetMinUtteranceDuration returns the minimum utterance duration as a time.Duration
func (a *AudioConfig) GetMinUtteranceDuration() time.Duration {
	return time.Duration(a.MinUtteranceDuration * float64(time.Second))
}

// GetSessionIdleTimeout returns the session idle timeout as a time.Duration
func (a *AudioConfig) GetSessionIdleTimeout() time.Duration {
	return time.Duration(a.SessionIdleTimeout) * time.Second
}

// GetSweepInterval returns the sweep interval as a time.Duration
func (a *AudioConfig) GetSweepInterval() time.Duration {
	return time.Duration(a.SweepInterval) * time.Second
}

// GetShutdownTimeout returns the shutdown timeout as a time.Duration
func (s *ServerConfig) GetShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeout) * time.Second
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetTimeoutDuration returns the reasoning timeout as a time.Duration
func (r *ReasoningConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(r.Timeout) * time.Second
}

// GetTimeoutDuration returns the synthesis timeout as a time.Duration
func (s *SynthesisConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// GetTimeoutDuration returns the home automation timeout as a time.Duration
func (h *HomeAutoConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(h.Timeout) * time.Second
}
