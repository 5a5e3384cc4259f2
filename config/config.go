package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend selects how notes are sounded
type Backend string

const (
	BackendMIDI    Backend = "midi"
	BackendSampler Backend = "sampler"
	BackendNone    Backend = "none"
)

// Valid reports whether b names a known backend
func (b Backend) Valid() bool {
	switch b {
	case BackendMIDI, BackendSampler, BackendNone:
		return true
	}
	return false
}

// MIDIConfig defines the synth MIDI output
type MIDIConfig struct {
	PortName string `json:"portName,omitempty" yaml:"portName,omitempty"`
	DrumKit  string `json:"drumKit,omitempty" yaml:"drumKit,omitempty"`
}

// UIConfig stores UI preferences
type UIConfig struct {
	LastTempo int    `json:"lastTempo,omitempty" yaml:"lastTempo,omitempty"`
	Palette   string `json:"palette,omitempty" yaml:"palette,omitempty"` // GIMP .gpl file
}

// Config is the main configuration structure
type Config struct {
	ServerURL  string     `json:"serverUrl,omitempty" yaml:"serverUrl,omitempty"`
	User       string     `json:"user,omitempty" yaml:"user,omitempty"`
	Backend    Backend    `json:"backend,omitempty" yaml:"backend,omitempty"`
	MIDI       MIDIConfig `json:"midi,omitempty" yaml:"midi,omitempty"`
	SamplesDir string     `json:"samplesDir,omitempty" yaml:"samplesDir,omitempty"`
	// Lookahead is the scheduling window, e.g. "100ms"
	Lookahead string   `json:"lookahead,omitempty" yaml:"lookahead,omitempty"`
	Debug     bool     `json:"debug,omitempty" yaml:"debug,omitempty"`
	UI        UIConfig `json:"ui,omitempty" yaml:"ui,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		ServerURL: "http://localhost:3000",
		Backend:   BackendMIDI,
		MIDI:      MIDIConfig{DrumKit: "gm"},
		Lookahead: "100ms",
		UI: UIConfig{
			LastTempo: 120,
		},
	}
}

// LookaheadDuration parses Lookahead, falling back to 100ms
func (c *Config) LookaheadDuration() time.Duration {
	d, err := time.ParseDuration(c.Lookahead)
	if err != nil || d <= 0 {
		return 100 * time.Millisecond
	}
	return d
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "bandaid"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found. A
// config.yaml next to config.json is read when there is no JSON file.
func Load() (*Config, error) {
	dir, err := ConfigDir()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFrom(dir)
}

// LoadFrom reads config.json, or else config.yaml, from dir
func LoadFrom(dir string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
		return cfg.fill(), nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	data, err = os.ReadFile(filepath.Join(dir, "config.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg.fill(), nil
}

// fill replaces invalid or missing values with the defaults
func (c *Config) fill() *Config {
	def := DefaultConfig()
	if !c.Backend.Valid() {
		c.Backend = def.Backend
	}
	if c.MIDI.DrumKit == "" {
		c.MIDI.DrumKit = def.MIDI.DrumKit
	}
	if c.ServerURL == "" {
		c.ServerURL = def.ServerURL
	}
	return c
}

// Save writes the config to disk
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return c.SaveTo(dir)
}

// SaveTo writes config.json into dir
func (c *Config) SaveTo(dir string) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// SamplesPath returns the sample directory, defaulting to
// ~/.config/bandaid/samples
func (c *Config) SamplesPath() string {
	if c.SamplesDir != "" {
		return c.SamplesDir
	}
	dir, err := ConfigDir()
	if err != nil {
		return "samples"
	}
	return filepath.Join(dir, "samples")
}
