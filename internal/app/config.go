// Package app wires the emulation core to the configured front-ends and
// owns application-level configuration.
package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds all application configuration.
type Config struct {
	Video     VideoConfig     `json:"video"`
	Audio     AudioConfig     `json:"audio"`
	Emulation EmulationConfig `json:"emulation"`
	Paths     PathsConfig     `json:"paths"`
	Debug     DebugConfig     `json:"debug"`
}

// VideoConfig contains video rendering configuration.
type VideoConfig struct {
	Backend    string  `json:"backend"` // "ebitengine", "gl", "headless", "terminal"
	Scale      int     `json:"scale"`   // NES resolution multiplier
	VSync      bool    `json:"vsync"`
	Brightness float32 `json:"brightness"`
	Contrast   float32 `json:"contrast"`
}

// AudioConfig contains audio configuration.
type AudioConfig struct {
	Enabled    bool    `json:"enabled"`
	SampleRate int     `json:"sample_rate"`
	Volume     float32 `json:"volume"`
}

// EmulationConfig contains core emulation configuration.
type EmulationConfig struct {
	// Region overrides the TV system: "auto", "ntsc", "pal", "dendy".
	Region string `json:"region"`
}

// PathsConfig contains filesystem locations.
type PathsConfig struct {
	SRAMDir string `json:"sram_dir"`
}

// DebugConfig contains debugging switches.
type DebugConfig struct {
	Trace bool `json:"trace"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Video: VideoConfig{
			Backend:    "ebitengine",
			Scale:      3,
			VSync:      true,
			Brightness: 1.0,
			Contrast:   1.0,
		},
		Audio: AudioConfig{
			Enabled:    true,
			SampleRate: 44100,
			Volume:     0.5,
		},
		Emulation: EmulationConfig{Region: "auto"},
		Paths:     PathsConfig{SRAMDir: "."},
	}
}

// LoadConfig reads a config file, filling unset fields with defaults. A
// missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save writes the configuration to disk.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects configurations the emulator cannot honour.
func (c *Config) Validate() error {
	switch c.Video.Backend {
	case "", "ebitengine", "gl", "headless", "terminal":
	default:
		return fmt.Errorf("unknown video backend %q", c.Video.Backend)
	}
	switch c.Emulation.Region {
	case "", "auto", "ntsc", "pal", "dendy":
	default:
		return fmt.Errorf("unknown region %q", c.Emulation.Region)
	}
	if c.Video.Scale < 0 || c.Video.Scale > 8 {
		return fmt.Errorf("video scale %d out of range", c.Video.Scale)
	}
	if c.Audio.SampleRate != 0 && (c.Audio.SampleRate < 8000 || c.Audio.SampleRate > 192000) {
		return fmt.Errorf("sample rate %d out of range", c.Audio.SampleRate)
	}
	return nil
}
