// Package settings loads agent and recorder configuration from YAML and
// watches the file for live toggles (mode, delay, arm-next).
package settings

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/probelight/qa-recorder/internal/models"
)

// Recording holds the recorder toggles a host UI would expose.
type Recording struct {
	Mode       string `yaml:"mode"`        // auto|manual
	DelayMs    int    `yaml:"delay_ms"`    // emission delay
	DebounceMs int    `yaml:"debounce_ms"` // input coalescing window
	ArmNext    bool   `yaml:"arm_next"`    // manual mode: record the next event
}

// Settings holds all configurable agent parameters.
type Settings struct {
	Address      string    `yaml:"address"`
	DatabasePath string    `yaml:"database_path"`
	ScriptSrc    string    `yaml:"script_src"` // recorder asset injected into frames
	Recording    Recording `yaml:"recording"`
}

// Default returns the built-in configuration.
func Default() *Settings {
	return &Settings{
		Address:      "127.0.0.1:8123",
		DatabasePath: "",
		ScriptSrc:    "/assets/qa-recorder-frame.js",
		Recording: Recording{
			Mode:       models.ModeAuto,
			DelayMs:    0,
			DebounceMs: 350,
		},
	}
}

// Load reads settings from path, layered over defaults. A missing file is
// not an error; the defaults stand.
func Load(path string) (*Settings, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the recorder cannot honor.
func (s *Settings) Validate() error {
	if s.Recording.Mode != models.ModeAuto && s.Recording.Mode != models.ModeManual {
		return fmt.Errorf("invalid recording mode %q", s.Recording.Mode)
	}
	if s.Recording.DelayMs < 0 {
		return fmt.Errorf("delay_ms must not be negative")
	}
	if s.Recording.DebounceMs < 0 {
		return fmt.Errorf("debounce_ms must not be negative")
	}
	if s.Address == "" {
		return fmt.Errorf("address must not be empty")
	}
	return nil
}

// Delay returns the emission delay as a duration.
func (r Recording) Delay() time.Duration {
	return time.Duration(r.DelayMs) * time.Millisecond
}

// Debounce returns the input coalescing window as a duration.
func (r Recording) Debounce() time.Duration {
	return time.Duration(r.DebounceMs) * time.Millisecond
}
