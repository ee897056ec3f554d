// Package config loads the JSON-tagged settings a host program uses to
// configure the emulation core: region, save-state directory, and which
// frontend backend to start.
package config

import (
	"encoding/json"
	"os"
)

// Region selects NTSC or PAL timing.
type Region string

const (
	RegionNTSC Region = "ntsc"
	RegionPAL  Region = "pal"
)

// Emulation holds the settings that affect core timing and persistence,
// carried forward from the teacher's application-level config but pared
// to what an embedding core actually needs.
type Emulation struct {
	Region      Region `json:"region"`
	SaveDir     string `json:"save_dir"`
	AutoSave    bool   `json:"auto_save"`
	SampleRate  int    `json:"sample_rate"`
}

// Frontend names the backend a host should start and any backend-specific
// hints. The core itself never reads this; it exists so a host program
// can keep its startup configuration in the same file as emulation
// settings.
type Frontend struct {
	Backend string `json:"backend"` // e.g. "ebiten", "headless"
	Scale   int    `json:"scale"`
}

// Config is the top-level JSON document.
type Config struct {
	Emulation Emulation `json:"emulation"`
	Frontend  Frontend  `json:"frontend"`
}

// Default returns the configuration a fresh install should start with.
func Default() *Config {
	return &Config{
		Emulation: Emulation{
			Region:     RegionNTSC,
			SaveDir:    "saves",
			AutoSave:   false,
			SampleRate: 44100,
		},
		Frontend: Frontend{
			Backend: "ebiten",
			Scale:   3,
		},
	}
}

// Load reads a JSON config file, falling back to Default for any field
// absent from the file (so a partial config is valid).
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to path as indented JSON.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
