package gameserver

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// GravityPreset tunes the drop physics handed to both players.
type GravityPreset struct {
	// DropSpeed is seconds per one-row descent.
	DropSpeed float64 `yaml:"drop_speed"`
}

// Settings returns the preset in the wire shape used by the connect
// response.
func (g GravityPreset) Settings() map[string]any {
	return map[string]any{"drop_speed": g.DropSpeed}
}

// LoadGravityPresets reads the named presets file. An empty path yields
// just the built-in standard preset.
func LoadGravityPresets(path string) (map[string]GravityPreset, error) {
	presets := map[string]GravityPreset{
		"standard": {DropSpeed: 1.0},
	}
	if path == "" {
		return presets, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading gravity presets %s: %w", path, err)
	}
	if err = yaml.Unmarshal(raw, &presets); err != nil {
		return nil, fmt.Errorf("parsing gravity presets %s: %w", path, err)
	}
	for name, preset := range presets {
		if preset.DropSpeed <= 0 {
			return nil, fmt.Errorf("gravity preset %q: drop_speed must be positive", name)
		}
	}
	return presets, nil
}
