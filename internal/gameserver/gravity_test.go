package gameserver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePresets(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gravity.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadGravityPresetsEmptyPathYieldsStandard(t *testing.T) {
	presets, err := LoadGravityPresets("")
	require.NoError(t, err)
	assert.Equal(t, map[string]GravityPreset{"standard": {DropSpeed: 1.0}}, presets)
}

func TestLoadGravityPresetsMergesOverDefaults(t *testing.T) {
	path := writePresets(t, "fast:\n  drop_speed: 0.5\n")

	presets, err := LoadGravityPresets(path)
	require.NoError(t, err)

	// File entries extend the built-in standard preset.
	assert.Equal(t, 1.0, presets["standard"].DropSpeed)
	assert.Equal(t, 0.5, presets["fast"].DropSpeed)
}

func TestLoadGravityPresetsOverridesStandard(t *testing.T) {
	path := writePresets(t, "standard:\n  drop_speed: 2.0\n")

	presets, err := LoadGravityPresets(path)
	require.NoError(t, err)
	assert.Equal(t, 2.0, presets["standard"].DropSpeed)
}

func TestLoadGravityPresetsRejectsNonPositiveSpeed(t *testing.T) {
	path := writePresets(t, "broken:\n  drop_speed: 0\n")

	_, err := LoadGravityPresets(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drop_speed must be positive")
}

func TestLoadGravityPresetsMissingFile(t *testing.T) {
	_, err := LoadGravityPresets(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestSettingsWireShape(t *testing.T) {
	settings := GravityPreset{DropSpeed: 0.25}.Settings()
	assert.Equal(t, map[string]any{"drop_speed": 0.25}, settings)
}
