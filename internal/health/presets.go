package health

import (
	"embed"
	"fmt"
	"sort"

	"github.com/ruleforge/ruleforge/internal/models"
)

//go:embed presets/*.yaml
var presetFS embed.FS

// presetFiles maps preset names to embedded file paths
var presetFiles = map[string]string{
	"baseline": "presets/baseline.yaml",
	"strict":   "presets/strict.yaml",
}

// Preset returns a built-in check set by name. Each call parses a fresh copy.
func Preset(name string) (*CheckConfig, error) {
	path, ok := presetFiles[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown health check preset %q (available: %v)", models.ErrConfiguration, name, PresetNames())
	}

	data, err := presetFS.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read preset %q: %w", name, err)
	}
	return ParseChecks(data)
}

// PresetNames returns the names of all built-in presets, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(presetFiles))
	for name := range presetFiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
