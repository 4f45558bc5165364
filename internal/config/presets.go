package config

import "hybridcore/internal/core"

// ModelPreset names the provider/model/sampling triple behind a tier.
type ModelPreset struct {
	Provider        string
	Name            string
	Temperature     float32
	MaxOutputTokens int32
}

// ModelPresets maps each core.ModelTier to a concrete preset. "creative"
// from the teacher's preset table is renamed "powerful" to match
// core.ModelTierPowerful's vocabulary (spec §3.1's modelTier enum).
var ModelPresets = map[string]ModelPreset{
	string(core.ModelTierFast): {
		Provider:        "gemini",
		Name:            "gemini-3-flash-preview",
		Temperature:     1.0,
		MaxOutputTokens: 8192,
	},
	string(core.ModelTierBalanced): {
		Provider:        "glm",
		Name:            "glm-4.7",
		Temperature:     0.7,
		MaxOutputTokens: 32768,
	},
	string(core.ModelTierPowerful): {
		Provider:        "gemini",
		Name:            "gemini-3-pro-preview",
		Temperature:     1.0,
		MaxOutputTokens: 65536,
	},
}

// ApplyPreset applies a tier preset to the ModelConfig; false if unknown.
func (m *ModelConfig) ApplyPreset(tier string) bool {
	p, ok := ModelPresets[tier]
	if !ok {
		return false
	}
	m.Provider = p.Provider
	m.Name = p.Name
	m.Temperature = p.Temperature
	m.MaxOutputTokens = p.MaxOutputTokens
	return true
}

// IsValidPreset reports whether tier names a known preset.
func IsValidPreset(tier string) bool {
	_, ok := ModelPresets[tier]
	return ok
}
