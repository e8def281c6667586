// Package preset persists modulation presets as JSON files. The engine
// only guarantees the value-object contract; where the files live is the
// host's concern.
package preset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cwbudde/algo-synesthesia/modulation"
)

// File is the JSON schema for mapping presets.
type File struct {
	Name        string `json:"name"`
	Description string `json:"description"`

	AudioToVisualEnabled *bool `json:"audio_to_visual_enabled"`
	VisualToAudioEnabled *bool `json:"visual_to_audio_enabled"`

	AudioToVisual []MappingEntry `json:"audio_to_visual"`
	VisualToAudio []MappingEntry `json:"visual_to_audio"`
}

// MappingEntry is one source→target mapping in a preset file.
type MappingEntry struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Curve  string  `json:"curve"`
}

// LoadJSON loads a preset file and validates it against the known
// parameter set.
func LoadJSON(path string) (modulation.Preset, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return modulation.Preset{}, err
	}

	var f File
	if err := json.Unmarshal(b, &f); err != nil {
		return modulation.Preset{}, fmt.Errorf("preset %s: %w", path, err)
	}

	p, err := FromFile(&f)
	if err != nil {
		return modulation.Preset{}, fmt.Errorf("preset %s: %w", path, err)
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return p, nil
}

// FromFile converts a parsed preset file into a validated preset value.
func FromFile(f *File) (modulation.Preset, error) {
	if f == nil {
		return modulation.Preset{}, fmt.Errorf("nil preset file")
	}

	p := modulation.Preset{
		Name:            f.Name,
		Description:     f.Description,
		AudioToVisualOn: true,
		VisualToAudioOn: true,
	}
	if f.AudioToVisualEnabled != nil {
		p.AudioToVisualOn = *f.AudioToVisualEnabled
	}
	if f.VisualToAudioEnabled != nil {
		p.VisualToAudioOn = *f.VisualToAudioEnabled
	}

	var err error
	if p.AudioToVisual, err = convertEntries(f.AudioToVisual, "audio_to_visual"); err != nil {
		return modulation.Preset{}, err
	}
	if p.VisualToAudio, err = convertEntries(f.VisualToAudio, "visual_to_audio"); err != nil {
		return modulation.Preset{}, err
	}

	if err := p.Validate(); err != nil {
		return modulation.Preset{}, err
	}
	return p, nil
}

func convertEntries(entries []MappingEntry, table string) ([]modulation.Mapping, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	out := make([]modulation.Mapping, 0, len(entries))
	for i, e := range entries {
		curve, err := modulation.ParseCurveKind(e.Curve)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", table, i, err)
		}
		out = append(out, modulation.Mapping{
			Source: modulation.ParamKey(e.Source),
			Target: modulation.ParamKey(e.Target),
			Min:    e.Min,
			Max:    e.Max,
			Curve:  curve,
		})
	}
	return out, nil
}

// ToFile converts a preset value into its JSON schema form.
func ToFile(p modulation.Preset) *File {
	return &File{
		Name:                 p.Name,
		Description:          p.Description,
		AudioToVisualEnabled: boolPtr(p.AudioToVisualOn),
		VisualToAudioEnabled: boolPtr(p.VisualToAudioOn),
		AudioToVisual:        convertMappings(p.AudioToVisual),
		VisualToAudio:        convertMappings(p.VisualToAudio),
	}
}

func convertMappings(mappings []modulation.Mapping) []MappingEntry {
	if len(mappings) == 0 {
		return nil
	}
	out := make([]MappingEntry, 0, len(mappings))
	for _, m := range mappings {
		out = append(out, MappingEntry{
			Source: m.Source.String(),
			Target: m.Target.String(),
			Min:    m.Min,
			Max:    m.Max,
			Curve:  m.Curve.String(),
		})
	}
	return out
}

func boolPtr(b bool) *bool { return &b }

// SaveJSON writes a preset to a JSON file.
func SaveJSON(path string, p modulation.Preset) error {
	if err := p.Validate(); err != nil {
		return err
	}
	b, err := json.MarshalIndent(ToFile(p), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}
