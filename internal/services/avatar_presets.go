package services

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/edaptivai-netizen/edaptiv-learning/internal/domain/learning"
)

//go:embed avatar_presets.yaml
var defaultAvatarPresetsYAML []byte

// AvatarPreset is the face and voice the render provider speaks with.
type AvatarPreset struct {
	SourceURL     string `yaml:"source_url"`
	VoiceProvider string `yaml:"voice_provider"`
	VoiceID       string `yaml:"voice_id"`
}

type yamlAvatarPresets struct {
	Default  AvatarPreset            `yaml:"default"`
	Subjects map[string]AvatarPreset `yaml:"subjects"`
}

type AvatarPresets struct {
	def      AvatarPreset
	subjects map[learning.Subject]AvatarPreset
}

// LoadAvatarPresets reads presets from path, or the embedded defaults when
// path is empty. Non-empty fields of override replace the default preset.
func LoadAvatarPresets(path string, override AvatarPreset) (*AvatarPresets, error) {
	raw := defaultAvatarPresetsYAML
	if p := strings.TrimSpace(path); p != "" {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read avatar presets: %w", err)
		}
		raw = b
	}
	var spec yamlAvatarPresets
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("parse avatar presets: %w", err)
	}

	def := mergePreset(spec.Default, override)
	if def.VoiceProvider == "" {
		def.VoiceProvider = "microsoft"
	}
	if def.SourceURL == "" || def.VoiceID == "" {
		return nil, fmt.Errorf("avatar presets: default needs source_url and voice_id")
	}

	out := &AvatarPresets{def: def, subjects: map[learning.Subject]AvatarPreset{}}
	for name, p := range spec.Subjects {
		subject := learning.NormalizeSubject(name)
		if subject == learning.SubjectOther && !strings.EqualFold(strings.TrimSpace(name), string(learning.SubjectOther)) {
			return nil, fmt.Errorf("avatar presets: unknown subject %q", name)
		}
		out.subjects[subject] = mergePreset(def, p)
	}
	return out, nil
}

func mergePreset(base, over AvatarPreset) AvatarPreset {
	if v := strings.TrimSpace(over.SourceURL); v != "" {
		base.SourceURL = v
	}
	if v := strings.TrimSpace(over.VoiceProvider); v != "" {
		base.VoiceProvider = v
	}
	if v := strings.TrimSpace(over.VoiceID); v != "" {
		base.VoiceID = v
	}
	return base
}

func (p *AvatarPresets) For(subject learning.Subject) AvatarPreset {
	if p == nil {
		return AvatarPreset{}
	}
	if preset, ok := p.subjects[subject]; ok {
		return preset
	}
	return p.def
}
