package tts

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/config"
)

//go:embed voices.json
var defaultVoices []byte

// Catalog is the set of named voices plus preset aliases.
type Catalog struct {
	Voices  map[string]Voice  `json:"voices" yaml:"voices"`
	Presets map[string]string `json:"presets" yaml:"presets"`
}

// Voice describes one ElevenLabs voice persona.
type Voice struct {
	VoiceID     string   `json:"voice_id" yaml:"voice_id"`
	Language    string   `json:"language" yaml:"language"`
	Gender      string   `json:"gender" yaml:"gender"`
	Persona     string   `json:"persona" yaml:"persona"`
	Description string   `json:"description" yaml:"description"`
	Settings    Settings `json:"settings" yaml:"settings"`
}

// Settings are per-voice synthesis parameters. Nil fields take the defaults.
type Settings struct {
	Stability       *float64 `json:"stability" yaml:"stability"`
	SimilarityBoost *float64 `json:"similarity_boost" yaml:"similarity_boost"`
	Style           *float64 `json:"style" yaml:"style"`
}

// voicesPath returns the catalog file to use, or "" for the embedded set.
func voicesPath(cfg *config.Config) string {
	if cfg.TTS.VoicesFile != "" {
		return cfg.TTS.VoicesFile
	}
	for _, name := range []string{"voices.json", "voices.yaml"} {
		p := filepath.Join(cfg.ToolDir("tts"), name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// LoadCatalog reads the configured voices file, falling back to the
// embedded defaults. Files ending in .yaml or .yml are read as YAML.
func LoadCatalog(cfg *config.Config) (*Catalog, error) {
	data := defaultVoices
	path := voicesPath(cfg)
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, &cli.ConfigError{Msg: fmt.Sprintf("failed to read voices file: %v", err), Hint: "check TTS_VOICES_FILE"}
		}
	}

	unmarshal := json.Unmarshal
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".yaml" || ext == ".yml" {
		unmarshal = yaml.Unmarshal
	}
	var c Catalog
	if err := unmarshal(data, &c); err != nil {
		return nil, &cli.ConfigError{Msg: fmt.Sprintf("invalid voices file %s: %v", path, err)}
	}
	if len(c.Voices) == 0 {
		return nil, &cli.ConfigError{Msg: "voices file defines no voices", Hint: path}
	}
	return &c, nil
}

// Names returns the voice names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Voices))
	for name := range c.Voices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve looks name up as a voice, then as a preset alias.
func (c *Catalog) Resolve(name string) (string, Voice, error) {
	if v, ok := c.Voices[name]; ok {
		return name, v, nil
	}
	if target, ok := c.Presets[name]; ok {
		if v, ok := c.Voices[target]; ok {
			return target, v, nil
		}
	}
	return "", Voice{}, cli.Usagef("voice %q not found. Available: %s", name, strings.Join(c.Names(), ", "))
}
