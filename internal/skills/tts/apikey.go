package tts

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/shineum/skillkit/internal/config"
)

// clawdbotConfig is the assistant host's settings file, which may carry the
// ElevenLabs key under tts.elevenlabs.apiKey.
func clawdbotConfig() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".clawdbot", "clawdbot.json")
}

// apiKey resolves the ElevenLabs key from the environment, then the clawdbot
// settings file, then the tool's own .env file.
func apiKey(cfg *config.Config) (string, bool) {
	if cfg.TTS.APIKey != "" {
		return cfg.TTS.APIKey, true
	}
	if key := keyFromClawdbot(clawdbotConfig()); key != "" {
		return key, true
	}
	if key := keyFromDotEnv(filepath.Join(cfg.ToolDir("tts"), ".env")); key != "" {
		return key, true
	}
	return "", false
}

func keyFromClawdbot(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var doc struct {
		TTS struct {
			ElevenLabs struct {
				APIKey string `json:"apiKey"`
			} `json:"elevenlabs"`
		} `json:"tts"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return ""
	}
	return doc.TTS.ElevenLabs.APIKey
}

func keyFromDotEnv(path string) string {
	vals, err := godotenv.Read(path)
	if err != nil {
		return ""
	}
	if v := vals["ELEVEN_API_KEY"]; v != "" {
		return v
	}
	return vals["ELEVENLABS_API_KEY"]
}
