// Package tts is the text-to-speech tool: ElevenLabs synthesis with named
// voice personas.
package tts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shineum/skillkit/internal/args"
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/format"
	"github.com/shineum/skillkit/internal/restclient"
)

const (
	service = "ElevenLabs"

	defaultVoice  = "rachel"
	defaultOutput = "output.mp3"

	defaultStability  = 0.75
	defaultSimilarity = 0.75
	defaultStyle      = 0.5
)

// sampleTexts holds the test sentence per two-letter language code.
var sampleTexts = map[string]string{
	"en": "Hello! This is a test of the ElevenLabs voice synthesis.",
	"de": "Hallo! Dies ist ein Test der ElevenLabs Sprachsynthese.",
	"es": "¡Hola! Esta es una prueba de la síntesis de voz de ElevenLabs.",
	"fr": "Bonjour! Ceci est un test de la synthèse vocale ElevenLabs.",
	"it": "Ciao! Questo è un test della sintesi vocale ElevenLabs.",
}

// Program returns the tts command set.
func Program() *cli.Program {
	return &cli.Program{
		Name:  "tts",
		Short: "text to speech with ElevenLabs voice personas",
		Commands: []*cli.Command{
			{
				Name:  "say",
				Usage: "--text T [--voice rachel] [--output output.mp3]",
				Short: "synthesize text to an mp3 file",
				Run:   say,
			},
			{
				Name:  "voices",
				Usage: "[--format table|json|csv]",
				Short: "list voices and presets",
				Run:   voices,
			},
			{
				Name:  "test",
				Usage: "[--dir samples]",
				Short: "synthesize a sample for every voice",
				Run:   testVoices,
			},
		},
	}
}

type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

func (s Settings) resolved() voiceSettings {
	return voiceSettings{
		Stability:       valueOr(s.Stability, defaultStability),
		SimilarityBoost: valueOr(s.SimilarityBoost, defaultSimilarity),
		Style:           valueOr(s.Style, defaultStyle),
		UseSpeakerBoost: true,
	}
}

func valueOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func requireKey(env *cli.Env) (string, error) {
	key, ok := apiKey(env.Config)
	if !ok {
		return "", &cli.ConfigError{
			Msg: "no ElevenLabs API key found",
			Hint: "set ELEVEN_API_KEY, configure tts.elevenlabs.apiKey in ~/.clawdbot/clawdbot.json, or add ELEVEN_API_KEY to " +
				filepath.Join(env.Config.ToolDir("tts"), ".env"),
		}
	}
	return key, nil
}

// synthesize renders text with voice and writes the audio to path,
// returning the number of bytes written.
func synthesize(ctx context.Context, env *cli.Env, key, text string, voice Voice, path string) (int, error) {
	resp, err := restclient.New(env, env.Config.TTS.URL).R().
		SetContext(ctx).
		SetHeader("xi-api-key", key).
		SetHeader("Accept", "audio/mpeg").
		SetPathParam("voice", voice.VoiceID).
		SetBody(&synthesisRequest{
			Text:          text,
			ModelID:       env.Config.TTS.Model,
			VoiceSettings: voice.Settings.resolved(),
		}).
		Post("/v1/text-to-speech/{voice}")
	if err := restclient.Check(service, resp, err); err != nil {
		return 0, err
	}

	audio := resp.Bytes()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return 0, fmt.Errorf("failed to write audio: %w", err)
	}
	return len(audio), nil
}

func say(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.Require("text"); err != nil {
		return err
	}
	catalog, err := LoadCatalog(env.Config)
	if err != nil {
		return err
	}
	_, voice, err := catalog.Resolve(a.StringOr("voice", defaultVoice))
	if err != nil {
		return err
	}
	key, err := requireKey(env)
	if err != nil {
		return err
	}

	text, _ := a.String("text")
	out := a.StringOr("output", defaultOutput)
	n, err := synthesize(ctx, env, key, text, voice, out)
	if err != nil {
		return err
	}
	env.Printf("Saved: %s (%.1f KB)\n", out, float64(n)/1024)
	return nil
}

func voices(_ context.Context, env *cli.Env, a *args.Args) error {
	mode, err := format.ParseMode(a.StringOr("format", ""))
	if err != nil {
		return err
	}
	catalog, err := LoadCatalog(env.Config)
	if err != nil {
		return err
	}

	res := &format.Result{Columns: []string{"name", "language", "gender", "persona", "description"}}
	for _, name := range catalog.Names() {
		v := catalog.Voices[name]
		res.Rows = append(res.Rows, []any{name, orNA(v.Language), orNA(v.Gender), orNA(v.Persona), v.Description})
	}
	if err := format.Write(env.Stdout, mode, res); err != nil {
		return err
	}

	if mode == format.Table && len(catalog.Presets) > 0 {
		aliases := make([]string, 0, len(catalog.Presets))
		for alias := range catalog.Presets {
			aliases = append(aliases, alias)
		}
		sort.Strings(aliases)
		parts := make([]string, 0, len(aliases))
		for _, alias := range aliases {
			parts = append(parts, alias+"="+catalog.Presets[alias])
		}
		env.Printf("\nPresets: %s\n", strings.Join(parts, ", "))
	}
	return nil
}

// testVoices synthesizes a sample in each voice's language. One voice
// failing does not stop the rest.
func testVoices(ctx context.Context, env *cli.Env, a *args.Args) error {
	catalog, err := LoadCatalog(env.Config)
	if err != nil {
		return err
	}
	key, err := requireKey(env)
	if err != nil {
		return err
	}
	dir := a.StringOr("dir", filepath.Join(env.Config.ToolDir("tts"), "samples"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create sample directory: %w", err)
	}

	success, failed := 0, 0
	for _, name := range catalog.Names() {
		v := catalog.Voices[name]
		path := filepath.Join(dir, name+".mp3")

		env.Printf("  Testing %s... ", name)
		n, err := synthesize(ctx, env, key, sampleText(v.Language), v, path)
		if err != nil {
			env.Printf("failed: %v\n", err)
			failed++
			continue
		}
		env.Printf("Saved: %s (%.1f KB)\n", path, float64(n)/1024)
		success++
	}

	env.Printf("\nSuccess: %d, Failed: %d\n", success, failed)
	env.Printf("Samples saved to: %s\n", dir)
	if failed > 0 {
		return fmt.Errorf("%d of %d voices failed", failed, success+failed)
	}
	return nil
}

func sampleText(language string) string {
	lang := strings.ToLower(language)
	if len(lang) > 2 {
		lang = lang[:2]
	}
	if text, ok := sampleTexts[lang]; ok {
		return text
	}
	return sampleTexts["en"]
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}
