package config

import (
	"os"
	"path/filepath"
	"testing"
)

var allEnvVars = []string{
	"SKILLKIT_HOME", "SKILLKIT_CONFIG", "LOG_LEVEL", "LOG_FORMAT",
	"GMAIL_CREDENTIALS_FILE", "GMAIL_ACCOUNT", "GMAIL_ACCESS_TOKEN", "GMAIL_API_URL",
	"NOTION_API_KEY", "NOTION_TOKEN", "SLACK_BOT_TOKEN", "SLACK_TOKEN", "SLACK_API_URL",
	"MS_CLIENT_ID", "MS_TENANT_ID", "MS_ACCOUNT", "GRAPH_ACCESS_TOKEN", "MS_AUTHORITY_URL", "GRAPH_API_URL",
	"DYNAMICS_URL", "DYNAMICS_CLIENT_ID", "DYNAMICS_TENANT_ID", "DYNAMICS_CLIENT_SECRET", "DYNAMICS_API_VERSION", "DYNAMICS_ACCESS_TOKEN",
	"SALESFORCE_LOGIN_URL", "SALESFORCE_CLIENT_ID", "SALESFORCE_CLIENT_SECRET",
	"SALESFORCE_USERNAME", "SALESFORCE_PASSWORD", "SALESFORCE_SECURITY_TOKEN",
	"SALESFORCE_API_VERSION", "SALESFORCE_ACCESS_TOKEN", "SALESFORCE_INSTANCE_URL",
	"DATABASE_URL", "POSTGRES_URL", "MYSQL_DSN", "MYSQL_URL", "MYSQL_CA_FILE", "MYSQL_CERT_FILE", "MYSQL_KEY_FILE", "SQLITE_PATH",
	"MONGODB_URI", "MONGO_URL", "MONGODB_DB", "REDIS_URL", "REDIS_CA_FILE", "REDIS_CERT_FILE", "REDIS_KEY_FILE",
	"SEARCH_API_KEY", "TAVILY_API_KEY", "SEARCH_API_URL",
	"BROWSER_API_KEY", "BROWSER_USE_API_KEY", "BROWSER_API_URL",
	"ELEVEN_API_KEY", "ELEVENLABS_API_KEY", "ELEVENLABS_API_URL", "TTS_VOICES_FILE", "TTS_MODEL",
	"SES_REGION", "SES_ACCESS_KEY_ID", "SES_SECRET_ACCESS_KEY", "SES_SENDER",
}

// clearEnv blanks every variable Load reads and points the home directory at
// a fresh temp dir so no real user files leak into the test.
func clearEnv(t *testing.T) string {
	t.Helper()
	for _, env := range allEnvVars {
		t.Setenv(env, "")
	}
	home := t.TempDir()
	t.Setenv("SKILLKIT_HOME", home)
	return home
}

func TestLoad_DefaultValues(t *testing.T) {
	home := clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Home != home {
		t.Errorf("Home: got %q, want %q", cfg.Home, home)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level: got %q, want %q", cfg.Logging.Level, "warn")
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format: got %q, want %q", cfg.Logging.Format, "text")
	}
	if cfg.Microsoft.TenantID != "common" {
		t.Errorf("Microsoft.TenantID: got %q, want %q", cfg.Microsoft.TenantID, "common")
	}
	if cfg.Salesforce.LoginURL != "https://login.salesforce.com" {
		t.Errorf("Salesforce.LoginURL: got %q", cfg.Salesforce.LoginURL)
	}
	if cfg.Redis.URL != "redis://localhost:6379/0" {
		t.Errorf("Redis.URL: got %q", cfg.Redis.URL)
	}
	if cfg.TTS.Model != "eleven_multilingual_v2" {
		t.Errorf("TTS.Model: got %q", cfg.TTS.Model)
	}
	if cfg.Notion.Token != "" {
		t.Errorf("Notion.Token: got %q, want empty", cfg.Notion.Token)
	}
	if got := cfg.ToolDir("outlook"); got != filepath.Join(home, "outlook") {
		t.Errorf("ToolDir: got %q", got)
	}
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("NOTION_TOKEN", "secret_notion")
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-1")
	t.Setenv("MS_CLIENT_ID", "cid-456")
	t.Setenv("GRAPH_ACCESS_TOKEN", "graph-token")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/db")
	t.Setenv("REDIS_URL", "redis://cache:6380/1")
	t.Setenv("SES_REGION", "us-east-1")
	t.Setenv("SES_SENDER", "ses@example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level: got %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format: got %q, want %q", cfg.Logging.Format, "json")
	}
	if cfg.Notion.Token != "secret_notion" {
		t.Errorf("Notion.Token: got %q", cfg.Notion.Token)
	}
	if cfg.Slack.Token != "xoxb-1" {
		t.Errorf("Slack.Token: got %q", cfg.Slack.Token)
	}
	if cfg.Microsoft.ClientID != "cid-456" {
		t.Errorf("Microsoft.ClientID: got %q", cfg.Microsoft.ClientID)
	}
	if cfg.Microsoft.AccessToken != "graph-token" {
		t.Errorf("Microsoft.AccessToken: got %q", cfg.Microsoft.AccessToken)
	}
	if cfg.Postgres.URL != "postgres://u:p@localhost/db" {
		t.Errorf("Postgres.URL: got %q", cfg.Postgres.URL)
	}
	if cfg.Redis.URL != "redis://cache:6380/1" {
		t.Errorf("Redis.URL: got %q", cfg.Redis.URL)
	}
	if !cfg.SESConfigured() {
		t.Error("SESConfigured: got false, want true")
	}
}

func TestLoad_FirstListedEnvVarWins(t *testing.T) {
	clearEnv(t)
	t.Setenv("ELEVEN_API_KEY", "first")
	t.Setenv("ELEVENLABS_API_KEY", "second")
	t.Setenv("POSTGRES_URL", "postgres://fallback")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.TTS.APIKey != "first" {
		t.Errorf("TTS.APIKey: got %q, want %q", cfg.TTS.APIKey, "first")
	}
	if cfg.Postgres.URL != "postgres://fallback" {
		t.Errorf("Postgres.URL: got %q, want fallback", cfg.Postgres.URL)
	}
}

func TestLoad_ReadsHomeConfigFile(t *testing.T) {
	home := clearEnv(t)

	yamlContent := `
notion:
  token: "yaml-notion"
search:
  url: "http://search.local"
`
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Notion.Token != "yaml-notion" {
		t.Errorf("Notion.Token: got %q, want %q", cfg.Notion.Token, "yaml-notion")
	}
	if cfg.Search.URL != "http://search.local" {
		t.Errorf("Search.URL: got %q", cfg.Search.URL)
	}
}

func TestLoad_ExplicitConfigMissing(t *testing.T) {
	clearEnv(t)
	t.Setenv("SKILLKIT_CONFIG", "/nonexistent/config.yaml")

	if _, err := Load(); err == nil {
		t.Error("expected error for missing explicit config file, got nil")
	}
}

func TestLoadFromFile_EnvOverridesYAML(t *testing.T) {
	clearEnv(t)

	yamlContent := `
salesforce:
  client_id: "yaml-client"
  client_secret: "yaml-secret"
  username: "yaml@example.com"
  password: "yaml-pass"
logging:
  level: "info"
`
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	t.Setenv("SALESFORCE_USERNAME", "env@example.com")

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Salesforce.Username != "env@example.com" {
		t.Errorf("Salesforce.Username: got %q, want env value", cfg.Salesforce.Username)
	}
	if cfg.Salesforce.ClientID != "yaml-client" {
		t.Errorf("Salesforce.ClientID: got %q, want yaml value", cfg.Salesforce.ClientID)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level: got %q, want %q", cfg.Logging.Level, "info")
	}
	if !cfg.SalesforcePasswordConfigured() {
		t.Error("SalesforcePasswordConfigured: got false, want true")
	}
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	clearEnv(t)

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("{{invalid yaml"), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	if _, err := LoadFromFile(configPath); err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
}

func TestSESConfigured(t *testing.T) {
	tests := []struct {
		name   string
		region string
		sender string
		want   bool
	}{
		{name: "both set", region: "us-east-1", sender: "a@example.com", want: true},
		{name: "missing sender", region: "us-east-1", want: false},
		{name: "missing region", sender: "a@example.com", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{SES: SESConfig{Region: tt.region, Sender: tt.sender}}
			if got := cfg.SESConfigured(); got != tt.want {
				t.Errorf("SESConfigured: got %v, want %v", got, tt.want)
			}
		})
	}
}
