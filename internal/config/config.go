// Package config provides environment-variable-first configuration loading
// with an optional YAML file base layer, shared by every skill binary.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// defaultDirName is the per-user dotfile directory holding config, token
// caches and app registrations.
const defaultDirName = ".skillkit"

// Config holds the complete application configuration.
type Config struct {
	// Home is the dotfile directory. Each tool keeps its state in a
	// subdirectory named after the tool.
	Home string `yaml:"home"`

	Logging    LoggingConfig    `yaml:"logging"`
	Gmail      GmailConfig      `yaml:"gmail"`
	Notion     NotionConfig     `yaml:"notion"`
	Slack      SlackConfig      `yaml:"slack"`
	Microsoft  MicrosoftConfig  `yaml:"microsoft"`
	Dynamics   DynamicsConfig   `yaml:"dynamics"`
	Salesforce SalesforceConfig `yaml:"salesforce"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	MySQL      MySQLConfig      `yaml:"mysql"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	Mongo      MongoConfig      `yaml:"mongo"`
	Redis      RedisConfig      `yaml:"redis"`
	Search     SearchConfig     `yaml:"search"`
	Browser    BrowserConfig    `yaml:"browser"`
	TTS        TTSConfig        `yaml:"tts"`
	SES        SESConfig        `yaml:"ses"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GmailConfig holds Gmail OAuth client settings.
type GmailConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	Account         string `yaml:"account"`
	AccessToken     string `yaml:"-"`
	// APIURL overrides the Gmail API endpoint. Empty means the default.
	APIURL string `yaml:"api_url"`
}

// NotionConfig holds the Notion integration token.
type NotionConfig struct {
	Token string `yaml:"token"`
}

// SlackConfig holds the Slack bot or user token.
type SlackConfig struct {
	Token string `yaml:"token"`
	// APIURL overrides the Web API base URL, ending in a slash.
	APIURL string `yaml:"api_url"`
}

// MicrosoftConfig holds defaults for the Graph-backed tools. A client ID here
// is used when a tool has no stored app registration of its own.
type MicrosoftConfig struct {
	ClientID    string `yaml:"client_id"`
	TenantID    string `yaml:"tenant_id"`
	Account     string `yaml:"account"`
	AccessToken string `yaml:"-"`

	// AuthorityURL and GraphURL point at the identity platform and the
	// Graph endpoint. Both are overridable for sovereign clouds.
	AuthorityURL string `yaml:"authority_url"`
	GraphURL     string `yaml:"graph_url"`
}

// DynamicsConfig holds Dataverse environment settings.
type DynamicsConfig struct {
	URL      string `yaml:"url"`
	ClientID string `yaml:"client_id"`
	TenantID string `yaml:"tenant_id"`
	// ClientSecret switches login to the app-only client credentials grant.
	ClientSecret string `yaml:"client_secret"`
	APIVersion   string `yaml:"api_version"`
	AccessToken  string `yaml:"-"`
}

// SalesforceConfig holds connected-app and user credentials for the
// username-password OAuth exchange.
type SalesforceConfig struct {
	LoginURL      string `yaml:"login_url"`
	ClientID      string `yaml:"client_id"`
	ClientSecret  string `yaml:"client_secret"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	SecurityToken string `yaml:"security_token"`
	APIVersion    string `yaml:"api_version"`
	AccessToken   string `yaml:"-"`
	InstanceURL   string `yaml:"instance_url"`
}

// PostgresConfig holds the Postgres connection URL.
type PostgresConfig struct {
	URL string `yaml:"url"`
}

// MySQLConfig holds the MySQL DSN.
type MySQLConfig struct {
	DSN      string `yaml:"dsn"`
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// SQLiteConfig holds the default database file.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// MongoConfig holds the MongoDB connection URI and default database.
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// RedisConfig holds the Redis URL and optional TLS material.
type RedisConfig struct {
	URL      string `yaml:"url"`
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// SearchConfig holds the web-search API settings.
type SearchConfig struct {
	APIKey string `yaml:"api_key"`
	URL    string `yaml:"url"`
}

// BrowserConfig holds the browser-automation runner API settings.
type BrowserConfig struct {
	APIKey string `yaml:"api_key"`
	URL    string `yaml:"url"`
}

// TTSConfig holds text-to-speech settings.
type TTSConfig struct {
	APIKey     string `yaml:"api_key"`
	URL        string `yaml:"url"`
	VoicesFile string `yaml:"voices_file"`
	Model      string `yaml:"model"`
}

// SESConfig holds AWS SES configuration.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Sender          string `yaml:"sender"`
}

// Load builds the configuration from defaults, the YAML file named by
// SKILLKIT_CONFIG (or <home>/config.yaml when present) and finally the
// environment. .env files in the working directory and the home directory are
// loaded into the environment first without overriding variables that are
// already set.
func Load() (*Config, error) {
	loadDotEnv()

	cfg := &Config{}
	cfg.applyDefaults()

	path := os.Getenv("SKILLKIT_CONFIG")
	explicit := path != ""
	if !explicit {
		path = filepath.Join(cfg.Home, "config.yaml")
	}

	if err := cfg.applyFile(path, explicit); err != nil {
		return nil, err
	}

	cfg.applyEnvVars()
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	if err := cfg.applyFile(path, true); err != nil {
		return nil, err
	}

	cfg.applyEnvVars()
	return cfg, nil
}

// Default returns the configuration with only defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// ToolDir returns the state directory for the named tool.
func (c *Config) ToolDir(tool string) string {
	return filepath.Join(c.Home, tool)
}

func (c *Config) applyFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if !required && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.Home = defaultHome()
	c.Logging.Level = "warn"
	c.Logging.Format = "text"
	c.Microsoft.TenantID = "common"
	c.Microsoft.AuthorityURL = "https://login.microsoftonline.com"
	c.Microsoft.GraphURL = "https://graph.microsoft.com/v1.0"
	c.Dynamics.TenantID = "common"
	c.Dynamics.APIVersion = "v9.2"
	c.Salesforce.LoginURL = "https://login.salesforce.com"
	c.Salesforce.APIVersion = "v59.0"
	c.SQLite.Path = "data.db"
	c.Redis.URL = "redis://localhost:6379/0"
	c.Search.URL = "https://api.tavily.com"
	c.Browser.URL = "https://api.browser-use.com/api/v1"
	c.TTS.URL = "https://api.elevenlabs.io"
	c.TTS.Model = "eleven_multilingual_v2"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values; where two
// names are listed the first one set wins.
func (c *Config) applyEnvVars() {
	setFromEnv(&c.Home, "SKILLKIT_HOME")
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}

	setFromEnv(&c.Gmail.CredentialsFile, "GMAIL_CREDENTIALS_FILE")
	setFromEnv(&c.Gmail.Account, "GMAIL_ACCOUNT")
	setFromEnv(&c.Gmail.AccessToken, "GMAIL_ACCESS_TOKEN")
	setFromEnv(&c.Gmail.APIURL, "GMAIL_API_URL")

	setFromEnv(&c.Notion.Token, "NOTION_API_KEY", "NOTION_TOKEN")
	setFromEnv(&c.Slack.Token, "SLACK_BOT_TOKEN", "SLACK_TOKEN")
	setFromEnv(&c.Slack.APIURL, "SLACK_API_URL")

	setFromEnv(&c.Microsoft.ClientID, "MS_CLIENT_ID")
	setFromEnv(&c.Microsoft.TenantID, "MS_TENANT_ID")
	setFromEnv(&c.Microsoft.Account, "MS_ACCOUNT")
	setFromEnv(&c.Microsoft.AccessToken, "GRAPH_ACCESS_TOKEN")
	setFromEnv(&c.Microsoft.AuthorityURL, "MS_AUTHORITY_URL")
	setFromEnv(&c.Microsoft.GraphURL, "GRAPH_API_URL")

	setFromEnv(&c.Dynamics.URL, "DYNAMICS_URL")
	setFromEnv(&c.Dynamics.ClientID, "DYNAMICS_CLIENT_ID")
	setFromEnv(&c.Dynamics.TenantID, "DYNAMICS_TENANT_ID")
	setFromEnv(&c.Dynamics.ClientSecret, "DYNAMICS_CLIENT_SECRET")
	setFromEnv(&c.Dynamics.APIVersion, "DYNAMICS_API_VERSION")
	setFromEnv(&c.Dynamics.AccessToken, "DYNAMICS_ACCESS_TOKEN")

	setFromEnv(&c.Salesforce.LoginURL, "SALESFORCE_LOGIN_URL")
	setFromEnv(&c.Salesforce.ClientID, "SALESFORCE_CLIENT_ID")
	setFromEnv(&c.Salesforce.ClientSecret, "SALESFORCE_CLIENT_SECRET")
	setFromEnv(&c.Salesforce.Username, "SALESFORCE_USERNAME")
	setFromEnv(&c.Salesforce.Password, "SALESFORCE_PASSWORD")
	setFromEnv(&c.Salesforce.SecurityToken, "SALESFORCE_SECURITY_TOKEN")
	setFromEnv(&c.Salesforce.APIVersion, "SALESFORCE_API_VERSION")
	setFromEnv(&c.Salesforce.AccessToken, "SALESFORCE_ACCESS_TOKEN")
	setFromEnv(&c.Salesforce.InstanceURL, "SALESFORCE_INSTANCE_URL")

	setFromEnv(&c.Postgres.URL, "DATABASE_URL", "POSTGRES_URL")
	setFromEnv(&c.MySQL.DSN, "MYSQL_DSN", "MYSQL_URL")
	setFromEnv(&c.MySQL.CAFile, "MYSQL_CA_FILE")
	setFromEnv(&c.MySQL.CertFile, "MYSQL_CERT_FILE")
	setFromEnv(&c.MySQL.KeyFile, "MYSQL_KEY_FILE")
	setFromEnv(&c.SQLite.Path, "SQLITE_PATH")
	setFromEnv(&c.Mongo.URI, "MONGODB_URI", "MONGO_URL")
	setFromEnv(&c.Mongo.Database, "MONGODB_DB")
	setFromEnv(&c.Redis.URL, "REDIS_URL")
	setFromEnv(&c.Redis.CAFile, "REDIS_CA_FILE")
	setFromEnv(&c.Redis.CertFile, "REDIS_CERT_FILE")
	setFromEnv(&c.Redis.KeyFile, "REDIS_KEY_FILE")

	setFromEnv(&c.Search.APIKey, "SEARCH_API_KEY", "TAVILY_API_KEY")
	setFromEnv(&c.Search.URL, "SEARCH_API_URL")
	setFromEnv(&c.Browser.APIKey, "BROWSER_API_KEY", "BROWSER_USE_API_KEY")
	setFromEnv(&c.Browser.URL, "BROWSER_API_URL")

	setFromEnv(&c.TTS.APIKey, "ELEVEN_API_KEY", "ELEVENLABS_API_KEY")
	setFromEnv(&c.TTS.URL, "ELEVENLABS_API_URL")
	setFromEnv(&c.TTS.VoicesFile, "TTS_VOICES_FILE")
	setFromEnv(&c.TTS.Model, "TTS_MODEL")

	setFromEnv(&c.SES.Region, "SES_REGION")
	setFromEnv(&c.SES.AccessKeyID, "SES_ACCESS_KEY_ID")
	setFromEnv(&c.SES.SecretAccessKey, "SES_SECRET_ACCESS_KEY")
	setFromEnv(&c.SES.Sender, "SES_SENDER")
}

// SESConfigured returns true if the region and sender are set.
func (c *Config) SESConfigured() bool {
	return c.SES.Region != "" && c.SES.Sender != ""
}

// SalesforcePasswordConfigured returns true if every field needed for the
// username-password exchange is set.
func (c *Config) SalesforcePasswordConfigured() bool {
	s := c.Salesforce
	return s.ClientID != "" && s.ClientSecret != "" && s.Username != "" && s.Password != ""
}

func setFromEnv(dst *string, names ...string) {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			*dst = v
			return
		}
	}
}

func defaultHome() string {
	if v := os.Getenv("SKILLKIT_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultDirName
	}
	return filepath.Join(home, defaultDirName)
}

// loadDotEnv loads ./.env and <home>/.env. godotenv.Load never overrides
// variables that are already present, so the real environment still wins.
func loadDotEnv() {
	for _, path := range []string{".env", filepath.Join(defaultHome(), ".env")} {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
		}
	}
}
