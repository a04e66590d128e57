package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Chat        ChatConfig                `json:"chat"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address"`
	// DatabaseType selects an entry of Databases: sqlite3, mysql or postgres.
	DatabaseType string `json:"database_type"`
	// SessionIdleTimeout is in minutes.
	SessionIdleTimeout int `json:"session_idle_timeout"`
	QueueSize          int `json:"queue_size"`
	MaxSessionsPerUser int `json:"max_sessions_per_user"`
}

type ChatConfig struct {
	// Provider is the default provider name for new sessions.
	Provider           string `json:"provider"`
	BlockLimit         int    `json:"block_limit"`
	MaxAttachmentBytes int64  `json:"max_attachment_bytes"`
	MemoryLimit        int    `json:"memory_limit"`
	// SnapshotCacheTTL is in seconds; zero disables the snapshot cache.
	SnapshotCacheTTL int `json:"snapshot_cache_ttl"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
	// Adapter is "native" or "eino". Only gemini has a native adapter.
	Adapter         string `json:"adapter"`
	MaxOutputTokens int32  `json:"max_output_tokens"`
	// NoSystemRole sends the system prompt as an opening user turn instead.
	NoSystemRole bool `json:"no_system_role"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// apiKeyEnv names the environment variable consulted when a provider has no api_key.
var apiKeyEnv = map[string]string{
	"gemini": "GEMINI_API_KEY",
	"openai": "OPENAI_API_KEY",
	"claude": "ANTHROPIC_API_KEY",
}

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.normalize(filepath.Dir(absPath)); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize(baseDir string) error {
	if c.BasicConfig.DatabaseType == "" {
		c.BasicConfig.DatabaseType = "sqlite3"
	}
	if _, ok := c.Databases[c.BasicConfig.DatabaseType]; !ok {
		return fmt.Errorf("database config for %s not found", c.BasicConfig.DatabaseType)
	}
	for name, db := range c.Databases {
		if isSQLite(name) && db.DSN != "" && db.DSN != ":memory:" && !strings.HasPrefix(db.DSN, "file:") && !filepath.IsAbs(db.DSN) {
			db.DSN = filepath.Join(baseDir, db.DSN)
			c.Databases[name] = db
		}
	}

	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	for name, env := range apiKeyEnv {
		p := c.Providers[name]
		if p.APIKey != "" {
			continue
		}
		if key := os.Getenv(env); key != "" {
			p.APIKey = key
			c.Providers[name] = p
		}
	}

	if c.Chat.Provider == "" {
		c.Chat.Provider = "gemini"
	}
	c.Chat.Provider = strings.ToLower(c.Chat.Provider)
	return nil
}

func isSQLite(name string) bool {
	name = strings.ToLower(name)
	return name == "sqlite" || name == "sqlite3"
}

// ProviderFromEnv builds a provider entry from environment variables alone.
func ProviderFromEnv(name string) ProviderConfig {
	name = strings.ToLower(name)
	var p ProviderConfig
	if env, ok := apiKeyEnv[name]; ok {
		p.APIKey = os.Getenv(env)
	}
	return p
}
