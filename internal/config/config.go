// Package config loads and persists the personabot configuration: a
// single JSON document merged over built-in defaults, with secrets
// overridable from the environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"dario.cat/mergo"

	"github.com/hwestman/personabot/internal/llm"
	. "github.com/hwestman/personabot/internal/logging"
)

// Config is the merged personabot configuration.
type Config struct {
	DataDir  string             `json:"dataDir"`
	Log      LogConfig          `json:"log"`
	Database DatabaseConfig     `json:"database"`
	LLM      llm.RegistryConfig `json:"llm"`
	Limits   LimitsConfig       `json:"limits"`
	Timeouts TimeoutsConfig     `json:"timeouts"`
	Personas PersonasConfig     `json:"personas"`
	Imagine  ImagineConfig      `json:"imagine"`
	Discord  DiscordConfig      `json:"discord"`
	Telegram TelegramConfig     `json:"telegram"`
	Web      WebConfig          `json:"web"`
}

type LogConfig struct {
	Level      string `json:"level"`
	ShowCaller bool   `json:"showCaller"`
}

type DatabaseConfig struct {
	Path string `json:"path"` // empty: <dataDir>/personabot.db
}

// LimitsConfig is the per-user sliding rate window.
type LimitsConfig struct {
	MaxRequests   int `json:"maxRequests"`
	WindowSeconds int `json:"windowSeconds"`
}

// TimeoutsConfig feeds the orchestrator deadlines.
type TimeoutsConfig struct {
	AckSeconds      int `json:"ackSeconds"`
	CompleteSeconds int `json:"completeSeconds"`
	SendSeconds     int `json:"sendSeconds"`
}

type PersonasConfig struct {
	File string `json:"file"` // empty: <dataDir>/personas.toml
}

type ImagineConfig struct {
	Model string `json:"model"`
}

type DiscordConfig struct {
	Token     string `json:"token"`
	AppID     string `json:"appId"`
	PublicKey string `json:"publicKey"`
	// GuildID scopes command sync to one guild (instant propagation).
	// Empty syncs commands globally.
	GuildID string `json:"guildId"`
	// Mode is "gateway" (websocket) or "webhook" (interactions endpoint
	// on the web server).
	Mode string `json:"mode"`
}

func (d DiscordConfig) Enabled() bool { return d.Token != "" }

type TelegramConfig struct {
	Token        string  `json:"token"`
	AllowedUsers []int64 `json:"allowedUsers"` // empty: everyone
}

func (t TelegramConfig) Enabled() bool { return t.Token != "" }

type WebConfig struct {
	Listen            string `json:"listen"` // empty: disabled
	AdminUser         string `json:"adminUser"`
	AdminPasswordHash string `json:"adminPasswordHash"` // bcrypt, set by setup
}

func (w WebConfig) Enabled() bool { return w.Listen != "" }

// Defaults returns the configuration used when no file exists. Values
// here also fill any field the file leaves unset.
func Defaults() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DataDir: filepath.Join(home, ".personabot"),
		Log: LogConfig{
			Level: "info",
		},
		LLM: llm.RegistryConfig{
			Default: "openai",
			Providers: map[string]llm.ProviderConfig{
				"openai":    {Type: "openai", Model: "gpt-5.1"},
				"anthropic": {Type: "anthropic", Model: "claude-opus-4-5"},
				"xai":       {Type: "xai", Model: "grok-4-1-fast-reasoning"},
			},
		},
		Limits: LimitsConfig{
			MaxRequests:   10,
			WindowSeconds: 60,
		},
		Timeouts: TimeoutsConfig{
			AckSeconds:      3,
			CompleteSeconds: 900,
			SendSeconds:     10,
		},
		Imagine: ImagineConfig{
			Model: "dall-e-3",
		},
		Discord: DiscordConfig{
			Mode: "gateway",
		},
		Web: WebConfig{
			Listen:    "127.0.0.1:8321",
			AdminUser: "admin",
		},
	}
}

// DefaultPath is where setup writes and run looks last.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".personabot", "personabot.json")
}

// FindConfig returns the first config file that exists, preferring the
// working directory over the home location. Empty when none exists.
func FindConfig() string {
	for _, path := range []string{"personabot.json", DefaultPath()} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Load reads path, merges it over Defaults, applies environment secret
// overrides and normalizes the provider set. A missing file is not an
// error: the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		L_info("config: no file found, using defaults", "path", path)
	case err != nil:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		L_debug("config: loaded", "path", path)
	}

	if err := mergo.Merge(cfg, Defaults()); err != nil {
		return nil, fmt.Errorf("config: merge defaults: %w", err)
	}
	cfg.applyEnv()
	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv lets secrets come from the environment instead of the file.
// Environment values win over file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("DISCORD_TOKEN"); v != "" {
		c.Discord.Token = v
	}
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	for env, name := range map[string]string{
		"OPENAI_API_KEY":    "openai",
		"ANTHROPIC_API_KEY": "anthropic",
		"XAI_API_KEY":       "xai",
	} {
		v := os.Getenv(env)
		if v == "" {
			continue
		}
		pc := c.LLM.Providers[name]
		if pc.Type == "" {
			pc.Type = name
		}
		pc.APIKey = v
		c.LLM.Providers[name] = pc
	}
}

var defaultModels = map[string]string{
	"openai":    "gpt-5.1",
	"anthropic": "claude-opus-4-5",
	"xai":       "grok-4-1-fast-reasoning",
}

// normalize drops provider entries that can never construct (no key and
// no local endpoint), fills per-type defaults on partial entries, and
// repoints the default at a usable provider.
func (c *Config) normalize() {
	for name, pc := range c.LLM.Providers {
		if pc.APIKey == "" && pc.BaseURL == "" {
			delete(c.LLM.Providers, name)
			continue
		}
		if pc.Type == "" {
			pc.Type = name
		}
		if pc.Model == "" {
			pc.Model = defaultModels[pc.Type]
		}
		c.LLM.Providers[name] = pc
	}
	if _, ok := c.LLM.Providers[c.LLM.Default]; ok || len(c.LLM.Providers) == 0 {
		return
	}
	names := make([]string, 0, len(c.LLM.Providers))
	for name := range c.LLM.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	L_warn("config: default llm provider has no credentials, switching",
		"from", c.LLM.Default, "to", names[0])
	c.LLM.Default = names[0]
}

func (c *Config) validate() error {
	if c.Discord.Mode != "gateway" && c.Discord.Mode != "webhook" {
		return fmt.Errorf("config: discord.mode must be \"gateway\" or \"webhook\", got %q", c.Discord.Mode)
	}
	if c.Discord.Enabled() && c.Discord.Mode == "webhook" {
		if c.Discord.PublicKey == "" {
			return fmt.Errorf("config: discord webhook mode requires discord.publicKey")
		}
		if !c.Web.Enabled() {
			return fmt.Errorf("config: discord webhook mode requires web.listen")
		}
	}
	if c.Limits.MaxRequests <= 0 || c.Limits.WindowSeconds <= 0 {
		return fmt.Errorf("config: limits must be positive, got %d/%ds",
			c.Limits.MaxRequests, c.Limits.WindowSeconds)
	}
	return nil
}

// Save writes the config with a rotated backup of the previous version.
func (c *Config) Save(path string) error {
	return BackupAndWriteJSON(path, c, DefaultBackupCount)
}

// DatabasePath resolves the sqlite file location.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.DataDir, "personabot.db")
}

// PersonasPath resolves the optional personas overlay file.
func (c *Config) PersonasPath() string {
	if c.Personas.File != "" {
		return c.Personas.File
	}
	return filepath.Join(c.DataDir, "personas.toml")
}

// RateWindow converts the limits block for the limiter.
func (c *Config) RateWindow() (int, time.Duration) {
	return c.Limits.MaxRequests, time.Duration(c.Limits.WindowSeconds) * time.Second
}
