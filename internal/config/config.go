package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig     `json:"server"`
	Persona   PersonaConfig    `json:"persona"`
	Providers []ProviderConfig `json:"providers"`
	Gateway   GatewayConfig    `json:"gateway"`
	Database  DatabaseConfig   `json:"database"`
	Embedding EmbeddingConfig  `json:"embedding"`
	Memory    MemoryConfig     `json:"memory"`
	Scheduler SchedulerConfig  `json:"scheduler"`
	Profile   ProfileConfig    `json:"profile"`
	ImageGen  ImageGenConfig   `json:"imagegen"`
	Weather   WeatherConfig    `json:"weather"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

// PersonaConfig describes the simulated character.
type PersonaConfig struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Timezone    string `json:"timezone"`
}

type ProviderConfig struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Name     string            `json:"name"`
	Endpoint string            `json:"endpoint"`
	APIKey   string            `json:"api_key"`
	Models   []string          `json:"models,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

type GatewayConfig struct {
	Slack   SlackGatewayConfig   `json:"slack"`
	Discord DiscordGatewayConfig `json:"discord"`
}

type SlackGatewayConfig struct {
	Enabled     bool   `json:"enabled"`
	BotToken    string `json:"bot_token"`
	AppToken    string `json:"app_token"`
	HomeChannel string `json:"home_channel"`
}

type DiscordGatewayConfig struct {
	Enabled     bool   `json:"enabled"`
	BotToken    string `json:"bot_token"`
	HomeChannel string `json:"home_channel"`
}

type DatabaseConfig struct {
	SQLite   SQLiteConfig   `json:"sqlite"`
	Postgres PostgresConfig `json:"postgres"`
	Neo4j    Neo4jConfig    `json:"neo4j"`
	Redis    RedisConfig    `json:"redis"`
	Qdrant   QdrantConfig   `json:"qdrant"`
}

// SQLiteConfig locates the embedded memory database. This is the only
// required store; the rest are optional backends.
type SQLiteConfig struct {
	Path string `json:"path"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type Neo4jConfig struct {
	URI      string `json:"uri"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

type QdrantConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type EmbeddingConfig struct {
	Provider  string `json:"provider"`
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
}

// MemoryConfig tunes importance decay.
type MemoryConfig struct {
	DecayThresholdDays int    `json:"decay_threshold_days"`
	SweepInterval      string `json:"sweep_interval"`
}

// SchedulerConfig tunes the randomized publish and thinking loops.
type SchedulerConfig struct {
	PublishTimesPerDay  int      `json:"publish_times_per_day"`
	PublishWindows      []string `json:"publish_windows"`
	InsomniaProbability float64  `json:"insomnia_probability"`
	ThoughtInterval     string   `json:"thought_interval"`
	ActivityInterval    string   `json:"activity_interval"`
	ReviewCron          string   `json:"review_cron"`
}

// ProfileConfig gates autonomous profile changes.
type ProfileConfig struct {
	CooldownMinutes    int     `json:"cooldown_minutes"`
	IntensityThreshold float64 `json:"intensity_threshold"`
}

type ImageGenConfig struct {
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
}

type WeatherConfig struct {
	Enabled bool   `json:"enabled"`
	City    string `json:"city"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file, substitutes environment variable
// references, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Persona.Name == "" {
		c.Persona.Name = "eidolon"
	}
	if c.Database.SQLite.Path == "" {
		c.Database.SQLite.Path = "eidolon.db"
	}
	if c.Memory.DecayThresholdDays == 0 {
		c.Memory.DecayThresholdDays = 30
	}
	if c.Memory.SweepInterval == "" {
		c.Memory.SweepInterval = "24h"
	}
	if c.Scheduler.PublishTimesPerDay == 0 {
		c.Scheduler.PublishTimesPerDay = 2
	}
	if len(c.Scheduler.PublishWindows) == 0 {
		c.Scheduler.PublishWindows = []string{"9-12", "14-18", "19-22"}
	}
	if c.Scheduler.ThoughtInterval == "" {
		c.Scheduler.ThoughtInterval = "20m"
	}
	if c.Scheduler.ActivityInterval == "" {
		c.Scheduler.ActivityInterval = "25m"
	}
	if c.Scheduler.ReviewCron == "" {
		c.Scheduler.ReviewCron = "0 21 * * *"
	}
	if c.Profile.CooldownMinutes == 0 {
		c.Profile.CooldownMinutes = 30
	}
	if c.Profile.IntensityThreshold == 0 {
		c.Profile.IntensityThreshold = 0.6
	}
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Server.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.log_level %q unknown", c.Server.LogLevel)
	}
	if c.Persona.Timezone != "" {
		if _, err := time.LoadLocation(c.Persona.Timezone); err != nil {
			return fmt.Errorf("persona.timezone: %w", err)
		}
	}
	if _, err := time.ParseDuration(c.Memory.SweepInterval); err != nil {
		return fmt.Errorf("memory.sweep_interval: %w", err)
	}
	if c.Memory.DecayThresholdDays < 1 {
		return fmt.Errorf("memory.decay_threshold_days %d must be positive", c.Memory.DecayThresholdDays)
	}
	if c.Scheduler.PublishTimesPerDay < 1 {
		return fmt.Errorf("scheduler.publish_times_per_day %d must be positive", c.Scheduler.PublishTimesPerDay)
	}
	if p := c.Scheduler.InsomniaProbability; p < 0 || p > 1 {
		return fmt.Errorf("scheduler.insomnia_probability %v outside [0,1]", p)
	}
	if _, err := time.ParseDuration(c.Scheduler.ThoughtInterval); err != nil {
		return fmt.Errorf("scheduler.thought_interval: %w", err)
	}
	if _, err := time.ParseDuration(c.Scheduler.ActivityInterval); err != nil {
		return fmt.Errorf("scheduler.activity_interval: %w", err)
	}
	if t := c.Profile.IntensityThreshold; t < 0 || t > 1 {
		return fmt.Errorf("profile.intensity_threshold %v outside [0,1]", t)
	}
	for i, p := range c.Providers {
		if p.ID == "" {
			return fmt.Errorf("providers[%d]: missing id", i)
		}
		if p.Type == "" {
			return fmt.Errorf("provider %s: missing type", p.ID)
		}
	}
	if c.Gateway.Discord.Enabled && c.Gateway.Discord.BotToken == "" {
		return fmt.Errorf("gateway.discord enabled without bot_token")
	}
	if c.Gateway.Slack.Enabled && (c.Gateway.Slack.BotToken == "" || c.Gateway.Slack.AppToken == "") {
		return fmt.Errorf("gateway.slack enabled without bot_token and app_token")
	}
	return nil
}

// Location resolves the persona timezone, falling back to local time.
func (c *Config) Location() *time.Location {
	if c.Persona.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Persona.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
