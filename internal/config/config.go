// Package config handles Homeward configuration loading.
//
// Configuration is environment-first: every knob is an environment
// variable, optionally seeded from a .env file for local development.
// The server and client binaries have disjoint configuration surfaces,
// loaded by [LoadServer] and [LoadClient] respectively.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ServerConfig holds all tool-server configuration.
type ServerConfig struct {
	ServerPort int    `envconfig:"SERVER_PORT" default:"8000"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat  string `envconfig:"LOG_FORMAT" default:"text"`

	NTPServer       string `envconfig:"NTP_SERVER" default:"pool.ntp.org"`
	NTPBackupServer string `envconfig:"NTP_BACKUP_SERVER" default:"time.google.com"`
	NTPTimeoutSec   int    `envconfig:"NTP_TIMEOUT" default:"5"`
	LocalTimezone   string `envconfig:"LOCAL_TIMEZONE" default:"America/Los_Angeles"`

	Redis RedisConfig

	HAURL         string `envconfig:"HA_URL" default:"http://ha.internal"`
	HAToken       string `envconfig:"HA_TOKEN"`
	HACacheTTLSec int    `envconfig:"HA_CACHE_TTL" default:"30"`
}

// ClientConfig holds all orchestrator configuration.
type ClientConfig struct {
	ClientPort int    `envconfig:"CLIENT_PORT" default:"8001"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat  string `envconfig:"LOG_FORMAT" default:"text"`

	LLMURL        string `envconfig:"LLM_URL" default:"http://localhost:11434"`
	LLMModel      string `envconfig:"LLM_MODEL" default:"llama3.2"`
	ToolServerURL string `envconfig:"TOOL_SERVER_URL" default:"http://localhost:8000"`
	WhisperURL    string `envconfig:"WHISPER_URL"`

	Redis RedisConfig
	MySQL MySQLConfig
}

// RedisConfig defines the key/value store connection settings. Shared
// between the server (HA state cache) and the client (interaction log).
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// Addr returns the host:port address for the Redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MySQLConfig defines the durable feedback store connection settings.
type MySQLConfig struct {
	Host     string `envconfig:"MYSQL_HOST" default:"localhost"`
	Port     int    `envconfig:"MYSQL_PORT" default:"3306"`
	Database string `envconfig:"MYSQL_DATABASE" default:"homeward"`
	User     string `envconfig:"MYSQL_USER" default:"homeward"`
	Password string `envconfig:"MYSQL_PASSWORD"`
	PoolSize int    `envconfig:"MYSQL_POOL_SIZE" default:"5"`
}

// Configured reports whether enough is set to open the durable store.
func (m MySQLConfig) Configured() bool {
	return m.Password != ""
}

// DSN returns the go-sql-driver data source name.
func (m MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true",
		m.User, m.Password, m.Host, m.Port, m.Database)
}

// HAConfigured reports whether Home Assistant integration is enabled.
func (c *ServerConfig) HAConfigured() bool {
	return c.HAToken != ""
}

// NTPTimeout returns the NTP query timeout as a duration.
func (c *ServerConfig) NTPTimeout() time.Duration {
	return time.Duration(c.NTPTimeoutSec) * time.Second
}

// HACacheTTL returns the state cache TTL as a duration.
func (c *ServerConfig) HACacheTTL() time.Duration {
	return time.Duration(c.HACacheTTLSec) * time.Second
}

// LoadServer reads server configuration from the environment. A .env
// file in the working directory is loaded first if present; real
// environment variables win over file entries.
func LoadServer() (*ServerConfig, error) {
	_ = godotenv.Load()

	var cfg ServerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadClient reads orchestrator configuration from the environment.
// Uses .env.client when present so both processes can share a checkout.
func LoadClient() (*ClientConfig, error) {
	_ = godotenv.Load(".env.client")
	_ = godotenv.Load()

	var cfg ClientConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *ServerConfig) validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid SERVER_PORT: %d", c.ServerPort)
	}
	if c.HACacheTTLSec < 0 {
		return fmt.Errorf("invalid HA_CACHE_TTL: %d", c.HACacheTTLSec)
	}
	return nil
}

func (c *ClientConfig) validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.ClientPort <= 0 || c.ClientPort > 65535 {
		return fmt.Errorf("invalid CLIENT_PORT: %d", c.ClientPort)
	}
	return nil
}
