package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig   `mapstructure:"server"`
	Telegram  TelegramConfig `mapstructure:"telegram"`
	Database  DatabaseConfig `mapstructure:"database"`
	Redis     RedisConfig    `mapstructure:"redis"`
	OpenAI    ProviderConfig `mapstructure:"openai"`
	Anthropic ProviderConfig `mapstructure:"anthropic"`
	Ollama    ProviderConfig `mapstructure:"ollama"`
	Insights  InsightsConfig `mapstructure:"insights"`
	Chat      ChatConfig     `mapstructure:"chat"`
	Log       LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Addr         string   `mapstructure:"addr"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`

	// UseLLMClassifier routes /insight questions through the providers
	// instead of keyword matching.
	UseLLMClassifier bool `mapstructure:"use_llm_classifier"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	Path     string `mapstructure:"path"`
}

// RedisConfig is optional. An empty Addr keeps the insight cache in the database.
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	Retention time.Duration `mapstructure:"retention"`
}

type ProviderConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base_url"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature *float64      `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// InsightsConfig names the primary and secondary providers by kind
// (openai, anthropic or ollama).
type InsightsConfig struct {
	Primary     string  `mapstructure:"primary"`
	Secondary   string  `mapstructure:"secondary"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

type ChatConfig struct {
	Primary     string  `mapstructure:"primary"`
	Secondary   string  `mapstructure:"secondary"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Provider returns the settings for one provider kind.
func (c *Config) Provider(kind string) (ProviderConfig, error) {
	switch kind {
	case "openai":
		return c.OpenAI, nil
	case "anthropic":
		return c.Anthropic, nil
	case "ollama":
		return c.Ollama, nil
	default:
		return ProviderConfig{}, fmt.Errorf("unknown provider %q", kind)
	}
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return DatabaseConfig{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Driver:   "postgres",
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

// LoadConfig reads path when given, then applies environment overrides.
// A missing file is not an error: defaults and the environment are enough
// to run against the in-memory store.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allow_origins", []string{"*"})
	v.SetDefault("telegram.use_llm_classifier", false)
	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "scout")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "scout.db")
	v.SetDefault("redis.key_prefix", "scout:insights:")
	v.SetDefault("redis.retention", time.Hour)
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("anthropic.model", "claude-3-5-sonnet-latest")
	v.SetDefault("ollama.model", "qwen2.5:7b")
	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("insights.primary", "openai")
	v.SetDefault("insights.secondary", "anthropic")
	v.SetDefault("insights.temperature", 0.7)
	v.SetDefault("insights.max_tokens", 1000)
	v.SetDefault("chat.primary", "anthropic")
	v.SetDefault("chat.secondary", "openai")
	v.SetDefault("chat.temperature", 0.7)
	v.SetDefault("chat.max_tokens", 1000)
	v.SetDefault("log.level", "info")

	// Enable environment variable support, e.g. SERVER_ADDR or CHAT_PRIMARY
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !isMissingFile(err) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %v", err)
		}
		config.Database = dbConfig
	}

	// Get other environment variables
	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}
	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}
	if apiKey := v.GetString("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Anthropic.APIKey = apiKey
	}
	if addr := v.GetString("REDIS_ADDR"); addr != "" {
		config.Redis.Addr = addr
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	for _, kind := range []string{c.Insights.Primary, c.Chat.Primary} {
		if _, err := c.Provider(kind); err != nil {
			return err
		}
	}
	for _, kind := range []string{c.Insights.Secondary, c.Chat.Secondary} {
		if kind == "" {
			continue
		}
		if _, err := c.Provider(kind); err != nil {
			return err
		}
	}
	switch c.Database.Driver {
	case "postgres", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	return nil
}

// isMissingFile reports whether viper failed because the explicit config file
// does not exist. SetConfigFile surfaces that as a plain fs error.
func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
