package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all runtime settings. Values come from defaults, an optional
// config.yaml and environment variables, in increasing precedence.
type Config struct {
	Port string `mapstructure:"port"`

	Database DatabaseConfig `mapstructure:"database"`
	AI       AIConfig       `mapstructure:"ai"`
	Gmail    GmailConfig    `mapstructure:"gmail"`

	EnrichInterval time.Duration `mapstructure:"enrich_interval"`
	EnrichLimit    int           `mapstructure:"enrich_limit"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type AIConfig struct {
	Provider            string `mapstructure:"provider"` // openai | ollama | auto
	OpenAIAPIKey        string `mapstructure:"openai_api_key"`
	OpenAIBaseURL       string `mapstructure:"openai_base_url"`
	ChatModel           string `mapstructure:"chat_model"`
	EmbeddingModel      string `mapstructure:"embedding_model"`
	EmbeddingDimensions int    `mapstructure:"embedding_dimensions"`
	OllamaURL           string `mapstructure:"ollama_url"`
	OllamaModel         string `mapstructure:"ollama_model"`
}

type GmailConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	AccessToken  string `mapstructure:"access_token"`
	RefreshToken string `mapstructure:"refresh_token"`
	UserEmail    string `mapstructure:"user_email"`
}

// Enabled reports whether enough credentials exist to build the provider.
func (g GmailConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != "" && (g.AccessToken != "" || g.RefreshToken != "")
}

// Load reads configuration. A missing config file is fine; env vars alone are
// a valid configuration.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("port", "8080")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "clientmail")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("ai.provider", "auto")
	v.SetDefault("ai.embedding_dimensions", 768)
	v.SetDefault("ai.ollama_url", "http://localhost:11434")
	v.SetDefault("ai.ollama_model", "llama3.2")
	v.SetDefault("enrich_interval", 15*time.Minute)
	v.SetDefault("enrich_limit", 50)

	v.SetEnvPrefix("CLIENTMAIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}
