package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	app_errors "github.com/yusuftnc/qchat/internal/errors"
	"github.com/yusuftnc/qchat/internal/validation"
)

// Providers accepted in PROVIDER.
const (
	ProviderBackend = "backend"
	ProviderOpenAI  = "openai"
)

// Config is shared by the terminal client and the development gateway.
type Config struct {
	// Client side.
	APIBaseURL    string        `mapstructure:"API_BASE_URL" validate:"required,url"`
	APIKey        string        `mapstructure:"API_KEY"`
	DefaultModel  string        `mapstructure:"DEFAULT_MODEL" validate:"required"`
	Stream        bool          `mapstructure:"STREAM"`
	Provider      string        `mapstructure:"PROVIDER" validate:"oneof=backend openai"`
	OpenAIBaseURL string        `mapstructure:"OPENAI_BASE_URL" validate:"required_if=Provider openai,omitempty,url"`
	OpenAIAPIKey  string        `mapstructure:"OPENAI_API_KEY"`
	HealthTimeout time.Duration `mapstructure:"HEALTH_TIMEOUT" validate:"gt=0"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
	LogFile  string `mapstructure:"LOG_FILE"`

	// Gateway side.
	AppPort            int      `mapstructure:"APP_PORT" validate:"min=1,max=65535"`
	OllamaURL          string   `mapstructure:"OLLAMA_URL" validate:"required,url"`
	CORSAllowedOrigins []string `mapstructure:"CORS_ALLOWED_ORIGINS"`
}

func LoadConfig() (*Config, error) {
	viper.SetDefault("API_BASE_URL", "http://localhost:3000")
	viper.SetDefault("API_KEY", "")
	viper.SetDefault("DEFAULT_MODEL", "llama3.2:1b")
	viper.SetDefault("STREAM", false)
	viper.SetDefault("PROVIDER", ProviderBackend)
	viper.SetDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")
	viper.SetDefault("OPENAI_API_KEY", "")
	viper.SetDefault("HEALTH_TIMEOUT", 5*time.Second)
	viper.SetDefault("LOG_LEVEL", "INFO")
	viper.SetDefault("LOG_FILE", "")
	viper.SetDefault("APP_PORT", 8000)
	viper.SetDefault("OLLAMA_URL", "http://localhost:11434")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", []string{"*"})

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".qchat"))
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	return current()
}

func current() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	return &cfg, nil
}

// Validate rejects settings neither binary can run with.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return fmt.Errorf("%w: %s", app_errors.ErrValidation, err.Error())
	}
	return nil
}

// Watch reloads the configuration whenever the config file changes and
// hands the new values to onChange. It reports false when no config file is
// in use, in which case there is nothing to watch.
func Watch(onChange func(*Config, fsnotify.Event)) bool {
	if viper.ConfigFileUsed() == "" {
		return false
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := current()
		if err != nil {
			slog.Warn("Ignoring unreadable configuration change", "file", e.Name, "error", err)
			return
		}
		onChange(cfg, e)
	})
	viper.WatchConfig()
	return true
}
