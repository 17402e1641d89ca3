// Package config loads portal configuration from file and environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full portal configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	DB       DBConfig       `mapstructure:"db"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Mikrotik MikrotikConfig `mapstructure:"mikrotik"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port       string `mapstructure:"port"`
	BaseURL    string `mapstructure:"base_url"`
	UploadDir  string `mapstructure:"upload_dir"`
	AdminToken string `mapstructure:"admin_token"`
	PrintQR    bool   `mapstructure:"print_qr"`
}

// DBConfig holds SQLite settings.
type DBConfig struct {
	Path string `mapstructure:"path"`
}

// AuthConfig holds guest-token signing settings.
type AuthConfig struct {
	KeysDir  string        `mapstructure:"keys_dir"`
	Issuer   string        `mapstructure:"issuer"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// MikrotikConfig holds router connection settings. Transport selects
// between the RouterOS API ("api") and SSH ("ssh"); "noop" runs the
// portal without a router for development.
type MikrotikConfig struct {
	Transport     string        `mapstructure:"transport"`
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	SSHPrivateKey string        `mapstructure:"ssh_private_key"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// TelegramConfig holds approval-channel settings.
type TelegramConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	BotToken    string `mapstructure:"bot_token"`
	AdminChatID int64  `mapstructure:"admin_chat_id"`
}

// Load reads configuration from the given file (optional) with
// PORTAL_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.upload_dir", "./uploads")
	v.SetDefault("server.print_qr", false)
	v.SetDefault("db.path", "./portal.db")
	v.SetDefault("auth.keys_dir", "./keys")
	v.SetDefault("auth.issuer", "hotspot-portal")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("mikrotik.transport", "api")
	v.SetDefault("mikrotik.port", 0)
	v.SetDefault("mikrotik.username", "admin")
	v.SetDefault("mikrotik.timeout", 10*time.Second)
	v.SetDefault("telegram.enabled", false)

	v.SetEnvPrefix("PORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			// Missing file is fine: defaults plus env cover development.
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}
