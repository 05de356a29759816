package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// FederationInstance declares one federation binding in the configuration
// file. Properties uses the flat multi-valued map the bridge config is
// built from.
type FederationInstance struct {
	ID         string              `mapstructure:"id"`
	Properties map[string][]string `mapstructure:"properties"`
}

// ServerConfig holds all configuration for the bridge server.
type ServerConfig struct {
	HTTPPort        string `mapstructure:"HTTP_PORT"`
	MongoURI        string `mapstructure:"MONGO_URI"`
	MongoDBName     string `mapstructure:"MONGO_DB_NAME"`
	RedisAddr       string `mapstructure:"REDIS_ADDR"` // optional; empty selects the in-memory cache
	RedisPrefix     string `mapstructure:"REDIS_PREFIX"`
	LogLevel        string `mapstructure:"LOG_LEVEL"`
	LogPretty       bool   `mapstructure:"LOG_PRETTY"`
	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	Federations []FederationInstance `mapstructure:"federations"`
}

// LoadConfig reads configuration from file, environment variables, and
// defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/fedbridge/")
	v.AddConfigPath("$HOME/.fedbridge")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/fedbridge_dev")
	v.SetDefault("MONGO_DB_NAME", "fedbridge_dev")
	v.SetDefault("REDIS_PREFIX", "fedbridge")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("OTEL_SERVICE_NAME", "fedbridge-server")

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine, defaults and env vars apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	return &cfg, nil
}
